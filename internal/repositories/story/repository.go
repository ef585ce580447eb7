package story

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository re-points stories between accounts. Story content is owned elsewhere.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) ListIDsByAccount(ctx context.Context, orgID, accountID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "story.Repository.ListIDsByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id")
	sb.From("stories")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("id")

	query, args := sb.Build()
	var ids []string
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list stories")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list stories")
	}
	return ids, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, ids []string, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "story.Repository.UpdateAccount")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("stories")
	ub.Set(ub.Assign("account_id", accountID))
	ub.Where(ub.In("id", database.Args(ids)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point stories")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move stories")
	}
	return nil
}
