package accessgrant

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles user account access grants
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

func (r *Repository) Create(ctx context.Context, grant *models.AccessGrant) error {
	ctx, span := tracing.StartSpan(ctx, "accessgrant.Repository.Create")
	defer span.End()

	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("user_account_access")
	ib.Cols("id", "organization_id", "user_id", "account_id")
	ib.Values(grant.ID, grant.OrganizationID, grant.UserID, grant.AccountID)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create access grant")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create access grant")
	}
	return nil
}

func (r *Repository) ListByAccount(ctx context.Context, orgID, accountID string) ([]models.AccessGrant, error) {
	ctx, span := tracing.StartSpan(ctx, "accessgrant.Repository.ListByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "organization_id", "user_id", "account_id")
	sb.From("user_account_access")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("user_id", "id")

	query, args := sb.Build()
	var grants []models.AccessGrant
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &grants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list access grants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list access grants")
	}
	return grants, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, ids []string, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "accessgrant.Repository.UpdateAccount")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("user_account_access")
	ub.Set(ub.Assign("account_id", accountID))
	ub.Where(ub.In("id", database.Args(ids)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point access grants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move access grants")
	}
	return nil
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "accessgrant.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom("user_account_access")
	db.Where(db.In("id", database.Args(ids)...))

	query, args := db.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete access grants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete access grants")
	}
	return nil
}
