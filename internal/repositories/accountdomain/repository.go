package accountdomain

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{"id", "organization_id", "account_id", "domain", "created_at"}

// Repository handles alias domain persistence
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

// Create inserts an alias. The (organization, domain) unique index turns a
// concurrent claim of the same domain into a 409.
func (r *Repository) Create(ctx context.Context, domain *models.AccountDomain) (*models.AccountDomain, error) {
	ctx, span := tracing.StartSpan(ctx, "accountdomain.Repository.Create")
	defer span.End()

	if domain.ID == "" {
		domain.ID = uuid.New().String()
	}
	if domain.CreatedAt.IsZero() {
		domain.CreatedAt = time.Now().UTC()
	}
	domain.Domain = strings.ToLower(strings.TrimSpace(domain.Domain))

	ib := database.NewInsertBuilder()
	ib.InsertInto("account_domains")
	ib.Cols(columns...)
	ib.Values(domain.ID, domain.OrganizationID, domain.AccountID, domain.Domain, domain.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "domain "+domain.Domain+" is already claimed")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"domain": domain.Domain}).Error("Failed to create account domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account domain")
	}

	return domain, nil
}

func (r *Repository) FindByDomains(ctx context.Context, orgID string, domains []string) ([]models.AccountDomain, error) {
	ctx, span := tracing.StartSpan(ctx, "accountdomain.Repository.FindByDomains")
	defer span.End()

	if len(domains) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("account_domains")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.In("domain", database.Args(domains)...),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var result []models.AccountDomain
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find account domains")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find account domains")
	}
	return result, nil
}

func (r *Repository) ListByAccount(ctx context.Context, orgID, accountID string) ([]models.AccountDomain, error) {
	ctx, span := tracing.StartSpan(ctx, "accountdomain.Repository.ListByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("account_domains")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var result []models.AccountDomain
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list account domains")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list account domains")
	}
	return result, nil
}

func (r *Repository) IsClaimed(ctx context.Context, orgID, domain string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "accountdomain.Repository.IsClaimed")
	defer span.End()

	domain = strings.ToLower(strings.TrimSpace(domain))
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE organization_id = $1 AND domain = $2)
		OR EXISTS (SELECT 1 FROM account_domains WHERE organization_id = $1 AND domain = $2)`

	var claimed bool
	if err := database.Conn(ctx, r.db).GetContext(ctx, &claimed, query, orgID, domain); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check domain claim")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check domain")
	}
	return claimed, nil
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "accountdomain.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom("account_domains")
	db.Where(db.In("id", database.Args(ids)...))

	query, args := db.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete account domains")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account domains")
	}
	return nil
}
