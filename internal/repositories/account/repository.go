package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "organization_id", "name", "normalized_name", "domain", "industry", "employee_count",
	"annual_revenue", "salesforce_id", "hubspot_id", "created_at", "updated_at",
}

// Repository handles account persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new account repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func crmColumn(provider models.Provider) (string, error) {
	switch provider {
	case models.ProviderSalesforce:
		return "salesforce_id", nil
	case models.ProviderHubspot:
		return "hubspot_id", nil
	default:
		return "", httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("provider %s has no account id column", provider))
	}
}

func prepare(account *models.Account) {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.NormalizedName = normalizers.NormalizeCompanyName(account.Name)
	if account.Domain != nil {
		d := strings.ToLower(strings.TrimSpace(*account.Domain))
		if d == "" {
			account.Domain = nil
		} else {
			account.Domain = &d
		}
	}
}

func values(a *models.Account) []any {
	return []any{
		a.ID, a.OrganizationID, a.Name, a.NormalizedName, a.Domain, a.Industry, a.EmployeeCount,
		a.AnnualRevenue, a.SalesforceID, a.HubspotID, a.CreatedAt, a.UpdatedAt,
	}
}

// Create inserts an account. A caller-supplied id is kept so undo can restore the original row.
func (r *Repository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Create")
	defer span.End()

	prepare(account)

	ib := database.NewInsertBuilder()
	ib.InsertInto("accounts")
	ib.Cols(columns...)
	ib.Values(values(account)...)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "an account with this domain or CRM id already exists")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": account.ID}).Error("Failed to create account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create account")
	}

	return account, nil
}

// Get retrieves an account by ID within an organization
func (r *Repository) Get(ctx context.Context, orgID, id string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("accounts")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", orgID),
	)

	query, args := sb.Build()
	var account models.Account
	if err := database.Conn(ctx, r.db).GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// ListByOrganization returns every account in the organization ordered by name
func (r *Repository) ListByOrganization(ctx context.Context, orgID string) ([]models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.ListByOrganization")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("accounts")
	sb.Where(sb.Equal("organization_id", orgID))
	sb.OrderBy("normalized_name", "id")

	query, args := sb.Build()
	var accounts []models.Account
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list accounts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list accounts")
	}

	return accounts, nil
}

// FindByPrimaryDomains returns accounts whose primary domain is one of domains
func (r *Repository) FindByPrimaryDomains(ctx context.Context, orgID string, domains []string) ([]models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.FindByPrimaryDomains")
	defer span.End()

	if len(domains) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("accounts")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.In("domain", database.Args(domains)...),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var accounts []models.Account
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &accounts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find accounts by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find accounts by domain")
	}

	return accounts, nil
}

// GetByCRMID retrieves an account by its native id in provider
func (r *Repository) GetByCRMID(ctx context.Context, orgID string, provider models.Provider, crmID string) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.GetByCRMID")
	defer span.End()

	col, err := crmColumn(provider)
	if err != nil {
		return nil, err
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("accounts")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal(col, crmID),
	)

	query, args := sb.Build()
	var account models.Account
	if err := database.Conn(ctx, r.db).GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no account for %s id %s", provider, crmID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get account by CRM id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get account")
	}

	return &account, nil
}

// UpsertByCRMID inserts or updates an account keyed by (organization, CRM native id).
// A stored domain is kept when the incoming record has none.
func (r *Repository) UpsertByCRMID(ctx context.Context, account *models.Account, provider models.Provider) (*models.Account, error) {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.UpsertByCRMID")
	defer span.End()

	col, err := crmColumn(provider)
	if err != nil {
		return nil, err
	}
	if account.CRMID(provider) == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "account has no CRM id")
	}

	prepare(account)

	ib := database.NewInsertBuilder()
	ib.InsertInto("accounts")
	ib.Cols(columns...)
	ib.Values(values(account)...)

	query, args := ib.Build()
	query += fmt.Sprintf(" ON CONFLICT (organization_id, %s) DO UPDATE SET"+
		" name = EXCLUDED.name, normalized_name = EXCLUDED.normalized_name,"+
		" domain = COALESCE(EXCLUDED.domain, accounts.domain),"+
		" industry = COALESCE(EXCLUDED.industry, accounts.industry),"+
		" employee_count = COALESCE(EXCLUDED.employee_count, accounts.employee_count),"+
		" annual_revenue = COALESCE(EXCLUDED.annual_revenue, accounts.annual_revenue),"+
		" updated_at = EXCLUDED.updated_at RETURNING %s", col, strings.Join(columns, ", "))

	var stored models.Account
	if err := database.Conn(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "account domain is already claimed")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"provider": provider}).Error("Failed to upsert account")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert account")
	}

	return &stored, nil
}

// UpdateCRMIDs overwrites both CRM id columns
func (r *Repository) UpdateCRMIDs(ctx context.Context, orgID, id string, salesforceID, hubspotID *string) error {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.UpdateCRMIDs")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("accounts")
	ub.Set(
		ub.Assign("salesforce_id", salesforceID),
		ub.Assign("hubspot_id", hubspotID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("organization_id", orgID),
	)

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return httperror.NewHTTPError(http.StatusConflict, "CRM id is already used by another account")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update account CRM ids")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update account")
	}
	return nil
}

// Delete removes an account. Alias rows go with it through the foreign key.
func (r *Repository) Delete(ctx context.Context, orgID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "account.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom("accounts")
	db.Where(
		db.Equal("id", id),
		db.Equal("organization_id", orgID),
	)

	query, args := db.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete account")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("account %s not found", id))
	}
	return nil
}
