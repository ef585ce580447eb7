package contact

import (
	"context"
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
	"id", "organization_id", "account_id", "email", "email_domain", "name", "title", "phone", "created_at", "updated_at",
}

// Repository handles contact persistence
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

func prepare(c *models.Contact) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Email = normalizers.NormalizeEmail(c.Email)
	if c.EmailDomain == "" {
		if at := strings.LastIndex(c.Email, "@"); at >= 0 {
			c.EmailDomain = c.Email[at+1:]
		}
	}
}

func values(c *models.Contact) []any {
	return []any{c.ID, c.OrganizationID, c.AccountID, c.Email, c.EmailDomain, c.Name, c.Title, c.Phone, c.CreatedAt, c.UpdatedAt}
}

// Create inserts a contact keeping a caller-supplied id.
func (r *Repository) Create(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Create")
	defer span.End()

	prepare(contact)

	ib := database.NewInsertBuilder()
	ib.InsertInto("contacts")
	ib.Cols(columns...)
	ib.Values(values(contact)...)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("contact %s already exists on account", contact.Email))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create contact")
	}
	return contact, nil
}

func (r *Repository) Upsert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Upsert")
	defer span.End()

	prepare(contact)

	ib := database.NewInsertBuilder()
	ib.InsertInto("contacts")
	ib.Cols(columns...)
	ib.Values(values(contact)...)

	query, args := ib.Build()
	query += " ON CONFLICT (account_id, email) DO UPDATE SET" +
		" name = COALESCE(EXCLUDED.name, contacts.name)," +
		" title = COALESCE(EXCLUDED.title, contacts.title)," +
		" phone = COALESCE(EXCLUDED.phone, contacts.phone)," +
		" updated_at = EXCLUDED.updated_at RETURNING " + strings.Join(columns, ", ")

	var stored models.Contact
	if err := database.Conn(ctx, r.db).GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"account_id": contact.AccountID}).Error("Failed to upsert contact")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert contact")
	}
	return &stored, nil
}

func (r *Repository) FindByEmailDomains(ctx context.Context, orgID string, domains []string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailDomains")
	defer span.End()

	if len(domains) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contacts")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.In("email_domain", database.Args(domains)...),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find contacts by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find contacts")
	}
	return contacts, nil
}

func (r *Repository) ListByAccount(ctx context.Context, orgID, accountID string) ([]models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.ListByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("contacts")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var contacts []models.Contact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list contacts")
	}
	return contacts, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, ids []string, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateAccount")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("contacts")
	ub.Set(
		ub.Assign("account_id", accountID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.In("id", database.Args(ids)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point contacts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move contacts")
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom("contacts")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete contact")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete contact")
	}
	return nil
}
