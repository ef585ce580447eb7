package crmevent

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var columns = []string{
	"id", "organization_id", "account_id", "provider", "event_type", "opportunity_id", "stage_name", "amount",
	"close_date", "description", "created_at",
}

// Repository handles the opportunity ledger
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

func (r *Repository) CreateIgnoreDuplicate(ctx context.Context, event *models.CRMEvent) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "crmevent.Repository.CreateIgnoreDuplicate")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("crm_events")
	ib.Cols(columns...)
	ib.Values(event.ID, event.OrganizationID, event.AccountID, event.Provider, event.EventType, event.OpportunityID,
		event.StageName, event.Amount, event.CloseDate, event.Description, event.CreatedAt)
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"opportunity_id": event.OpportunityID}).Error("Failed to create CRM event")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create CRM event")
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *Repository) ListByAccount(ctx context.Context, orgID, accountID string) ([]models.CRMEvent, error) {
	ctx, span := tracing.StartSpan(ctx, "crmevent.Repository.ListByAccount")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("crm_events")
	sb.Where(
		sb.Equal("organization_id", orgID),
		sb.Equal("account_id", accountID),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var events []models.CRMEvent
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &events, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list CRM events")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list CRM events")
	}
	return events, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, ids []string, accountID string) error {
	ctx, span := tracing.StartSpan(ctx, "crmevent.Repository.UpdateAccount")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("crm_events")
	ub.Set(ub.Assign("account_id", accountID))
	ub.Where(ub.In("id", database.Args(ids)...))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to re-point CRM events")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to move CRM events")
	}
	return nil
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "crmevent.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom("crm_events")
	db.Where(db.In("id", database.Args(ids)...))

	query, args := db.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete CRM events")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete CRM events")
	}
	return nil
}
