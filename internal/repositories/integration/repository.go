package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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
	"id", "organization_id", "provider", "category", "enabled", "credentials", "sync_cursor", "last_sync_at",
	"status", "last_error", "created_at", "updated_at",
}

// Repository handles integration config persistence
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

func (r *Repository) Create(ctx context.Context, config *models.IntegrationConfig) (*models.IntegrationConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	if config.Status == "" {
		config.Status = models.IntegrationStatusActive
	}
	config.CreatedAt = now
	config.UpdatedAt = now

	ib := database.NewInsertBuilder()
	ib.InsertInto("integration_configs")
	ib.Cols(columns...)
	ib.Values(config.ID, config.OrganizationID, config.Provider, config.Category, config.Enabled, config.Credentials,
		config.SyncCursor, config.LastSyncAt, config.Status, config.LastError, config.CreatedAt, config.UpdatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create integration config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create integration config")
	}
	return config, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*models.IntegrationConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("integration %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("integration_configs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", orgID),
	)

	query, args := sb.Build()
	var config models.IntegrationConfig
	if err := database.Conn(ctx, r.db).GetContext(ctx, &config, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("integration %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get integration config")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get integration config")
	}
	return &config, nil
}

// ListSyncable returns enabled configs in ACTIVE or ERROR status, oldest sync first.
func (r *Repository) ListSyncable(ctx context.Context) ([]models.IntegrationConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.ListSyncable")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("integration_configs")
	sb.Where(
		sb.Equal("enabled", true),
		sb.In("status", models.IntegrationStatusActive, models.IntegrationStatusError),
	)
	sb.OrderBy("last_sync_at ASC NULLS FIRST", "id")

	query, args := sb.Build()
	var configs []models.IntegrationConfig
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &configs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list syncable integration configs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list integration configs")
	}
	return configs, nil
}

func (r *Repository) update(ctx context.Context, id string, assignments func(ub assigner) []string) error {
	ub := database.NewUpdateBuilder()
	ub.Update("integration_configs")
	ub.Set(append(assignments(ub), ub.Assign("updated_at", time.Now().UTC()))...)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"config_id": id}).Error("Failed to update integration config")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update integration config")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("integration %s not found", id))
	}
	return nil
}

type assigner interface {
	Assign(field string, value interface{}) string
}

func (r *Repository) UpdateCursor(ctx context.Context, id string, cursor *string) error {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.UpdateCursor")
	defer span.End()

	return r.update(ctx, id, func(ub assigner) []string {
		return []string{ub.Assign("sync_cursor", cursor)}
	})
}

func (r *Repository) MarkError(ctx context.Context, id string, message string) error {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.MarkError")
	defer span.End()

	return r.update(ctx, id, func(ub assigner) []string {
		return []string{
			ub.Assign("status", models.IntegrationStatusError),
			ub.Assign("last_error", message),
		}
	})
}

// MarkSuccess clears the error and the cursor and stamps last_sync_at.
func (r *Repository) MarkSuccess(ctx context.Context, id string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "integration.Repository.MarkSuccess")
	defer span.End()

	return r.update(ctx, id, func(ub assigner) []string {
		return []string{
			ub.Assign("status", models.IntegrationStatusActive),
			ub.Assign("last_error", nil),
			ub.Assign("sync_cursor", nil),
			ub.Assign("last_sync_at", at),
		}
	})
}
