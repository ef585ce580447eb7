package mergerun

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
	"id", "organization_id", "primary_account_id", "secondary_account_id", "status", "moved_counts", "snapshot",
	"approval_request_id", "merged_by", "created_at", "undone_at", "undone_by",
}

// Repository handles merge run persistence
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

func (r *Repository) Create(ctx context.Context, run *models.MergeRun) (*models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.MergeRunStatusCompleted
	}
	run.CreatedAt = time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto("merge_runs")
	ib.Cols(columns...)
	ib.Values(run.ID, run.OrganizationID, run.PrimaryAccountID, run.SecondaryAccountID, run.Status, run.MovedCounts,
		run.Snapshot, run.ApprovalRequestID, run.MergedBy, run.CreatedAt, run.UndoneAt, run.UndoneBy)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"merge_run_id": run.ID}).Error("Failed to create merge run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record merge run")
	}
	return run, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerun.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge run %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", orgID),
	)

	query, args := sb.Build()
	var run models.MergeRun
	if err := database.Conn(ctx, r.db).GetContext(ctx, &run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("merge run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge run")
	}
	return &run, nil
}

func (r *Repository) List(ctx context.Context, orgID string, limit int) ([]models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerun.Repository.List")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_runs")
	sb.Where(sb.Equal("organization_id", orgID))
	sb.OrderBy("created_at DESC", "id")
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.MergeRun
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge runs")
	}
	return runs, nil
}

func (r *Repository) MarkUndone(ctx context.Context, id, undoneBy string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "mergerun.Repository.MarkUndone")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("merge_runs")
	ub.Set(
		ub.Assign("status", models.MergeRunStatusUndone),
		ub.Assign("undone_at", at),
		ub.Assign("undone_by", undoneBy),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("status", models.MergeRunStatusCompleted),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark merge run undone")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update merge run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("merge run %s is not completed", id))
	}
	return nil
}
