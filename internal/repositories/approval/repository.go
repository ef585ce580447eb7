package approval

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
	"id", "organization_id", "request_type", "status", "source_account_id", "target_account_id", "requested_by",
	"reviewed_by", "review_notes", "merge_run_id", "created_at", "reviewed_at",
}

// Repository handles approval request persistence
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

func (r *Repository) Create(ctx context.Context, request *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.Create")
	defer span.End()

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	request.Status = models.ApprovalStatusPending
	request.CreatedAt = time.Now().UTC()

	ib := database.NewInsertBuilder()
	ib.InsertInto("approval_requests")
	ib.Cols(columns...)
	ib.Values(request.ID, request.OrganizationID, request.RequestType, request.Status, request.SourceAccountID,
		request.TargetAccountID, request.RequestedBy, request.ReviewedBy, request.ReviewNotes, request.MergeRunID,
		request.CreatedAt, request.ReviewedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create approval request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create approval request")
	}
	return request, nil
}

func (r *Repository) Get(ctx context.Context, orgID, id string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval request %s not found", id))
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("approval_requests")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("organization_id", orgID),
	)

	query, args := sb.Build()
	var request models.ApprovalRequest
	if err := database.Conn(ctx, r.db).GetContext(ctx, &request, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("approval request %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get approval request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get approval request")
	}
	return &request, nil
}

func (r *Repository) List(ctx context.Context, orgID string, status *models.ApprovalStatus) ([]models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("approval_requests")
	sb.Where(sb.Equal("organization_id", orgID))
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("created_at DESC", "id")

	query, args := sb.Build()
	var requests []models.ApprovalRequest
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &requests, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list approval requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list approval requests")
	}
	return requests, nil
}

// UpdateReview records the review outcome. Only pending requests can be reviewed.
func (r *Repository) UpdateReview(ctx context.Context, request *models.ApprovalRequest) error {
	ctx, span := tracing.StartSpan(ctx, "approval.Repository.UpdateReview")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("approval_requests")
	ub.Set(
		ub.Assign("status", request.Status),
		ub.Assign("reviewed_by", request.ReviewedBy),
		ub.Assign("review_notes", request.ReviewNotes),
		ub.Assign("merge_run_id", request.MergeRunID),
		ub.Assign("reviewed_at", request.ReviewedAt),
	)
	ub.Where(
		ub.Equal("id", request.ID),
		ub.Equal("organization_id", request.OrganizationID),
		ub.Equal("status", models.ApprovalStatusPending),
	)

	query, args := ub.Build()
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update approval request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update approval request")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("approval request %s is no longer pending", request.ID))
	}
	return nil
}
