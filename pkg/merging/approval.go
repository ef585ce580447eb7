package merging

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RequestMerge files a merge for a second person to approve.
func (s *Service) RequestMerge(ctx context.Context, orgID, sourceID, targetID, requestedBy string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.RequestMerge")
	defer span.End()

	if sourceID == targetID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot merge an account into itself")
	}
	for _, id := range []string{sourceID, targetID} {
		if _, err := s.repos.Accounts.Get(ctx, orgID, id); err != nil {
			return nil, err
		}
	}

	request, err := s.repos.Approvals.Create(ctx, &models.ApprovalRequest{
		ID:              uuid.New().String(),
		OrganizationID:  orgID,
		RequestType:     models.ApprovalRequestTypeAccountMerge,
		Status:          models.ApprovalStatusPending,
		SourceAccountID: sourceID,
		TargetAccountID: targetID,
		RequestedBy:     requestedBy,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"approval_request_id": request.ID,
		"source_account_id":   sourceID,
		"target_account_id":   targetID,
	}).Info("Requested account merge")
	return request, nil
}

func (s *Service) ListApprovals(ctx context.Context, orgID string, status *models.ApprovalStatus) ([]models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.ListApprovals")
	defer span.End()

	return s.repos.Approvals.List(ctx, orgID, status)
}

// Approve executes the requested merge and links the run to the request. The
// requester cannot approve their own request.
func (s *Service) Approve(ctx context.Context, orgID, requestID, reviewer string, notes *string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Approve")
	defer span.End()

	var request *models.ApprovalRequest
	var run *models.MergeRun
	var target *models.Account
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.pendingRequest(ctx, orgID, requestID, reviewer)
		if err != nil {
			return err
		}
		run, target, err = s.merge(ctx, orgID, request.SourceAccountID, request.TargetAccountID, models.MergeOptions{
			MergedBy:          reviewer,
			ApprovalRequestID: &request.ID,
		})
		if err != nil {
			return err
		}
		s.review(request, models.ApprovalStatusApproved, reviewer, notes)
		request.MergeRunID = &run.ID
		return s.repos.Approvals.UpdateReview(ctx, request)
	})
	if err != nil {
		metrics.MergesTotal.WithLabelValues(OperationApprove, metrics.StatusError).Inc()
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(OperationApprove, metrics.StatusSuccess).Inc()
	s.afterMerge(ctx, run, target)
	return request, nil
}

func (s *Service) Reject(ctx context.Context, orgID, requestID, reviewer string, notes *string) (*models.ApprovalRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Reject")
	defer span.End()

	var request *models.ApprovalRequest
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		request, err = s.pendingRequest(ctx, orgID, requestID, reviewer)
		if err != nil {
			return err
		}
		s.review(request, models.ApprovalStatusRejected, reviewer, notes)
		return s.repos.Approvals.UpdateReview(ctx, request)
	})
	if err != nil {
		metrics.MergesTotal.WithLabelValues(OperationReject, metrics.StatusError).Inc()
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(OperationReject, metrics.StatusSuccess).Inc()
	s.logger.WithContext(ctx).WithField("approval_request_id", request.ID).Info("Rejected account merge")
	return request, nil
}

func (s *Service) pendingRequest(ctx context.Context, orgID, requestID, reviewer string) (*models.ApprovalRequest, error) {
	request, err := s.repos.Approvals.Get(ctx, orgID, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("approval request %s is already %s", request.ID, request.Status))
	}
	if reviewer != "" && reviewer == request.RequestedBy {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "a merge request cannot be reviewed by its requester")
	}
	return request, nil
}

func (s *Service) review(request *models.ApprovalRequest, status models.ApprovalStatus, reviewer string, notes *string) {
	now := s.now().UTC()
	request.Status = status
	request.ReviewedBy = &reviewer
	request.ReviewNotes = notes
	request.ReviewedAt = &now
}
