package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

type integrationRepo struct{ s *Store }

func (r integrationRepo) Create(_ context.Context, config *models.IntegrationConfig) (*models.IntegrationConfig, error) {
	s := r.s
	err := s.enter("IntegrationRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	if config.Status == "" {
		config.Status = models.IntegrationStatusActive
	}
	config.CreatedAt = now
	config.UpdatedAt = now
	s.st.integrations[config.ID] = *config
	s.track(config.ID)
	stored := *config
	return &stored, nil
}

func (r integrationRepo) Get(_ context.Context, orgID, id string) (*models.IntegrationConfig, error) {
	s := r.s
	err := s.enter("IntegrationRepo.Get")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c, ok := s.st.integrations[id]
	if !ok || c.OrganizationID != orgID {
		return nil, notFound(fmt.Sprintf("integration config %s not found", id))
	}
	return &c, nil
}

func (r integrationRepo) ListSyncable(_ context.Context) ([]models.IntegrationConfig, error) {
	s := r.s
	err := s.enter("IntegrationRepo.ListSyncable")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.IntegrationConfig
	for _, c := range s.st.integrations {
		if c.Syncable() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastSyncAt, out[j].LastSyncAt
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return true
		case b == nil:
			return false
		case a.Equal(*b):
			return out[i].ID < out[j].ID
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func (s *Store) updateIntegration(op, id string, apply func(c *models.IntegrationConfig)) error {
	err := s.enter(op)
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	c, ok := s.st.integrations[id]
	if !ok {
		return notFound(fmt.Sprintf("integration config %s not found", id))
	}
	apply(&c)
	c.UpdatedAt = time.Now().UTC()
	s.st.integrations[id] = c
	return nil
}

func (r integrationRepo) UpdateCursor(_ context.Context, id string, cursor *string) error {
	return r.s.updateIntegration("IntegrationRepo.UpdateCursor", id, func(c *models.IntegrationConfig) {
		c.SyncCursor = cursor
	})
}

func (r integrationRepo) MarkError(_ context.Context, id string, message string) error {
	return r.s.updateIntegration("IntegrationRepo.MarkError", id, func(c *models.IntegrationConfig) {
		c.Status = models.IntegrationStatusError
		c.LastError = &message
	})
}

func (r integrationRepo) MarkSuccess(_ context.Context, id string, at time.Time) error {
	return r.s.updateIntegration("IntegrationRepo.MarkSuccess", id, func(c *models.IntegrationConfig) {
		c.Status = models.IntegrationStatusActive
		c.LastError = nil
		c.SyncCursor = nil
		c.LastSyncAt = &at
	})
}

type mergeRunRepo struct{ s *Store }

func (r mergeRunRepo) Create(_ context.Context, run *models.MergeRun) (*models.MergeRun, error) {
	s := r.s
	err := s.enter("MergeRunRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = models.MergeRunStatusCompleted
	}
	run.CreatedAt = time.Now().UTC()
	s.st.mergeRuns[run.ID] = *run
	s.track(run.ID)
	stored := *run
	return &stored, nil
}

func (r mergeRunRepo) Get(_ context.Context, orgID, id string) (*models.MergeRun, error) {
	s := r.s
	err := s.enter("MergeRunRepo.Get")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	run, ok := s.st.mergeRuns[id]
	if !ok || run.OrganizationID != orgID {
		return nil, notFound(fmt.Sprintf("merge run %s not found", id))
	}
	return &run, nil
}

// List returns the newest runs first; creation order breaks timestamp ties.
func (r mergeRunRepo) List(_ context.Context, orgID string, limit int) ([]models.MergeRun, error) {
	s := r.s
	err := s.enter("MergeRunRepo.List")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, run := range s.st.mergeRuns {
		if run.OrganizationID == orgID {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	out := make([]models.MergeRun, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.st.mergeRuns[ids[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r mergeRunRepo) MarkUndone(_ context.Context, id, undoneBy string, at time.Time) error {
	s := r.s
	err := s.enter("MergeRunRepo.MarkUndone")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	run, ok := s.st.mergeRuns[id]
	if !ok || run.Status != models.MergeRunStatusCompleted {
		return conflict(fmt.Sprintf("merge run %s is not completed", id))
	}
	run.Status = models.MergeRunStatusUndone
	run.UndoneAt = &at
	run.UndoneBy = &undoneBy
	s.st.mergeRuns[id] = run
	return nil
}

type approvalRepo struct{ s *Store }

func (r approvalRepo) Create(_ context.Context, request *models.ApprovalRequest) (*models.ApprovalRequest, error) {
	s := r.s
	err := s.enter("ApprovalRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}
	if request.RequestType == "" {
		request.RequestType = models.ApprovalRequestTypeAccountMerge
	}
	request.CreatedAt = time.Now().UTC()
	s.st.approvals[request.ID] = *request
	s.track(request.ID)
	stored := *request
	return &stored, nil
}

func (r approvalRepo) Get(_ context.Context, orgID, id string) (*models.ApprovalRequest, error) {
	s := r.s
	err := s.enter("ApprovalRepo.Get")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	request, ok := s.st.approvals[id]
	if !ok || request.OrganizationID != orgID {
		return nil, notFound(fmt.Sprintf("approval request %s not found", id))
	}
	return &request, nil
}

func (r approvalRepo) List(_ context.Context, orgID string, status *models.ApprovalStatus) ([]models.ApprovalRequest, error) {
	s := r.s
	err := s.enter("ApprovalRepo.List")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, request := range s.st.approvals {
		if request.OrganizationID != orgID {
			continue
		}
		if status != nil && request.Status != *status {
			continue
		}
		ids = append(ids, id)
	}
	s.sortBySeq(ids)
	out := make([]models.ApprovalRequest, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, s.st.approvals[ids[i]])
	}
	return out, nil
}

func (r approvalRepo) UpdateReview(_ context.Context, request *models.ApprovalRequest) error {
	s := r.s
	err := s.enter("ApprovalRepo.UpdateReview")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	stored, ok := s.st.approvals[request.ID]
	if !ok || stored.OrganizationID != request.OrganizationID || stored.Status != models.ApprovalStatusPending {
		return conflict(fmt.Sprintf("approval request %s is no longer pending", request.ID))
	}
	stored.Status = request.Status
	stored.ReviewedBy = request.ReviewedBy
	stored.ReviewNotes = request.ReviewNotes
	stored.MergeRunID = request.MergeRunID
	stored.ReviewedAt = request.ReviewedAt
	s.st.approvals[request.ID] = stored
	return nil
}
