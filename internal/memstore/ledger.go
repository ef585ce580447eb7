package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

type crmEventRepo struct{ s *Store }

func (r crmEventRepo) CreateIgnoreDuplicate(_ context.Context, event *models.CRMEvent) (bool, error) {
	s := r.s
	err := s.enter("CRMEventRepo.CreateIgnoreDuplicate")
	defer s.mu.Unlock()
	if err != nil {
		return false, err
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if _, exists := s.st.crmEvents[event.ID]; exists {
		return false, nil
	}
	for _, other := range s.st.crmEvents {
		if other.AccountID == event.AccountID && other.OpportunityID == event.OpportunityID && other.StageName == event.StageName {
			return false, nil
		}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.st.crmEvents[event.ID] = *event
	s.track(event.ID)
	return true, nil
}

func (r crmEventRepo) ListByAccount(_ context.Context, orgID, accountID string) ([]models.CRMEvent, error) {
	s := r.s
	err := s.enter("CRMEventRepo.ListByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.CRMEvent
	for _, e := range s.st.crmEvents {
		if e.OrganizationID == orgID && e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r crmEventRepo) UpdateAccount(_ context.Context, ids []string, accountID string) error {
	s := r.s
	err := s.enter("CRMEventRepo.UpdateAccount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		e, ok := s.st.crmEvents[id]
		if !ok {
			continue
		}
		for otherID, other := range s.st.crmEvents {
			if otherID != id && other.AccountID == accountID && other.OpportunityID == e.OpportunityID && other.StageName == e.StageName {
				return conflict(fmt.Sprintf("crm event %s/%s already exists on account %s", e.OpportunityID, e.StageName, accountID))
			}
		}
		e.AccountID = accountID
		s.st.crmEvents[id] = e
	}
	return nil
}

func (r crmEventRepo) DeleteByIDs(_ context.Context, ids []string) error {
	s := r.s
	err := s.enter("CRMEventRepo.DeleteByIDs")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(s.st.crmEvents, id)
	}
	return nil
}

type storyRepo struct{ s *Store }

func (r storyRepo) ListIDsByAccount(_ context.Context, orgID, accountID string) ([]string, error) {
	s := r.s
	err := s.enter("StoryRepo.ListIDsByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, story := range s.st.stories {
		if story.OrganizationID == orgID && story.AccountID == accountID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r storyRepo) UpdateAccount(_ context.Context, ids []string, accountID string) error {
	s := r.s
	err := s.enter("StoryRepo.UpdateAccount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		story, ok := s.st.stories[id]
		if !ok {
			continue
		}
		story.AccountID = accountID
		s.st.stories[id] = story
	}
	return nil
}

type grantRepo struct{ s *Store }

func (r grantRepo) Create(_ context.Context, grant *models.AccessGrant) error {
	s := r.s
	err := s.enter("AccessGrantRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	if _, exists := s.st.grants[grant.ID]; exists {
		return nil
	}
	for _, other := range s.st.grants {
		if other.UserID == grant.UserID && other.AccountID == grant.AccountID {
			return nil
		}
	}
	s.st.grants[grant.ID] = *grant
	s.track(grant.ID)
	return nil
}

func (r grantRepo) ListByAccount(_ context.Context, orgID, accountID string) ([]models.AccessGrant, error) {
	s := r.s
	err := s.enter("AccessGrantRepo.ListByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.AccessGrant
	for _, g := range s.st.grants {
		if g.OrganizationID == orgID && g.AccountID == accountID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID == out[j].UserID {
			return out[i].ID < out[j].ID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r grantRepo) UpdateAccount(_ context.Context, ids []string, accountID string) error {
	s := r.s
	err := s.enter("AccessGrantRepo.UpdateAccount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		g, ok := s.st.grants[id]
		if !ok {
			continue
		}
		for otherID, other := range s.st.grants {
			if otherID != id && other.UserID == g.UserID && other.AccountID == accountID {
				return conflict(fmt.Sprintf("user %s already has access to account %s", g.UserID, accountID))
			}
		}
		g.AccountID = accountID
		s.st.grants[id] = g
	}
	return nil
}

func (r grantRepo) DeleteByIDs(_ context.Context, ids []string) error {
	s := r.s
	err := s.enter("AccessGrantRepo.DeleteByIDs")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(s.st.grants, id)
	}
	return nil
}
