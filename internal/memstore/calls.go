package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

type callRepo struct{ s *Store }

func (r callRepo) Upsert(_ context.Context, call *models.Call) (*models.CallUpsert, error) {
	s := r.s
	err := s.enter("CallRepo.Upsert")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for id, existing := range s.st.calls {
		if existing.OrganizationID != call.OrganizationID {
			continue
		}
		byRecording := call.RecordingID != nil && sameOptional(existing.RecordingID, call.RecordingID)
		byExternal := existing.Provider == call.Provider && existing.ExternalID == call.ExternalID
		if !byRecording && !byExternal {
			continue
		}
		existing.Title = call.Title
		existing.DurationSeconds = call.DurationSeconds
		existing.OccurredAt = call.OccurredAt
		if call.RecordingURL != nil && !byRecording {
			existing.RecordingURL = call.RecordingURL
		}
		existing.UpdatedAt = now
		s.st.calls[id] = existing
		stored := existing
		return &models.CallUpsert{Call: &stored, IsNew: false}, nil
	}

	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	call.AccountID = nil
	call.MatchMethod = models.MatchMethodNone
	call.MatchConfidence = 0
	call.CreatedAt = now
	call.UpdatedAt = now
	s.st.calls[call.ID] = *call
	s.track(call.ID)
	stored := *call
	return &models.CallUpsert{Call: &stored, IsNew: true}, nil
}

func (r callRepo) Get(_ context.Context, orgID, id string) (*models.Call, error) {
	s := r.s
	err := s.enter("CallRepo.Get")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c, ok := s.st.calls[id]
	if !ok || c.OrganizationID != orgID {
		return nil, notFound(fmt.Sprintf("call %s not found", id))
	}
	return &c, nil
}

func (r callRepo) UpdateResolution(_ context.Context, orgID, id string, accountID *string, method models.MatchMethod, confidence float64) error {
	s := r.s
	err := s.enter("CallRepo.UpdateResolution")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	c, ok := s.st.calls[id]
	if !ok || c.OrganizationID != orgID {
		return notFound(fmt.Sprintf("call %s not found", id))
	}
	c.AccountID = accountID
	c.MatchMethod = method
	c.MatchConfidence = confidence
	c.UpdatedAt = time.Now().UTC()
	s.st.calls[id] = c
	return nil
}

func inReview(c models.Call, orgID string, threshold float64) bool {
	return c.OrganizationID == orgID && c.DismissedAt == nil &&
		(c.MatchMethod == models.MatchMethodNone || c.MatchConfidence < threshold)
}

func (r callRepo) ListReviewQueue(_ context.Context, orgID string, threshold float64, params models.ReviewListParams) ([]models.Call, int, error) {
	s := r.s
	err := s.enter("CallRepo.ListReviewQueue")
	defer s.mu.Unlock()
	if err != nil {
		return nil, 0, err
	}

	params.Normalize()
	search := strings.ToLower(strings.TrimSpace(params.Search))

	var matched []models.Call
	for _, c := range s.st.calls {
		if !inReview(c, orgID, threshold) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Title), search) {
			continue
		}
		matched = append(matched, c)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		if params.SortBy == models.ReviewSortConfidence {
			less, equal = a.MatchConfidence < b.MatchConfidence, a.MatchConfidence == b.MatchConfidence
		} else {
			less, equal = a.OccurredAt.Before(b.OccurredAt), a.OccurredAt.Equal(b.OccurredAt)
		}
		if equal {
			return a.ID < b.ID
		}
		if params.SortOrder == models.SortAsc {
			return less
		}
		return !less
	})

	total := len(matched)
	start := min(params.Offset(), total)
	end := min(start+params.PageSize, total)
	return matched[start:end], total, nil
}

func (r callRepo) ReviewStats(_ context.Context, orgID string, threshold float64) (*models.ReviewStats, error) {
	s := r.s
	err := s.enter("CallRepo.ReviewStats")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stats := &models.ReviewStats{}
	for _, c := range s.st.calls {
		if c.OrganizationID != orgID {
			continue
		}
		if c.MatchMethod == models.MatchMethodManual {
			stats.ResolvedManually++
		}
		if c.DismissedAt != nil {
			stats.Dismissed++
			continue
		}
		if inReview(c, orgID, threshold) {
			stats.Queued++
		}
		if c.MatchMethod == models.MatchMethodNone {
			stats.Unmatched++
		} else if c.MatchConfidence < threshold {
			stats.LowConfidence++
		}
	}
	return stats, nil
}

func (r callRepo) Dismiss(_ context.Context, orgID string, ids []string, at time.Time) (int, error) {
	s := r.s
	err := s.enter("CallRepo.Dismiss")
	defer s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		c, ok := s.st.calls[id]
		if !ok || c.OrganizationID != orgID {
			continue
		}
		if c.DismissedAt == nil {
			stamp := at
			c.DismissedAt = &stamp
		}
		c.UpdatedAt = at
		s.st.calls[id] = c
		count++
	}
	return count, nil
}

func (r callRepo) ListIDsByAccount(_ context.Context, orgID, accountID string) ([]string, error) {
	s := r.s
	err := s.enter("CallRepo.ListIDsByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, c := range s.st.calls {
		if c.OrganizationID == orgID && c.AccountID != nil && *c.AccountID == accountID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r callRepo) UpdateAccount(_ context.Context, ids []string, accountID string) error {
	s := r.s
	err := s.enter("CallRepo.UpdateAccount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		c, ok := s.st.calls[id]
		if !ok {
			continue
		}
		target := accountID
		c.AccountID = &target
		c.UpdatedAt = time.Now().UTC()
		s.st.calls[id] = c
	}
	return nil
}

type participantRepo struct{ s *Store }

func (r participantRepo) CreateBatch(_ context.Context, participants []models.CallParticipant) error {
	s := r.s
	err := s.enter("ParticipantRepo.CreateBatch")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for i := range participants {
		p := &participants[i]
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			p.Email = &email
		}
		s.st.participants[p.ID] = *p
		s.track(p.ID)
	}
	return nil
}

func (r participantRepo) ListByCall(_ context.Context, callID string) ([]models.CallParticipant, error) {
	s := r.s
	err := s.enter("ParticipantRepo.ListByCall")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, p := range s.st.participants {
		if p.CallID == callID {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	out := make([]models.CallParticipant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.st.participants[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsHost && !out[j].IsHost })
	return out, nil
}

func (r participantRepo) ListIDsByContact(_ context.Context, contactID string) ([]string, error) {
	s := r.s
	err := s.enter("ParticipantRepo.ListIDsByContact")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, p := range s.st.participants {
		if p.ContactID != nil && *p.ContactID == contactID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r participantRepo) LinkContact(_ context.Context, callID, email, contactID string) error {
	s := r.s
	err := s.enter("ParticipantRepo.LinkContact")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	email = strings.ToLower(strings.TrimSpace(email))
	for id, p := range s.st.participants {
		if p.CallID == callID && p.Email != nil && *p.Email == email {
			cid := contactID
			p.ContactID = &cid
			s.st.participants[id] = p
		}
	}
	return nil
}

func (r participantRepo) RelinkContact(_ context.Context, participantIDs []string, contactID string) error {
	s := r.s
	err := s.enter("ParticipantRepo.RelinkContact")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range participantIDs {
		p, ok := s.st.participants[id]
		if !ok {
			continue
		}
		cid := contactID
		p.ContactID = &cid
		s.st.participants[id] = p
	}
	return nil
}

type transcriptRepo struct{ s *Store }

func (r transcriptRepo) Create(_ context.Context, transcript *models.Transcript) (bool, error) {
	s := r.s
	err := s.enter("TranscriptRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return false, err
	}

	if _, exists := s.st.transcripts[transcript.CallID]; exists {
		return false, nil
	}
	if transcript.ID == "" {
		transcript.ID = uuid.New().String()
	}
	if transcript.WordCount == 0 {
		transcript.WordCount = len(strings.Fields(transcript.FullText))
	}
	transcript.CreatedAt = time.Now().UTC()
	s.st.transcripts[transcript.CallID] = *transcript
	return true, nil
}
