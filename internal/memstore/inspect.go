package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// AddStory seeds a story; stories are authored outside this service.
func (s *Store) AddStory(story models.Story) models.Story {
	s.mu.Lock()
	defer s.mu.Unlock()

	if story.ID == "" {
		story.ID = uuid.New().String()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = time.Now().UTC()
	}
	s.st.stories[story.ID] = story
	s.track(story.ID)
	return story
}

// SeedAccount stores an account; an empty domain leaves it without one.
func (s *Store) SeedAccount(orgID, name, domain string) models.Account {
	a := &models.Account{OrganizationID: orgID, Name: name}
	if domain != "" {
		a.Domain = &domain
	}
	stored, err := s.Accounts().Create(context.Background(), a)
	if err != nil {
		panic(err)
	}
	return *stored
}

func (s *Store) SeedAlias(orgID, accountID, domain string) models.AccountDomain {
	stored, err := s.Domains().Create(context.Background(), &models.AccountDomain{
		OrganizationID: orgID,
		AccountID:      accountID,
		Domain:         domain,
	})
	if err != nil {
		panic(err)
	}
	return *stored
}

func (s *Store) SeedContact(orgID, accountID, email string) models.Contact {
	stored, err := s.Contacts().Create(context.Background(), &models.Contact{
		OrganizationID: orgID,
		AccountID:      accountID,
		Email:          email,
	})
	if err != nil {
		panic(err)
	}
	return *stored
}

// SeedCall stores a new call with the given participants.
func (s *Store) SeedCall(orgID, title string, participants ...models.ParticipantInput) models.Call {
	ctx := context.Background()
	up, err := s.Calls().Upsert(ctx, &models.Call{
		OrganizationID: orgID,
		Provider:       models.ProviderGong,
		ExternalID:     uuid.New().String(),
		Title:          title,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		panic(err)
	}
	rows := make([]models.CallParticipant, 0, len(participants))
	for _, p := range participants {
		row := models.CallParticipant{CallID: up.Call.ID, IsHost: p.IsHost}
		if p.Email != "" {
			email := p.Email
			row.Email = &email
		}
		if p.Name != "" {
			name := p.Name
			row.Name = &name
		}
		rows = append(rows, row)
	}
	if err := s.Participants().CreateBatch(ctx, rows); err != nil {
		panic(err)
	}
	return *up.Call
}

func ordered[T any](s *Store, table map[string]T) []T {
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.sortBySeq(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id])
	}
	return out
}

func (s *Store) AllAccounts() []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.accounts)
}

func (s *Store) AllDomains() []models.AccountDomain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.domains)
}

func (s *Store) AllContacts() []models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.contacts)
}

func (s *Store) AllCalls() []models.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.calls)
}

func (s *Store) AllParticipants() []models.CallParticipant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.participants)
}

func (s *Store) AllTranscripts() []models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.transcripts)
}

func (s *Store) AllCRMEvents() []models.CRMEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.crmEvents)
}

func (s *Store) AllStories() []models.Story {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.stories)
}

func (s *Store) AllGrants() []models.AccessGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.grants)
}

func (s *Store) AllIntegrations() []models.IntegrationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ordered(s, s.st.integrations)
}
