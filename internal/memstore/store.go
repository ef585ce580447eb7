// Package memstore is an in-memory implementation of the repository interfaces
// with the same uniqueness and ordering rules as the postgres schema.
package memstore

import (
	"context"
	"maps"
	"net/http"
	"sort"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
)

type txKey struct{}

type state struct {
	accounts     map[string]models.Account
	domains      map[string]models.AccountDomain
	contacts     map[string]models.Contact
	calls        map[string]models.Call
	participants map[string]models.CallParticipant
	transcripts  map[string]models.Transcript
	crmEvents    map[string]models.CRMEvent
	stories      map[string]models.Story
	grants       map[string]models.AccessGrant
	integrations map[string]models.IntegrationConfig
	mergeRuns    map[string]models.MergeRun
	approvals    map[string]models.ApprovalRequest
	seq          map[string]int64
	next         int64
}

func newState() state {
	return state{
		accounts:     map[string]models.Account{},
		domains:      map[string]models.AccountDomain{},
		contacts:     map[string]models.Contact{},
		calls:        map[string]models.Call{},
		participants: map[string]models.CallParticipant{},
		transcripts:  map[string]models.Transcript{},
		crmEvents:    map[string]models.CRMEvent{},
		stories:      map[string]models.Story{},
		grants:       map[string]models.AccessGrant{},
		integrations: map[string]models.IntegrationConfig{},
		mergeRuns:    map[string]models.MergeRun{},
		approvals:    map[string]models.ApprovalRequest{},
		seq:          map[string]int64{},
	}
}

func (s state) clone() state {
	return state{
		accounts:     maps.Clone(s.accounts),
		domains:      maps.Clone(s.domains),
		contacts:     maps.Clone(s.contacts),
		calls:        maps.Clone(s.calls),
		participants: maps.Clone(s.participants),
		transcripts:  maps.Clone(s.transcripts),
		crmEvents:    maps.Clone(s.crmEvents),
		stories:      maps.Clone(s.stories),
		grants:       maps.Clone(s.grants),
		integrations: maps.Clone(s.integrations),
		mergeRuns:    maps.Clone(s.mergeRuns),
		approvals:    maps.Clone(s.approvals),
		seq:          maps.Clone(s.seq),
		next:         s.next,
	}
}

// Store holds every table in memory. It is safe for concurrent use; RunInTx
// restores the state it started from when fn fails.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       state
	failures map[string]error
	calls    map[string]int
}

func New() *Store {
	return &Store{
		st:       newState(),
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// FailOn makes the named operation (for example "CallRepo.Upsert") return err
// until ClearFailure is called.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) ClearFailure(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, op)
}

// CallCount reports how many times the named operation ran.
func (s *Store) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter locks the store and records the call. Callers must defer s.mu.Unlock().
func (s *Store) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	return s.failures[op]
}

func (s *Store) track(id string) {
	if _, ok := s.st.seq[id]; !ok {
		s.st.next++
		s.st.seq[id] = s.st.next
	}
}

func (s *Store) sortBySeq(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return s.st.seq[ids[i]] < s.st.seq[ids[j]] })
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func notFound(msg string) error {
	return httperror.NewHTTPError(http.StatusNotFound, msg)
}

func conflict(msg string) error {
	return httperror.NewHTTPError(http.StatusConflict, msg)
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Store) Accounts() repositories.AccountRepo { return accountRepo{s} }
func (s *Store) Domains() repositories.AccountDomainRepo { return domainRepo{s} }
func (s *Store) Contacts() repositories.ContactRepo { return contactRepo{s} }
func (s *Store) Calls() repositories.CallRepo { return callRepo{s} }
func (s *Store) Participants() repositories.ParticipantRepo { return participantRepo{s} }
func (s *Store) Transcripts() repositories.TranscriptRepo { return transcriptRepo{s} }
func (s *Store) CRMEvents() repositories.CRMEventRepo { return crmEventRepo{s} }
func (s *Store) Stories() repositories.StoryRepo { return storyRepo{s} }
func (s *Store) AccessGrants() repositories.AccessGrantRepo { return grantRepo{s} }
func (s *Store) Integrations() repositories.IntegrationRepo { return integrationRepo{s} }
func (s *Store) MergeRuns() repositories.MergeRunRepo { return mergeRunRepo{s} }
func (s *Store) Approvals() repositories.ApprovalRepo { return approvalRepo{s} }
