package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

const org = "org-1"

var syncedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeCallProvider struct {
	pages   map[string]*providers.CallPage
	err     error
	block   bool
	cursors []string
}

func (f *fakeCallProvider) FetchCalls(ctx context.Context, _ json.RawMessage, cursor *string, _ *time.Time) (*providers.CallPage, error) {
	key := ""
	if cursor != nil {
		key = *cursor
	}
	f.cursors = append(f.cursors, key)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	page, ok := f.pages[key]
	if !ok {
		return &providers.CallPage{}, nil
	}
	return page, nil
}

type fakeCRM struct {
	accounts      []providers.CRMAccount
	contacts      []providers.CRMContact
	opportunities []providers.CRMOpportunity
	order         []string
}

func (f *fakeCRM) FetchAccounts(context.Context, json.RawMessage) ([]providers.CRMAccount, error) {
	f.order = append(f.order, "accounts")
	return f.accounts, nil
}

func (f *fakeCRM) FetchContacts(context.Context, json.RawMessage) ([]providers.CRMContact, error) {
	f.order = append(f.order, "contacts")
	return f.contacts, nil
}

func (f *fakeCRM) FetchOpportunities(context.Context, json.RawMessage) ([]providers.CRMOpportunity, error) {
	f.order = append(f.order, "opportunities")
	return f.opportunities, nil
}

type recordingQueue struct {
	mu     sync.Mutex
	jobs   []jobs.ProcessingJob
	reject bool
}

func (q *recordingQueue) Enqueue(_ context.Context, job jobs.ProcessingJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

type fakeLocker struct {
	held     map[string]bool
	released []string
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	if l.held[key] {
		return nil, redis.ErrLockNotAcquired
	}
	return func(context.Context) error {
		l.released = append(l.released, key)
		return nil
	}, nil
}

type harness struct {
	store    *memstore.Store
	registry *providers.Registry
	queue    *recordingQueue
	syncer   *Syncer
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	store := memstore.New()
	registry := providers.NewRegistry()
	queue := &recordingQueue{}
	logger := testLogger()

	res := resolver.NewResolver(logger, resolver.Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
	})
	opts = append([]Option{WithJobQueue(queue), WithClock(func() time.Time { return syncedAt })}, opts...)
	s := NewSyncer(logger, Repositories{
		Transactor:   store,
		Integrations: store.Integrations(),
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
		Transcripts:  store.Transcripts(),
		CRMEvents:    store.CRMEvents(),
	}, registry, res, cfg, opts...)
	return &harness{store: store, registry: registry, queue: queue, syncer: s}
}

func (h *harness) config(t *testing.T, provider models.Provider, category models.IntegrationCategory) *models.IntegrationConfig {
	t.Helper()
	cfg, err := h.store.Integrations().Create(context.Background(), &models.IntegrationConfig{
		OrganizationID: org,
		Provider:       provider,
		Category:       category,
		Enabled:        true,
		Credentials:    []byte(`{"api_key":"k"}`),
	})
	require.NoError(t, err)
	return cfg
}

func (h *harness) reload(t *testing.T, id string) *models.IntegrationConfig {
	t.Helper()
	cfg, err := h.store.Integrations().Get(context.Background(), org, id)
	require.NoError(t, err)
	return cfg
}

func ptr[T any](v T) *T { return &v }

func twoPages() map[string]*providers.CallPage {
	return map[string]*providers.CallPage{
		"": {
			Data: []providers.NormalizedCall{{
				ExternalID: "g-1",
				Title:      "Acme discovery",
				OccurredAt: syncedAt.Add(-time.Hour),
				Participants: []models.ParticipantInput{
					{Email: "wile@acme.com", Name: "Wile", IsHost: true},
					{Email: "me@gmail.com", Name: "Rep"},
				},
				Transcript: &providers.NormalizedTranscript{FullText: "hello acme team"},
			}},
			NextCursor: ptr("p2"),
			HasMore:    true,
		},
		"p2": {
			Data: []providers.NormalizedCall{{
				ExternalID: "g-2",
				Title:      "Weekly standup",
				OccurredAt: syncedAt.Add(-2 * time.Hour),
			}},
		},
	}
}

func TestSyncAll_CallRecording(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	acme := h.store.SeedAccount(org, "Acme Corp", "acme.com")
	provider := &fakeCallProvider{pages: twoPages()}
	h.registry.RegisterCallProvider(models.ProviderGong, provider)
	cfg := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

	report := h.syncer.SyncAll(ctx)
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, report.Results, 1)
	counts := report.Results[0].Counts
	assert.Equal(t, 2, counts.CallsCreated)
	assert.Equal(t, 1, counts.CallsResolved)
	assert.Equal(t, 1, counts.TranscriptsStored)
	assert.Equal(t, 1, counts.JobsEnqueued)

	assert.Equal(t, []string{"", "p2"}, provider.cursors)
	assert.Equal(t, 1, h.store.CallCount("IntegrationRepo.UpdateCursor"))

	calls := h.store.AllCalls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[0].AccountID)
	assert.Equal(t, acme.ID, *calls[0].AccountID)
	assert.Equal(t, models.MatchMethodEmailDomain, calls[0].MatchMethod)
	assert.Nil(t, calls[1].AccountID)
	assert.Equal(t, models.MatchMethodNone, calls[1].MatchMethod)

	assert.Len(t, h.store.AllParticipants(), 2)
	assert.Len(t, h.store.AllTranscripts(), 1)
	require.Len(t, h.store.AllContacts(), 1)
	assert.Equal(t, "wile@acme.com", h.store.AllContacts()[0].Email)

	require.Len(t, h.queue.jobs, 1)
	job := h.queue.jobs[0]
	assert.Equal(t, calls[0].ID, job.CallID)
	assert.Equal(t, org, job.OrganizationID)
	require.NotNil(t, job.AccountID)
	assert.Equal(t, acme.ID, *job.AccountID)
	assert.True(t, job.HasTranscript)

	stored := h.reload(t, cfg.ID)
	assert.Equal(t, models.IntegrationStatusActive, stored.Status)
	assert.Nil(t, stored.SyncCursor)
	assert.Nil(t, stored.LastError)
	require.NotNil(t, stored.LastSyncAt)
	assert.Equal(t, syncedAt, *stored.LastSyncAt)
}

func TestSyncAll_ResyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.store.SeedAccount(org, "Acme Corp", "acme.com")
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
	h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

	h.syncer.SyncAll(ctx)
	report := h.syncer.SyncAll(ctx)

	counts := report.Results[0].Counts
	assert.Equal(t, 0, counts.CallsCreated)
	assert.Equal(t, 2, counts.CallsUpdated)
	assert.Equal(t, 0, counts.TranscriptsStored)
	assert.Len(t, h.store.AllCalls(), 2)
	assert.Len(t, h.store.AllParticipants(), 2)
	assert.Len(t, h.store.AllTranscripts(), 1)
	assert.Len(t, h.queue.jobs, 1)
}

func TestSyncAll_UnqueuedJobsAreReported(t *testing.T) {
	h := newHarness(t, Config{})
	h.queue.reject = true
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
	h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

	report := h.syncer.SyncAll(context.Background())
	require.Len(t, report.Results, 1)
	counts := report.Results[0].Counts
	assert.Equal(t, 1, counts.TranscriptsStored)
	assert.Zero(t, counts.JobsEnqueued)
	assert.Equal(t, 1, counts.JobsFailed)
}

func TestSyncAll_ManualResolutionIsKept(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.store.SeedAccount(org, "Acme Corp", "acme.com")
	chosen := h.store.SeedAccount(org, "Road Runner Inc", "roadrunner.com")
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
	h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

	h.syncer.SyncAll(ctx)
	first := h.store.AllCalls()[0]
	require.NoError(t, h.store.Calls().UpdateResolution(ctx, org, first.ID, &chosen.ID, models.MatchMethodManual, 1))

	h.syncer.SyncAll(ctx)
	after, err := h.store.Calls().Get(ctx, org, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodManual, after.MatchMethod)
	assert.Equal(t, chosen.ID, *after.AccountID)
}

func TestSyncAll_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{err: errors.New("upstream 503")})
	h.registry.RegisterCallProvider(models.ProviderZoom, &fakeCallProvider{pages: twoPages()})
	broken := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)
	healthy := h.config(t, models.ProviderZoom, models.IntegrationCategoryCallRecording)
	missing := h.config(t, models.ProviderChorus, models.IntegrationCategoryCallRecording)

	report := h.syncer.SyncAll(ctx)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	stored := h.reload(t, broken.ID)
	assert.Equal(t, models.IntegrationStatusError, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "upstream 503")

	assert.Contains(t, *h.reload(t, missing.ID).LastError, "no call recording provider")
	assert.Equal(t, models.IntegrationStatusActive, h.reload(t, healthy.ID).Status)

	t.Run("errored configs are retried next run", func(t *testing.T) {
		report := h.syncer.SyncAll(ctx)
		assert.Equal(t, 3, report.Total)
	})
}

func TestSyncAll_PerCallFailuresAreCounted(t *testing.T) {
	h := newHarness(t, Config{})
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
	cfg := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)
	h.store.FailOn("TranscriptRepo.Create", errors.New("disk full"))

	report := h.syncer.SyncAll(context.Background())
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusSuccess, report.Results[0].Status)
	assert.Equal(t, 1, report.Results[0].Counts.Failed)
	assert.Equal(t, 1, report.Results[0].Counts.CallsCreated)
	assert.Len(t, h.store.AllCalls(), 1, "failed call rolled back")
	assert.Equal(t, models.IntegrationStatusActive, h.reload(t, cfg.ID).Status)
}

func TestSyncAll_TimeBudget(t *testing.T) {
	h := newHarness(t, Config{ConfigTimeout: 20 * time.Millisecond})
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{block: true})
	cfg := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

	report := h.syncer.SyncAll(context.Background())
	assert.Equal(t, 1, report.Failed)
	stored := h.reload(t, cfg.ID)
	assert.Equal(t, models.IntegrationStatusError, stored.Status)
	assert.Contains(t, *stored.LastError, context.DeadlineExceeded.Error())
}

func TestSyncAll_CRM(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	globex := h.store.SeedAccount(org, "Globex", "globex.com")
	crm := &fakeCRM{
		accounts: []providers.CRMAccount{
			{ExternalID: "hs-1", Name: "Acme Corp", Domain: ptr("https://www.Acme.com"), EmployeeCount: ptr(250)},
			{ExternalID: "hs-2", Name: ""},
		},
		contacts: []providers.CRMContact{
			{ExternalID: "c-1", AccountExternalID: ptr("hs-1"), Email: "Wile@Acme.com", Name: ptr(" Wile ")},
			{ExternalID: "c-2", Email: "hank@globex.com"},
			{ExternalID: "c-3", Email: "nobody@unknown.io"},
			{ExternalID: "c-4", Email: "free@gmail.com"},
		},
		opportunities: []providers.CRMOpportunity{
			{ExternalID: "o-1", AccountExternalID: "hs-1", StageName: "Negotiation", Amount: ptr(1000.0)},
			{ExternalID: "o-1", AccountExternalID: "hs-1", StageName: "Closed Won", IsClosed: true, IsWon: true},
			{ExternalID: "o-2", AccountExternalID: "hs-404", StageName: "Discovery"},
		},
	}
	h.registry.RegisterCRMProvider(models.ProviderHubspot, crm)
	h.config(t, models.ProviderHubspot, models.IntegrationCategoryCRM)

	report := h.syncer.SyncAll(ctx)
	require.Len(t, report.Results, 1)
	result := report.Results[0]
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []string{"accounts", "contacts", "opportunities"}, crm.order)

	assert.Equal(t, 1, result.Counts.AccountsUpserted)
	assert.Equal(t, 1, result.Counts.Failed)
	assert.Equal(t, 2, result.Counts.ContactsUpserted)
	assert.Equal(t, 2, result.Counts.ContactsSkipped)
	assert.Equal(t, 2, result.Counts.EventsCreated)
	assert.Equal(t, 1, result.Counts.EventsSkipped)

	acme, err := h.store.Accounts().GetByCRMID(ctx, org, models.ProviderHubspot, "hs-1")
	require.NoError(t, err)
	require.NotNil(t, acme.Domain)
	assert.Equal(t, "acme.com", *acme.Domain)

	byEmail := map[string]models.Contact{}
	for _, c := range h.store.AllContacts() {
		byEmail[c.Email] = c
	}
	assert.Equal(t, acme.ID, byEmail["wile@acme.com"].AccountID)
	assert.Equal(t, "Wile", *byEmail["wile@acme.com"].Name)
	assert.Equal(t, globex.ID, byEmail["hank@globex.com"].AccountID)

	events := h.store.AllCRMEvents()
	require.Len(t, events, 2)
	assert.Equal(t, models.CRMEventStageChange, events[0].EventType)
	assert.Equal(t, models.CRMEventClosedWon, events[1].EventType)

	t.Run("second run suppresses duplicate events", func(t *testing.T) {
		report := h.syncer.SyncAll(ctx)
		assert.Equal(t, 0, report.Results[0].Counts.EventsCreated)
		assert.Equal(t, 2, report.Results[0].Counts.EventsDuplicate)
		assert.Len(t, h.store.AllCRMEvents(), 2)
		assert.Len(t, h.store.AllAccounts(), 2)
	})
}

func TestSyncAll_CRMAdoptsDomainOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	acme := h.store.SeedAccount(org, "Acme", "acme.com")
	initech := h.store.SeedAccount(org, "Initech", "initech.com")
	h.store.SeedAlias(org, initech.ID, "initech.io")
	globex := h.store.SeedAccount(org, "Globex", "globex.com")
	require.NoError(t, h.store.Accounts().UpdateCRMIDs(ctx, org, globex.ID, nil, ptr("hs-9")))

	crm := &fakeCRM{
		accounts: []providers.CRMAccount{
			{ExternalID: "hs-1", Name: "Acme Corporation", Domain: ptr("acme.com")},
			{ExternalID: "hs-2", Name: "Initech", Domain: ptr("initech.io")},
			{ExternalID: "hs-3", Name: "Globex Duplicate", Domain: ptr("globex.com")},
		},
		opportunities: []providers.CRMOpportunity{
			{ExternalID: "o-1", AccountExternalID: "hs-1", StageName: "Discovery"},
		},
	}
	h.registry.RegisterCRMProvider(models.ProviderHubspot, crm)
	h.config(t, models.ProviderHubspot, models.IntegrationCategoryCRM)

	report := h.syncer.SyncAll(ctx)
	require.Len(t, report.Results, 1)
	counts := report.Results[0].Counts
	assert.Equal(t, StatusSuccess, report.Results[0].Status)
	assert.Equal(t, 2, counts.AccountsUpserted)
	assert.Equal(t, 2, counts.AccountsAdopted)
	assert.Equal(t, 1, counts.Failed, "globex already carries another hubspot id")
	assert.Equal(t, 1, counts.EventsCreated)
	assert.Len(t, h.store.AllAccounts(), 3)

	linked, err := h.store.Accounts().GetByCRMID(ctx, org, models.ProviderHubspot, "hs-1")
	require.NoError(t, err)
	assert.Equal(t, acme.ID, linked.ID)
	assert.Equal(t, "Acme Corporation", linked.Name)
	assert.Equal(t, "acme.com", *linked.Domain)

	byAlias, err := h.store.Accounts().GetByCRMID(ctx, org, models.ProviderHubspot, "hs-2")
	require.NoError(t, err)
	assert.Equal(t, initech.ID, byAlias.ID)
	assert.Equal(t, "initech.com", *byAlias.Domain, "alias domain stays an alias")

	events := h.store.AllCRMEvents()
	require.Len(t, events, 1)
	assert.Equal(t, acme.ID, events[0].AccountID)

	t.Run("later runs update the adopted accounts in place", func(t *testing.T) {
		report := h.syncer.SyncAll(ctx)
		counts := report.Results[0].Counts
		assert.Equal(t, 2, counts.AccountsUpserted)
		assert.Zero(t, counts.AccountsAdopted)
		assert.Equal(t, 1, counts.EventsDuplicate)
		assert.Len(t, h.store.AllAccounts(), 3)

		again, err := h.store.Accounts().Get(ctx, org, initech.ID)
		require.NoError(t, err)
		assert.Equal(t, "initech.com", *again.Domain)
	})
}

func TestSyncAll_CRMLeavesThrottlingToTheProvider(t *testing.T) {
	// one token and no refill: a second wait by the syncer would blow the budget
	h := newHarness(t, Config{ConfigTimeout: 200 * time.Millisecond}, WithLimiters(NewLimiters(0.001, 1)))
	h.registry.RegisterCRMProvider(models.ProviderHubspot, &fakeCRM{})
	h.config(t, models.ProviderHubspot, models.IntegrationCategoryCRM)

	report := h.syncer.SyncAll(context.Background())
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusSuccess, report.Results[0].Status, report.Results[0].Error)
}

func TestSyncAll_CRMWithoutAccountColumn(t *testing.T) {
	h := newHarness(t, Config{})
	h.registry.RegisterCRMProvider(models.ProviderMergeDev, &fakeCRM{})
	cfg := h.config(t, models.ProviderMergeDev, models.IntegrationCategoryCRM)

	report := h.syncer.SyncAll(context.Background())
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, *h.reload(t, cfg.ID).LastError, "no account id column")
}

func TestSyncConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("runs one config", func(t *testing.T) {
		h := newHarness(t, Config{})
		h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
		cfg := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)

		result, err := h.syncer.SyncConfig(ctx, org, cfg.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, result.Status)
		assert.Equal(t, 2, result.Counts.CallsCreated)
	})

	t.Run("unknown config", func(t *testing.T) {
		h := newHarness(t, Config{})
		_, err := h.syncer.SyncConfig(ctx, org, "missing")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("disabled config", func(t *testing.T) {
		h := newHarness(t, Config{})
		cfg, err := h.store.Integrations().Create(ctx, &models.IntegrationConfig{
			OrganizationID: org,
			Provider:       models.ProviderGong,
			Category:       models.IntegrationCategoryCallRecording,
		})
		require.NoError(t, err)
		_, err = h.syncer.SyncConfig(ctx, org, cfg.ID)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})
}

func TestSyncLocking(t *testing.T) {
	ctx := context.Background()
	locker := &fakeLocker{held: map[string]bool{}}
	h := newHarness(t, Config{}, WithLocker(locker))
	h.registry.RegisterCallProvider(models.ProviderGong, &fakeCallProvider{pages: twoPages()})
	busy := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)
	free := h.config(t, models.ProviderGong, models.IntegrationCategoryCallRecording)
	locker.held[lockKeyPrefix+busy.ID] = true

	report := h.syncer.SyncAll(ctx)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{lockKeyPrefix + free.ID}, locker.released)
	assert.Nil(t, h.reload(t, busy.ID).LastSyncAt)

	_, err := h.syncer.SyncConfig(ctx, org, busy.ID)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestLimiters(t *testing.T) {
	t.Run("unlimited when rate is not positive", func(t *testing.T) {
		l := NewLimiters(0, 0)
		for i := 0; i < 100; i++ {
			require.NoError(t, l.Wait(context.Background(), models.ProviderGong))
		}
	})

	t.Run("providers have separate buckets", func(t *testing.T) {
		l := NewLimiters(0.001, 1)
		require.NoError(t, l.Wait(context.Background(), models.ProviderGong))
		require.NoError(t, l.For(models.ProviderZoom).Wait(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.Error(t, l.Wait(ctx, models.ProviderGong))
	})
}
