package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/pkg/models"
)

const org = "org-1"

func newTestResolver(store *memstore.Store) *Resolver {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewResolver(logger, Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
	})
}

func people(emails ...string) []models.ParticipantInput {
	out := make([]models.ParticipantInput, 0, len(emails))
	for _, e := range emails {
		out = append(out, models.ParticipantInput{Email: e})
	}
	return out
}

func TestResolve_DomainTiers(t *testing.T) {
	store := memstore.New()
	acme := store.SeedAccount(org, "Acme Corp", "acme.com")
	globex := store.SeedAccount(org, "Globex", "globex.com")
	store.SeedAlias(org, globex.ID, "globex.io")
	initech := store.SeedAccount(org, "Initech", "")
	store.SeedContact(org, initech.ID, "peter@initech.com")
	r := newTestResolver(store)

	tests := []struct {
		name         string
		participants []models.ParticipantInput
		wantAccount  string
		wantScore    float64
	}{
		{"primary domain", people("wile@Acme.com"), acme.ID, ConfidencePrimaryDomain},
		{"alias domain", people("hank@globex.io"), globex.ID, ConfidenceAliasDomain},
		{"contact domain", people("bill@initech.com"), initech.ID, ConfidenceContactDomain},
		{"primary beats alias", people("hank@globex.io", "wile@acme.com"), acme.ID, ConfidencePrimaryDomain},
		{"alias beats contact", people("bill@initech.com", "hank@globex.io"), globex.ID, ConfidenceAliasDomain},
		{"free mail ignored", people("someone@gmail.com", "wile@acme.com"), acme.ID, ConfidencePrimaryDomain},
		{"malformed ignored", people("bad@@acme.com", "bill@initech.com"), initech.ID, ConfidenceContactDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(context.Background(), org, tt.participants, "")
			require.NoError(t, err)
			assert.Equal(t, tt.wantAccount, res.AccountID)
			assert.Equal(t, tt.wantScore, res.Confidence)
			assert.Equal(t, models.ResolutionMethodEmailDomain, res.Method)
		})
	}
}

func TestResolve_EmailHitSkipsFuzzyTier(t *testing.T) {
	store := memstore.New()
	store.SeedAccount(org, "Acme Corp", "acme.com")
	r := newTestResolver(store)

	_, err := r.Resolve(context.Background(), org, people("wile@acme.com"), "Acme sync")
	require.NoError(t, err)
	assert.Zero(t, store.CallCount("AccountRepo.ListByOrganization"))
}

func TestResolve_FuzzyName(t *testing.T) {
	store := memstore.New()
	acme := store.SeedAccount(org, "Acme Corp", "acme.com")
	store.SeedAccount(org, "Globex Corporation", "globex.com")
	r := newTestResolver(store)

	t.Run("title contains account name", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), org, people("road@gmail.com"), "Discovery call - ACME, Inc.")
		require.NoError(t, err)
		assert.Equal(t, acme.ID, res.AccountID)
		assert.Equal(t, models.ResolutionMethodFuzzyName, res.Method)
		assert.Equal(t, MaxFuzzyConfidence, res.Confidence)
	})

	t.Run("participant name is a candidate", func(t *testing.T) {
		participants := []models.ParticipantInput{{Email: "x@yahoo.com", Name: "Globx"}}
		res, err := r.Resolve(context.Background(), org, participants, "")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionMethodFuzzyName, res.Method)
		assert.NotEqual(t, acme.ID, res.AccountID)
		assert.LessOrEqual(t, res.Confidence, MaxFuzzyConfidence)
	})

	t.Run("nothing close enough", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), org, nil, "Weekly standup")
		require.NoError(t, err)
		assert.Equal(t, models.ResolutionMethodNone, res.Method)
		assert.Empty(t, res.AccountID)
		assert.Zero(t, res.Confidence)
	})

	t.Run("short candidates dropped", func(t *testing.T) {
		res, err := r.Resolve(context.Background(), org, []models.ParticipantInput{{Name: "A"}}, "")
		require.NoError(t, err)
		assert.False(t, res.Matched())
	})
}

func TestResolve_NoAccounts(t *testing.T) {
	r := newTestResolver(memstore.New())

	res, err := r.Resolve(context.Background(), org, people("a@acme.com"), "Acme")
	require.NoError(t, err)
	assert.Equal(t, models.NoResolution(), res)
}

func TestResolve_OrganizationsAreIsolated(t *testing.T) {
	store := memstore.New()
	store.SeedAccount("org-2", "Acme Corp", "acme.com")
	r := newTestResolver(store)

	res, err := r.Resolve(context.Background(), org, people("wile@acme.com"), "Acme")
	require.NoError(t, err)
	assert.False(t, res.Matched())
}

func TestResolve_StorageError(t *testing.T) {
	store := memstore.New()
	store.FailOn("AccountRepo.FindByPrimaryDomains", errors.New("boom"))
	r := newTestResolver(store)

	_, err := r.Resolve(context.Background(), org, people("wile@acme.com"), "")
	assert.Error(t, err)
}

func TestResolveAndLinkContacts(t *testing.T) {
	ctx := context.Background()

	t.Run("links contacts and stamps the call", func(t *testing.T) {
		store := memstore.New()
		acme := store.SeedAccount(org, "Acme Corp", "acme.com")
		participants := []models.ParticipantInput{
			{Email: "Wile@Acme.com", Name: "Wile E.", IsHost: true},
			{Email: "rr@gmail.com", Name: "Road Runner"},
		}
		call := store.SeedCall(org, "Intro", participants...)
		r := newTestResolver(store)

		res, err := r.ResolveAndLinkContacts(ctx, org, call.ID, participants, call.Title)
		require.NoError(t, err)
		assert.Equal(t, acme.ID, res.AccountID)

		stored, err := store.Calls().Get(ctx, org, call.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.AccountID)
		assert.Equal(t, acme.ID, *stored.AccountID)
		assert.Equal(t, models.MatchMethodEmailDomain, stored.MatchMethod)
		assert.Equal(t, ConfidencePrimaryDomain, stored.MatchConfidence)

		contacts := store.AllContacts()
		require.Len(t, contacts, 1)
		assert.Equal(t, "wile@acme.com", contacts[0].Email)
		assert.Equal(t, "acme.com", contacts[0].EmailDomain)
		require.NotNil(t, contacts[0].Name)
		assert.Equal(t, "Wile E.", *contacts[0].Name)

		rows, err := store.Participants().ListByCall(ctx, call.ID)
		require.NoError(t, err)
		require.NotNil(t, rows[0].ContactID)
		assert.Equal(t, contacts[0].ID, *rows[0].ContactID)
		assert.Nil(t, rows[1].ContactID)
	})

	t.Run("repeat runs update the contact name", func(t *testing.T) {
		store := memstore.New()
		store.SeedAccount(org, "Acme Corp", "acme.com")
		call := store.SeedCall(org, "Intro", models.ParticipantInput{Email: "wile@acme.com"})
		r := newTestResolver(store)

		_, err := r.ResolveAndLinkContacts(ctx, org, call.ID, people("wile@acme.com"), "")
		require.NoError(t, err)
		_, err = r.ResolveAndLinkContacts(ctx, org, call.ID, []models.ParticipantInput{{Email: "wile@acme.com", Name: "Wile"}}, "")
		require.NoError(t, err)

		contacts := store.AllContacts()
		require.Len(t, contacts, 1)
		require.NotNil(t, contacts[0].Name)
		assert.Equal(t, "Wile", *contacts[0].Name)
	})

	t.Run("unresolved call untouched", func(t *testing.T) {
		store := memstore.New()
		call := store.SeedCall(org, "Weekly standup", models.ParticipantInput{Email: "a@gmail.com"})
		r := newTestResolver(store)

		res, err := r.ResolveAndLinkContacts(ctx, org, call.ID, people("a@gmail.com"), call.Title)
		require.NoError(t, err)
		assert.False(t, res.Matched())
		assert.Zero(t, store.CallCount("CallRepo.UpdateResolution"))
		assert.Empty(t, store.AllContacts())
	})

	t.Run("failed call update rolls back contacts", func(t *testing.T) {
		store := memstore.New()
		store.SeedAccount(org, "Acme Corp", "acme.com")
		call := store.SeedCall(org, "Intro", models.ParticipantInput{Email: "wile@acme.com"})
		store.FailOn("CallRepo.UpdateResolution", errors.New("boom"))
		r := newTestResolver(store)

		_, err := r.ResolveAndLinkContacts(ctx, org, call.ID, people("wile@acme.com"), "")
		require.Error(t, err)
		assert.Empty(t, store.AllContacts())
	})
}
