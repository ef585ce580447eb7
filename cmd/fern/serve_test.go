package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/review"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/syncer"
)

func memApp(store *memstore.Store) *app {
	logger := testinfra.Logger()
	a := &app{cfg: &config.Config{AppName: "fern-test"}, logger: logger}
	a.resolver = resolver.NewResolver(logger, resolver.Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
	})
	a.review = review.NewService(logger, review.Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
	}, a.resolver, review.Config{})
	a.merging = merging.NewService(logger, merging.Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
		Stories:      store.Stories(),
		CRMEvents:    store.CRMEvents(),
		AccessGrants: store.AccessGrants(),
		MergeRuns:    store.MergeRuns(),
		Approvals:    store.Approvals(),
	})
	a.syncer = syncer.NewSyncer(logger, syncer.Repositories{
		Transactor:   store,
		Integrations: store.Integrations(),
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
		Transcripts:  store.Transcripts(),
		CRMEvents:    store.CRMEvents(),
	}, providers.NewRegistry(), a.resolver, syncer.Config{})
	return a
}

func TestServerRoutes(t *testing.T) {
	store := memstore.New()
	store.SeedAccount("org-1", "Acme Corp", "acme.com")

	a := memApp(store)
	checker := health.NewChecker("test")
	checker.SetReady(true)

	e, err := newServer(context.Background(), a.cfg, a.logger, a, checker)
	require.NoError(t, err)

	get := func(path, org string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		if org != "" {
			req.Header.Set(middleware.HeaderOrganizationID, org)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	t.Run("health needs no organization", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/api/v1/health/live", "").Code)
		assert.Equal(t, http.StatusOK, get("/api/v1/health/ready", "").Code)
	})

	t.Run("metrics are exposed", func(t *testing.T) {
		rec := get("/metrics", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})

	t.Run("tenant routes require an organization", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, get("/api/v1/review/stats", "").Code)
	})

	t.Run("route groups are mounted", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get("/api/v1/review/stats", "org-1").Code)
		assert.Equal(t, http.StatusOK, get("/api/v1/review/calls", "org-1").Code)
		assert.Equal(t, http.StatusOK, get("/api/v1/accounts/merge-runs", "org-1").Code)
		assert.Equal(t, http.StatusOK, get("/api/v1/approvals", "org-1").Code)
	})
}
