package approval

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/memstore"
	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/dependencies"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
)

const org = "org-1"

func newServer(t *testing.T, store *memstore.Store) *echo.Echo {
	t.Helper()
	logger := testinfra.Logger()
	workflow := merging.NewService(logger, merging.Repositories{
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
	}, merging.WithApprovalRequired(true))

	container, err := dependencies.NewContainer(t.Name(), logger, dependencies.Instance[Workflow](workflow))
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context(), middleware.Container(container.GetContainerID()))
	Register(e.Group("/api/v1/approvals"))
	return e
}

func do(e *echo.Echo, user, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(middleware.HeaderOrganizationID, org)
	req.Header.Set(middleware.HeaderUserID, user)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestApprovalRoutes(t *testing.T) {
	store := memstore.New()
	source := store.SeedAccount(org, "Acme Old", "acme-old.com")
	target := store.SeedAccount(org, "Acme", "acme.com")
	e := newServer(t, store)

	rec := do(e, "alice", http.MethodPost, "/api/v1/approvals/merge",
		`{"source_account_id":"`+source.ID+`","target_account_id":"`+target.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var request models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &request))
	assert.Equal(t, "alice", request.RequestedBy)

	rec = do(e, "alice", http.MethodGet, "/api/v1/approvals?status=PENDING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Len(t, pending, 1)

	rec = do(e, "alice", http.MethodPost, "/api/v1/approvals/"+request.ID+"/approve", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(e, "bob", http.MethodPost, "/api/v1/approvals/"+request.ID+"/approve", `{"notes":"same company"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.Equal(t, models.ApprovalStatusApproved, approved.Status)
	require.NotNil(t, approved.MergeRunID)
	require.NotNil(t, approved.ReviewNotes)
	assert.Equal(t, "same company", *approved.ReviewNotes)
	assert.Len(t, store.AllAccounts(), 1)

	rec = do(e, "bob", http.MethodPost, "/api/v1/approvals/"+request.ID+"/reject", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(e, "bob", http.MethodGet, "/api/v1/approvals?status=DONE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApprovalRoutes_Reject(t *testing.T) {
	store := memstore.New()
	source := store.SeedAccount(org, "Acme Old", "acme-old.com")
	target := store.SeedAccount(org, "Acme", "acme.com")
	e := newServer(t, store)

	rec := do(e, "alice", http.MethodPost, "/api/v1/approvals/merge",
		`{"source_account_id":"`+source.ID+`","target_account_id":"`+target.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var request models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &request))

	rec = do(e, "bob", http.MethodPost, "/api/v1/approvals/"+request.ID+"/reject", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, "bob", http.MethodGet, "/api/v1/approvals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, models.ApprovalStatusRejected, all[0].Status)
	assert.Len(t, store.AllAccounts(), 2)
}
