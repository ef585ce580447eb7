package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testinfra"
	"github.com/Ramsey-B/fern/pkg/dependencies"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/syncer"
)

type fakeSyncer struct {
	result *syncer.ConfigResult
	err    error
	gotOrg string
	gotID  string
}

func (f *fakeSyncer) SyncConfig(_ context.Context, orgID, configID string) (*syncer.ConfigResult, error) {
	f.gotOrg, f.gotID = orgID, configID
	return f.result, f.err
}

func serve(t *testing.T, path string, registrations ...dependencies.Registration) *httptest.ResponseRecorder {
	t.Helper()
	logger := testinfra.Logger()
	container, err := dependencies.NewContainer(t.Name(), logger, registrations...)
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context(), middleware.Container(container.GetContainerID()))
	Register(e.Group("/api/v1/integrations"))

	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.Header.Set(middleware.HeaderOrganizationID, "org-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSyncRoute(t *testing.T) {
	fake := &fakeSyncer{result: &syncer.ConfigResult{ConfigID: "cfg-1", Status: syncer.StatusError, Error: "upstream 500"}}
	rec := serve(t, "/api/v1/integrations/cfg-1/sync", dependencies.Instance[Syncer](fake))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "org-1", fake.gotOrg)
	assert.Equal(t, "cfg-1", fake.gotID)
	assert.Contains(t, rec.Body.String(), `"error":"upstream 500"`)
}

func TestSyncRoute_PassesThroughErrors(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusConflict} {
		fake := &fakeSyncer{err: httperror.NewHTTPError(status, "nope")}
		rec := serve(t, "/api/v1/integrations/cfg-1/sync", dependencies.Instance[Syncer](fake))
		assert.Equal(t, status, rec.Code)
	}
}

func TestSyncRoute_WithoutASyncer(t *testing.T) {
	rec := serve(t, "/api/v1/integrations/cfg-1/sync")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
