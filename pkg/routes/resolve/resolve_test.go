package resolve

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
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
)

func TestResolveRoute(t *testing.T) {
	store := memstore.New()
	acme := store.SeedAccount("org-1", "Acme Corp", "acme.com")
	logger := testinfra.Logger()
	res := resolver.NewResolver(logger, resolver.Repositories{
		Transactor:   store,
		Accounts:     store.Accounts(),
		Domains:      store.Domains(),
		Contacts:     store.Contacts(),
		Calls:        store.Calls(),
		Participants: store.Participants(),
	})

	container, err := dependencies.NewContainer(t.Name(), logger, dependencies.Instance[Resolver](res))
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context(), middleware.Container(container.GetContainerID()))
	Register(e.Group("/api/v1"))

	tests := []struct {
		name       string
		body       string
		wantMethod models.ResolutionMethod
		wantID     string
	}{
		{"email domain", `{"participants":[{"email":"wile@acme.com"}]}`, models.ResolutionMethodEmailDomain, acme.ID},
		{"title", `{"participants":[{"email":"me@gmail.com"}],"call_title":"Acme Corp"}`, models.ResolutionMethodFuzzyName, acme.ID},
		{"nothing", `{"participants":[]}`, models.ResolutionMethodNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/resolve", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.Header.Set(middleware.HeaderOrganizationID, "org-1")
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var got models.Resolution
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantMethod, got.Method)
			assert.Equal(t, tt.wantID, got.AccountID)
		})
	}
	assert.Empty(t, store.AllContacts())
}
