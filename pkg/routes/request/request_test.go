package request

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fctx "github.com/Ramsey-B/fern/pkg/context"
)

type body struct {
	Name  string   `json:"name" validate:"required"`
	Items []string `json:"items" validate:"required,min=1,dive,uuid"`
}

func newContext(payload string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestBind(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		status  int
		message string
	}{
		{"valid", `{"name":"a","items":["6f1c8a8e-7d1f-4d7e-9c1a-0d2b6c1e4f00"]}`, 0, ""},
		{"malformed", `{"name":`, http.StatusBadRequest, "invalid request body"},
		{"missing name", `{"items":["6f1c8a8e-7d1f-4d7e-9c1a-0d2b6c1e4f00"]}`, http.StatusBadRequest, "field 'Name' failed rule 'required'"},
		{"empty items", `{"name":"a","items":[]}`, http.StatusBadRequest, "failed rule 'min=1'"},
		{"bad uuid", `{"name":"a","items":["nope"]}`, http.StatusBadRequest, "failed rule 'uuid'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Bind[body](newContext(tt.payload))
			if tt.status == 0 {
				require.NoError(t, err)
				assert.Equal(t, "a", got.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.status, httperror.GetStatusCode(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestOrganization(t *testing.T) {
	c := newContext("")
	_, err := Organization(c.Request().Context())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))

	ctx := fctx.SetOrganizationID(c.Request().Context(), "org-1")
	orgID, err := Organization(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgID)
	assert.Equal(t, "", User(ctx))
}
