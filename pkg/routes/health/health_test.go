package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	healthy := PingFunc(func(context.Context) error { return nil })
	broken := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]Pinger
		status int
		body   string
	}{
		{"all healthy", map[string]Pinger{"database": healthy, "redis": healthy}, http.StatusOK, "healthy"},
		{"one down", map[string]Pinger{"database": healthy, "redis": broken}, http.StatusServiceUnavailable, "unhealthy"},
		{"no checks", nil, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("test")
			for name, p := range tt.checks {
				c.AddCheck(name, p)
			}
			e := echo.New()
			c.RegisterRoutes(e)

			rec := get(e, "/api/v1/health")
			assert.Equal(t, tt.status, rec.Code)
			var got HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.body, got.Status)
			assert.Len(t, got.Checks, len(tt.checks))
		})
	}
}

func TestLiveAndReady(t *testing.T) {
	c := NewChecker("test")
	e := echo.New()
	c.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/v1/health/ready").Code)
	c.SetReady(true)
	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/ready").Code)
}
