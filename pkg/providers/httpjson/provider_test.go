package httpjson

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func callDefinition(baseURL string) Definition {
	return Definition{
		Provider: models.ProviderGong,
		Category: models.IntegrationCategoryCallRecording,
		BaseURL:  baseURL,
		Auth:     &Auth{Header: "Authorization", Prefix: "Bearer ", Credential: "api_key"},
		Calls: &Endpoint{
			Path:        "/calls",
			CursorParam: "cursor",
			SinceParam:  "from",
			NextCursor:  "next",
			Mapping: Mapping{
				Records: "calls",
				Fields: map[string]Field{
					FieldExternalID:      {Expression: "id"},
					FieldTitle:           {Expression: "title", Normalizers: []string{"trim"}},
					FieldDurationSeconds: {Expression: "duration"},
					FieldOccurredAt:      {Expression: "started"},
					FieldTranscript:      {Expression: "transcript.text"},
				},
			},
			Participants: &Mapping{
				Records: "parties",
				Fields: map[string]Field{
					FieldEmail:  {Expression: "email", Normalizers: []string{"email"}},
					FieldName:   {Expression: "name"},
					FieldIsHost: {Expression: "host"},
				},
			},
		},
	}
}

func TestProvider_FetchCalls(t *testing.T) {
	var gotAuth, gotCursor, gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCursor = r.URL.Query().Get("cursor")
		gotFrom = r.URL.Query().Get("from")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"calls": [
				{"id": "c-1", "title": "  Acme intro ", "duration": 1800, "started": "2025-03-01T10:00:00Z",
				 "transcript": {"text": "hello there"},
				 "parties": [{"email": " Wile@Acme.com", "name": "Wile", "host": true}, {"email": null, "name": null}]},
				{"id": 42, "title": "Follow up", "started": 1740823200}
			],
			"next": "page-2"
		}`))
	}))
	defer server.Close()

	p := NewProvider(callDefinition(server.URL), testLogger())
	cursor := "page-1"
	since := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	page, err := p.FetchCalls(context.Background(), json.RawMessage(`{"api_key":"secret"}`), &cursor, &since)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "page-1", gotCursor)
	assert.Equal(t, "2025-02-01T00:00:00Z", gotFrom)

	require.Len(t, page.Data, 2)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "page-2", *page.NextCursor)
	assert.True(t, page.HasMore)

	first := page.Data[0]
	assert.Equal(t, "c-1", first.ExternalID)
	assert.Equal(t, "Acme intro", first.Title)
	assert.Equal(t, 1800, first.DurationSeconds)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), first.OccurredAt)
	require.NotNil(t, first.Transcript)
	assert.Equal(t, "hello there", first.Transcript.FullText)
	assert.Equal(t, []models.ParticipantInput{{Email: "wile@acme.com", Name: "Wile", IsHost: true}}, first.Participants)

	second := page.Data[1]
	assert.Equal(t, "42", second.ExternalID)
	assert.Nil(t, second.Transcript)
	assert.Equal(t, time.Unix(1740823200, 0).UTC(), second.OccurredAt)
}

func TestProvider_FetchCalls_Errors(t *testing.T) {
	t.Run("upstream error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		p := NewProvider(callDefinition(server.URL), testLogger())
		_, err := p.FetchCalls(context.Background(), json.RawMessage(`{"api_key":"k"}`), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("missing credential", func(t *testing.T) {
		p := NewProvider(callDefinition("http://127.0.0.1:1"), testLogger())
		_, err := p.FetchCalls(context.Background(), json.RawMessage(`{}`), nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})

	t.Run("record without id", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"calls": [{"title": "x", "started": "2025-03-01T10:00:00Z"}]}`))
		}))
		defer server.Close()

		p := NewProvider(callDefinition(server.URL), testLogger())
		_, err := p.FetchCalls(context.Background(), json.RawMessage(`{"api_key":"k"}`), nil, nil)
		require.Error(t, err)
	})
}

type countingWaiter struct{ calls int }

func (w *countingWaiter) Wait(context.Context) error {
	w.calls++
	return nil
}

func TestProvider_FetchAccountsFollowsCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			_, _ = w.Write([]byte(`{"results": [{"id": "1", "properties": {"name": "Acme", "domain": "ACME.com", "employees": "250"}}], "paging": {"next": {"after": "2"}}}`))
		default:
			_, _ = w.Write([]byte(`{"results": [{"id": "2", "properties": {"name": "Globex", "domain": null}}, {"id": "3", "properties": {}}]}`))
		}
	}))
	defer server.Close()

	def := Definition{
		Provider: models.ProviderHubspot,
		Category: models.IntegrationCategoryCRM,
		BaseURL:  server.URL,
		Accounts: &Endpoint{
			Path:        "/companies",
			CursorParam: "after",
			NextCursor:  "paging.next.after",
			Mapping: Mapping{
				Records: "results",
				Fields: map[string]Field{
					FieldExternalID:    {Expression: "id"},
					FieldName:          {Expression: "properties.name"},
					FieldDomain:        {Expression: "properties.domain", Normalizers: []string{"lowercase"}},
					FieldEmployeeCount: {Expression: "properties.employees"},
				},
			},
		},
	}
	waiter := &countingWaiter{}
	p := NewProvider(def, testLogger(), WithWaiter(waiter))

	accounts, err := p.FetchAccounts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, 2, waiter.calls)

	assert.Equal(t, "Acme", accounts[0].Name)
	require.NotNil(t, accounts[0].Domain)
	assert.Equal(t, "acme.com", *accounts[0].Domain)
	require.NotNil(t, accounts[0].EmployeeCount)
	assert.Equal(t, 250, *accounts[0].EmployeeCount)
	assert.Nil(t, accounts[1].Domain)
}

func TestParseDefinitions(t *testing.T) {
	t.Run("example file is valid", func(t *testing.T) {
		defs, err := LoadDefinitions(filepath.Join("..", "..", "..", "config", "providers.example.json"))
		require.NoError(t, err)
		require.Len(t, defs, 2)
		assert.Equal(t, models.ProviderGong, defs[0].Provider)
		assert.NotNil(t, defs[1].Opportunities)
	})

	t.Run("crm without endpoints rejected", func(t *testing.T) {
		_, err := ParseDefinitions([]byte(`[{"provider":"HUBSPOT","category":"CRM","base_url":"https://api.hubapi.com"}]`))
		assert.Error(t, err)
	})

	t.Run("unreadable file", func(t *testing.T) {
		_, err := LoadDefinitions(filepath.Join(t.TempDir(), "missing.json"))
		assert.Error(t, err)
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.yaml")
		doc := `
- provider: GONG
  category: CALL_RECORDING
  base_url: https://api.gong.io
  max_pages: 5
  calls:
    path: /v2/calls
    cursor_param: cursor
    next_cursor: records.cursor
    records: calls
    fields:
      external_id:
        expression: metaData.id
      title:
        expression: metaData.title
        normalizers: [trim]
`
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		defs, err := LoadDefinitions(path)
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Equal(t, models.ProviderGong, defs[0].Provider)
		assert.Equal(t, 5, defs[0].MaxPages)
		require.NotNil(t, defs[0].Calls)
		assert.Equal(t, "records.cursor", defs[0].Calls.NextCursor)
		assert.Equal(t, []string{"trim"}, defs[0].Calls.Fields[FieldTitle].Normalizers)
	})

	t.Run("yaml definitions are validated", func(t *testing.T) {
		_, err := ParseYAMLDefinitions([]byte("- provider: HUBSPOT\n  category: CRM\n  base_url: https://api.hubapi.com\n"))
		assert.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
		_, err := LoadDefinitions(path)
		assert.Error(t, err)
	})
}

func TestRegister(t *testing.T) {
	registry := providers.NewRegistry()
	Register(registry, []Definition{callDefinition("http://example.test")}, testLogger())

	_, ok := registry.CallProvider(models.ProviderGong)
	assert.True(t, ok)
	_, ok = registry.CRMProvider(models.ProviderGong)
	assert.False(t, ok)
}

func TestLedgerEventType(t *testing.T) {
	assert.Equal(t, models.CRMEventClosedWon, providers.CRMOpportunity{IsClosed: true, IsWon: true}.LedgerEventType())
	assert.Equal(t, models.CRMEventClosedLost, providers.CRMOpportunity{IsClosed: true}.LedgerEventType())
	assert.Equal(t, models.CRMEventStageChange, providers.CRMOpportunity{}.LedgerEventType())
	assert.Equal(t, models.CRMEventOpportunityCreated, providers.CRMOpportunity{EventType: models.CRMEventOpportunityCreated}.LedgerEventType())
}
