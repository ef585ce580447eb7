package httpjson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum response body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// Waiter blocks until the next request may be sent. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

type Option func(*Provider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.client = client
	}
}

// WithWaiter throttles every request through w.
func WithWaiter(w Waiter) Option {
	return func(p *Provider) {
		p.waiter = w
	}
}

// Provider implements providers.CallRecordingProvider and providers.CRMProvider
// for one Definition.
type Provider struct {
	def    Definition
	client *http.Client
	waiter Waiter
	eval   *evaluator
	logger ectologger.Logger
}

func NewProvider(def Definition, logger ectologger.Logger, opts ...Option) *Provider {
	if def.MaxPages == 0 {
		def.MaxPages = defaultMaxPages
	}
	p := &Provider{
		def:    def,
		client: &http.Client{Timeout: DefaultTimeout},
		eval:   newEvaluator(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds a provider for every definition to the registry under its category.
func Register(registry *providers.Registry, defs []Definition, logger ectologger.Logger, opts ...Option) {
	for _, def := range defs {
		p := NewProvider(def, logger, opts...)
		switch def.Category {
		case models.IntegrationCategoryCallRecording:
			registry.RegisterCallProvider(def.Provider, p)
		case models.IntegrationCategoryCRM:
			registry.RegisterCRMProvider(def.Provider, p)
		}
	}
}

// page is one decoded response.
type page struct {
	records    []any
	nextCursor *string
	hasMore    bool
}

func (p *Provider) fetchPage(ctx context.Context, ep *Endpoint, credentials json.RawMessage, cursor *string, since *time.Time) (*page, error) {
	ctx, span := tracing.StartSpan(ctx, "httpjson.Provider.fetchPage")
	defer span.End()

	if ep == nil {
		return nil, fmt.Errorf("provider %s has no endpoint for this record kind", p.def.Provider)
	}

	u, err := url.Parse(strings.TrimRight(p.def.BaseURL, "/") + "/" + strings.TrimLeft(ep.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}
	q := u.Query()
	if cursor != nil && *cursor != "" && ep.CursorParam != "" {
		q.Set(ep.CursorParam, *cursor)
	}
	if since != nil && ep.SinceParam != "" {
		q.Set(ep.SinceParam, since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := p.authorize(req, credentials); err != nil {
		return nil, err
	}

	if p.waiter != nil {
		if err := p.waiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("HTTP request failed: %s %s", req.Method, u.Path)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response body too large: %d bytes (max %d)", len(body), MaxResponseSize)
	}

	p.logger.WithContext(ctx).Debugf("HTTP %s %s -> %d (%s)", req.Method, u.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("provider %s returned %d: %s", p.def.Provider, resp.StatusCode, truncate(string(body), 200))
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	records, err := p.eval.slice(ep.Records, doc)
	if err != nil {
		return nil, err
	}
	out := &page{records: records}

	if ep.NextCursor != "" {
		next, err := (record{eval: p.eval, data: doc, fields: map[string]Field{"next": {Expression: ep.NextCursor}}}).optStr("next")
		if err != nil {
			return nil, err
		}
		out.nextCursor = next
		out.hasMore = next != nil
	}
	if ep.HasMore != "" {
		more, err := (record{eval: p.eval, data: doc, fields: map[string]Field{"more": {Expression: ep.HasMore}}}).boolean("more")
		if err != nil {
			return nil, err
		}
		out.hasMore = more && out.nextCursor != nil
	}
	return out, nil
}

func (p *Provider) authorize(req *http.Request, credentials json.RawMessage) error {
	auth := p.def.Auth
	if auth == nil || auth.Header == "" || auth.Credential == "" {
		return nil
	}
	var doc any
	if len(credentials) > 0 {
		if err := json.Unmarshal(credentials, &doc); err != nil {
			return fmt.Errorf("credentials are not a JSON document: %w", err)
		}
	}
	value, err := (record{eval: p.eval, data: doc, fields: map[string]Field{"credential": {Expression: auth.Credential}}}).str("credential")
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("credentials for %s are missing %q", p.def.Provider, auth.Credential)
	}
	req.Header.Set(auth.Header, auth.Prefix+value)
	return nil
}

// fetchAll follows cursors until the endpoint reports no more pages or MaxPages is reached.
func (p *Provider) fetchAll(ctx context.Context, ep *Endpoint, credentials json.RawMessage, each func(record) error) error {
	var cursor *string
	for i := 0; i < p.def.MaxPages; i++ {
		pg, err := p.fetchPage(ctx, ep, credentials, cursor, nil)
		if err != nil {
			return err
		}
		for _, data := range pg.records {
			if err := each(record{eval: p.eval, data: data, fields: ep.Fields}); err != nil {
				return err
			}
		}
		if !pg.hasMore {
			return nil
		}
		cursor = pg.nextCursor
	}
	p.logger.WithContext(ctx).WithField("provider", p.def.Provider).Warnf("Stopped paging after %d pages", p.def.MaxPages)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
