package syncer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Limiters throttles provider requests with one token bucket per provider,
// shared by every config of that provider.
type Limiters struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[models.Provider]*rate.Limiter
}

// NewLimiters allows perSecond requests per provider. A non-positive rate disables throttling.
func NewLimiters(perSecond float64, burst int) *Limiters {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiters{
		limit:    limit,
		burst:    burst,
		limiters: map[models.Provider]*rate.Limiter{},
	}
}

func (l *Limiters) limiter(provider models.Provider) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[provider] = lim
	}
	return lim
}

// Wait blocks until provider may be called again.
func (l *Limiters) Wait(ctx context.Context, provider models.Provider) error {
	start := time.Now()
	err := l.limiter(provider).Wait(ctx)
	metrics.RateLimitWaitTime.WithLabelValues(string(provider)).Observe(time.Since(start).Seconds())
	return err
}

// For binds Wait to one provider, for adapters that page on their own.
func (l *Limiters) For(provider models.Provider) ProviderWaiter {
	return ProviderWaiter{limiters: l, provider: provider}
}

type ProviderWaiter struct {
	limiters *Limiters
	provider models.Provider
}

func (w ProviderWaiter) Wait(ctx context.Context) error {
	return w.limiters.Wait(ctx, w.provider)
}
