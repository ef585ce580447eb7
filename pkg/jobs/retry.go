package jobs

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
)

const (
	DefaultAttempts = 3
	DefaultBackoff  = 5 * time.Second
)

// RetryingPublisher retries a failed publish with exponential backoff:
// backoff, 2*backoff, 4*backoff...
type RetryingPublisher struct {
	next     Publisher
	attempts int
	backoff  time.Duration
	logger   ectologger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRetryingPublisher(next Publisher, attempts int, backoff time.Duration, logger ectologger.Logger) *RetryingPublisher {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &RetryingPublisher{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *RetryingPublisher) Publish(ctx context.Context, job ProcessingJob) error {
	var err error
	delay := p.backoff
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.next.Publish(ctx, job); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"call_id": job.CallID,
			"attempt": attempt,
		}).Warnf("Publishing processing job failed, retrying in %s", delay)
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}
	return err
}
