package jobs

import (
	"context"
	"errors"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
)

// DefaultBufferSize is the default number of jobs held while the publisher is busy.
const DefaultBufferSize = 256

// Dispatcher decouples callers from the publisher. Jobs are published by a
// background worker; a full buffer holds Enqueue back until the worker catches
// up, so a slow broker slows the caller down instead of losing jobs.
type Dispatcher struct {
	publisher Publisher
	backend   string
	logger    ectologger.Logger

	jobsCh   chan ProcessingJob
	stopCh   chan struct{}
	stoppedC chan struct{}

	running bool
	mu      sync.RWMutex
	senders sync.WaitGroup
}

func NewDispatcher(publisher Publisher, backend string, bufferSize int, logger ectologger.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		publisher: publisher,
		backend:   backend,
		logger:    logger,
		jobsCh:    make(chan ProcessingJob, bufferSize),
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
	}
}

// Start launches the publishing worker. ctx bounds every publish.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return errors.New("dispatcher already running")
	}
	d.running = true

	go d.worker(ctx)
	return nil
}

// Stop drains queued jobs and waits for the worker, or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	select {
	case <-d.stoppedC:
		return nil
	case <-ctx.Done():
		d.logger.WithContext(ctx).Warn("Job dispatcher shutdown timed out")
		return ctx.Err()
	}
}

// Enqueue queues job for publishing, waiting for buffer space while the
// publisher is behind. It reports false when ctx ended or the dispatcher
// stopped before the job could be queued.
func (d *Dispatcher) Enqueue(ctx context.Context, job ProcessingJob) bool {
	d.mu.RLock()
	if !d.running {
		d.mu.RUnlock()
		d.drop(ctx, job, "dispatcher not running")
		return false
	}
	d.senders.Add(1)
	d.mu.RUnlock()
	defer d.senders.Done()

	select {
	case d.jobsCh <- job:
		return true
	default:
	}

	d.logger.WithContext(ctx).WithField("call_id", job.CallID).Debug("Processing job buffer is full, waiting")
	select {
	case d.jobsCh <- job:
		return true
	case <-ctx.Done():
		d.drop(ctx, job, ctx.Err().Error())
		return false
	case <-d.stopCh:
		d.drop(ctx, job, "dispatcher stopping")
		return false
	}
}

func (d *Dispatcher) drop(ctx context.Context, job ProcessingJob, reason string) {
	metrics.JobsPublished.WithLabelValues(d.backend, metrics.StatusSkipped).Inc()
	d.logger.WithContext(ctx).WithFields(map[string]any{
		"call_id": job.CallID,
		"reason":  reason,
	}).Warn("Dropped processing job")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer close(d.stoppedC)
	for {
		select {
		case job := <-d.jobsCh:
			d.publish(ctx, job)
		case <-d.stopCh:
			d.drain(ctx)
			return
		}
	}
}

// drain publishes what is buffered, including jobs from senders that were
// still waiting when Stop was called.
func (d *Dispatcher) drain(ctx context.Context) {
	sendersDone := make(chan struct{})
	go func() {
		d.senders.Wait()
		close(sendersDone)
	}()
	for {
		select {
		case job := <-d.jobsCh:
			d.publish(ctx, job)
		case <-sendersDone:
			for {
				select {
				case job := <-d.jobsCh:
					d.publish(ctx, job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, job ProcessingJob) {
	if err := d.publisher.Publish(ctx, job); err != nil {
		metrics.JobsPublished.WithLabelValues(d.backend, metrics.StatusError).Inc()
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"call_id":         job.CallID,
			"organization_id": job.OrganizationID,
		}).Error("Failed to publish processing job")
		return
	}
	metrics.JobsPublished.WithLabelValues(d.backend, metrics.StatusSuccess).Inc()
}
