// Package scheduler runs a full integration sync on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/syncer"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var ErrSchedulerAlreadyRunning = errors.New("scheduler already running")

// DefaultInterval is the default time between sync runs.
const DefaultInterval = 15 * time.Minute

// SyncRunner is the part of the syncer the scheduler drives.
type SyncRunner interface {
	SyncAll(ctx context.Context) syncer.SyncReport
}

// Scheduler runs SyncAll immediately on start and then every interval.
// Cycles never overlap: a cycle that outlasts the interval delays the next one.
type Scheduler struct {
	runner   SyncRunner
	interval time.Duration
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	cancel   context.CancelFunc
	running  bool
	mu       sync.RWMutex
}

func NewScheduler(runner SyncRunner, interval time.Duration, logger ectologger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.logger.WithContext(ctx).Infof("Starting sync scheduler: interval=%s", s.interval)
	go s.pollLoop(loopCtx)
	return nil
}

// Stop cancels the running cycle and waits for the loop to exit. Progress of
// an interrupted cycle survives in the persisted sync cursors.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.cancel()
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping sync scheduler...")
	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Sync scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Sync scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runCycle(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.runCycle")
	defer span.End()

	metrics.SchedulerCyclesTotal.Inc()
	report := s.runner.SyncAll(ctx)
	s.logger.WithContext(ctx).Debugf("Sync cycle done: %d configs, %d failed, %d skipped",
		report.Total, report.Failed, report.Skipped)
}
