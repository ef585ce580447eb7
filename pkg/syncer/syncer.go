// Package syncer pulls calls and CRM records from every enabled integration
// into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/jobs"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultConfigTimeout bounds a single config's sync when none is configured.
const DefaultConfigTimeout = 10 * time.Minute

const lockKeyPrefix = "sync:config:"

// Result statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
	StatusSkipped = "SKIPPED"
)

// CallResolver links a stored call to an account.
type CallResolver interface {
	ResolveAndLinkContacts(ctx context.Context, orgID, callID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error)
}

// JobQueue accepts processing jobs. Enqueue may wait for room and reports
// false when the job could not be queued before ctx ended.
type JobQueue interface {
	Enqueue(ctx context.Context, job jobs.ProcessingJob) bool
}

// Locker hands out per-config locks. A held lock yields redis.ErrLockNotAcquired.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type Repositories struct {
	Transactor   repositories.Transactor
	Integrations repositories.IntegrationRepo
	Accounts     repositories.AccountRepo
	Domains      repositories.AccountDomainRepo
	Contacts     repositories.ContactRepo
	Calls        repositories.CallRepo
	Participants repositories.ParticipantRepo
	Transcripts  repositories.TranscriptRepo
	CRMEvents    repositories.CRMEventRepo
}

type Config struct {
	ConfigTimeout time.Duration
}

type Option func(*Syncer)

func WithLocker(locker Locker) Option {
	return func(s *Syncer) {
		s.locker = locker
	}
}

func WithJobQueue(queue JobQueue) Option {
	return func(s *Syncer) {
		s.jobs = queue
	}
}

func WithLimiters(limiters *Limiters) Option {
	return func(s *Syncer) {
		s.limiters = limiters
	}
}

func WithCredentialResolver(credentials providers.CredentialResolver) Option {
	return func(s *Syncer) {
		s.credentials = credentials
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		s.now = now
	}
}

// Counts tallies what one config's sync did.
type Counts struct {
	CallsCreated      int `json:"calls_created"`
	CallsUpdated      int `json:"calls_updated"`
	CallsResolved     int `json:"calls_resolved"`
	TranscriptsStored int `json:"transcripts_stored"`
	JobsEnqueued      int `json:"jobs_enqueued"`
	JobsFailed        int `json:"jobs_failed"`
	AccountsUpserted  int `json:"accounts_upserted"`
	AccountsAdopted   int `json:"accounts_adopted"`
	ContactsUpserted  int `json:"contacts_upserted"`
	ContactsSkipped   int `json:"contacts_skipped"`
	EventsCreated     int `json:"events_created"`
	EventsDuplicate   int `json:"events_duplicate"`
	EventsSkipped     int `json:"events_skipped"`
	Failed            int `json:"failed"`
}

type ConfigResult struct {
	ConfigID       string          `json:"config_id"`
	OrganizationID string          `json:"organization_id"`
	Provider       models.Provider `json:"provider"`
	Status         string          `json:"status"`
	Error          string          `json:"error,omitempty"`
	Counts         Counts          `json:"counts"`
	Duration       time.Duration   `json:"duration"`
}

type SyncReport struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Results   []ConfigResult `json:"results"`
}

// Syncer runs integration syncs.
type Syncer struct {
	logger      ectologger.Logger
	repos       Repositories
	registry    *providers.Registry
	resolver    CallResolver
	credentials providers.CredentialResolver
	locker      Locker
	jobs        JobQueue
	limiters    *Limiters
	config      Config
	now         func() time.Time
}

func NewSyncer(logger ectologger.Logger, repos Repositories, registry *providers.Registry, resolver CallResolver, config Config, opts ...Option) *Syncer {
	if config.ConfigTimeout <= 0 {
		config.ConfigTimeout = DefaultConfigTimeout
	}
	s := &Syncer{
		logger:      logger,
		repos:       repos,
		registry:    registry,
		resolver:    resolver,
		credentials: providers.PassthroughCredentials{},
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncAll syncs every enabled config one after another. A failing config is
// recorded on the config and in the report; it never stops the others.
func (s *Syncer) SyncAll(ctx context.Context) SyncReport {
	ctx, span := tracing.StartSpan(ctx, "syncer.Syncer.SyncAll")
	defer span.End()

	var report SyncReport
	configs, err := s.repos.Integrations.ListSyncable(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list integration configs")
		return report
	}

	for i := range configs {
		if ctx.Err() != nil {
			s.logger.WithContext(ctx).Warn("Sync cancelled before all configs ran")
			break
		}
		result, err := s.syncWithLock(ctx, &configs[i])
		if err != nil {
			result = &ConfigResult{
				ConfigID:       configs[i].ID,
				OrganizationID: configs[i].OrganizationID,
				Provider:       configs[i].Provider,
				Status:         StatusSkipped,
				Error:          err.Error(),
			}
		}
		report.add(*result)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	}).Info("Sync run finished")
	return report
}

func (r *SyncReport) add(result ConfigResult) {
	r.Total++
	switch result.Status {
	case StatusSuccess:
		r.Succeeded++
	case StatusError:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Results = append(r.Results, result)
}

// SyncConfig runs one config on demand. Failures of the sync itself are
// reported in the result; the error covers lookup and locking only.
func (s *Syncer) SyncConfig(ctx context.Context, orgID, configID string) (*ConfigResult, error) {
	ctx, span := tracing.StartSpan(ctx, "syncer.Syncer.SyncConfig")
	defer span.End()

	cfg, err := s.repos.Integrations.Get(ctx, orgID, configID)
	if err != nil {
		return nil, err
	}
	if !cfg.Syncable() {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("integration %s is disabled", configID))
	}
	return s.syncWithLock(ctx, cfg)
}

// syncWithLock returns an error only when the config's lock is held elsewhere.
func (s *Syncer) syncWithLock(ctx context.Context, cfg *models.IntegrationConfig) (*ConfigResult, error) {
	if s.locker != nil {
		release, err := s.locker.TryLock(ctx, lockKeyPrefix+cfg.ID, s.config.ConfigTimeout)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				metrics.SchedulerLocksSkipped.Inc()
				s.logger.WithContext(ctx).WithField("config_id", cfg.ID).Info("Sync already running elsewhere, skipping")
				return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("integration %s is already syncing", cfg.ID))
			}
			s.logger.WithContext(ctx).WithError(err).WithField("config_id", cfg.ID).Warn("Failed to take sync lock, syncing without it")
		} else {
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.WithContext(ctx).WithError(err).WithField("config_id", cfg.ID).Warn("Failed to release sync lock")
				}
			}()
		}
	}
	result := s.syncOne(ctx, cfg)
	return &result, nil
}

func (s *Syncer) syncOne(ctx context.Context, cfg *models.IntegrationConfig) ConfigResult {
	ctx, span := tracing.StartSpan(ctx, "syncer.Syncer.syncOne")
	defer span.End()

	start := time.Now()
	result := ConfigResult{
		ConfigID:       cfg.ID,
		OrganizationID: cfg.OrganizationID,
		Provider:       cfg.Provider,
	}
	logger := s.logger.WithContext(ctx).WithFields(map[string]any{
		"config_id":       cfg.ID,
		"organization_id": cfg.OrganizationID,
		"provider":        cfg.Provider,
	})

	runCtx, cancel := context.WithTimeout(ctx, s.config.ConfigTimeout)
	err := s.run(runCtx, cfg, &result.Counts)
	cancel()

	// status writes must land even when the time budget ran out
	writeCtx := context.WithoutCancel(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Status = StatusError
		result.Error = err.Error()
		logger.WithError(err).Error("Integration sync failed")
		if markErr := s.repos.Integrations.MarkError(writeCtx, cfg.ID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("Failed to record sync error")
		}
		metrics.RecordSync(string(cfg.Provider), metrics.StatusError, result.Duration.Seconds())
		return result
	}

	if markErr := s.repos.Integrations.MarkSuccess(writeCtx, cfg.ID, s.now()); markErr != nil {
		logger.WithError(markErr).Error("Failed to record sync success")
		result.Status = StatusError
		result.Error = markErr.Error()
		metrics.RecordSync(string(cfg.Provider), metrics.StatusError, result.Duration.Seconds())
		return result
	}
	result.Status = StatusSuccess
	metrics.RecordSync(string(cfg.Provider), metrics.StatusSuccess, result.Duration.Seconds())
	logger.WithFields(map[string]any{
		"counts":   result.Counts,
		"duration": result.Duration.String(),
	}).Info("Integration sync finished")
	return result
}

func (s *Syncer) run(ctx context.Context, cfg *models.IntegrationConfig, counts *Counts) error {
	credentials, err := s.credentials.Resolve(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to resolve credentials: %w", err)
	}

	switch cfg.Category {
	case models.IntegrationCategoryCallRecording:
		provider, ok := s.registry.CallProvider(cfg.Provider)
		if !ok {
			return fmt.Errorf("no call recording provider registered for %s", cfg.Provider)
		}
		return s.syncCalls(ctx, cfg, provider, credentials, counts)
	case models.IntegrationCategoryCRM:
		provider, ok := s.registry.CRMProvider(cfg.Provider)
		if !ok {
			return fmt.Errorf("no CRM provider registered for %s", cfg.Provider)
		}
		return s.syncCRM(ctx, cfg, provider, credentials, counts)
	default:
		return fmt.Errorf("unknown integration category %q", cfg.Category)
	}
}

func (s *Syncer) wait(ctx context.Context, provider models.Provider) error {
	if s.limiters == nil {
		return nil
	}
	return s.limiters.Wait(ctx, provider)
}

func (s *Syncer) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.repos.Transactor == nil {
		return fn(ctx)
	}
	return s.repos.Transactor.RunInTx(ctx, fn)
}

func (s *Syncer) recordOutcome(provider models.Provider, kind, outcome string) {
	metrics.SyncRecordsTotal.WithLabelValues(string(provider), kind, outcome).Inc()
}
