// Package merging folds one account into another and can put it back.
//
// A merge moves everything that points at the source account onto the target
// inside one transaction and records a snapshot of every row it moved,
// deleted or created. Undo replays that snapshot in reverse.
package merging

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Operations, used as metric labels.
const (
	OperationMerge   = "merge"
	OperationUndo    = "undo"
	OperationApprove = "approve"
	OperationReject  = "reject"
)

const defaultRunListLimit = 50

// Projector mirrors merges into the account graph.
type Projector interface {
	AccountMerged(ctx context.Context, run *models.MergeRun, target *models.Account) error
	MergeUndone(ctx context.Context, run *models.MergeRun) error
}

// EventEmitter announces merges to downstream consumers.
type EventEmitter interface {
	EmitAccountMerged(ctx context.Context, run *models.MergeRun) error
	EmitAccountMergeUndone(ctx context.Context, run *models.MergeRun) error
}

type Repositories struct {
	Transactor   repositories.Transactor
	Accounts     repositories.AccountRepo
	Domains      repositories.AccountDomainRepo
	Contacts     repositories.ContactRepo
	Calls        repositories.CallRepo
	Participants repositories.ParticipantRepo
	Stories      repositories.StoryRepo
	CRMEvents    repositories.CRMEventRepo
	AccessGrants repositories.AccessGrantRepo
	MergeRuns    repositories.MergeRunRepo
	Approvals    repositories.ApprovalRepo
}

type Option func(*Service)

func WithProjector(p Projector) Option {
	return func(s *Service) {
		s.projector = p
	}
}

func WithEvents(e EventEmitter) Option {
	return func(s *Service) {
		s.events = e
	}
}

// WithApprovalRequired rejects direct merges; only approved requests merge.
func WithApprovalRequired(required bool) Option {
	return func(s *Service) {
		s.approvalRequired = required
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	logger           ectologger.Logger
	repos            Repositories
	projector        Projector
	events           EventEmitter
	approvalRequired bool
	now              func() time.Time
}

func NewService(logger ectologger.Logger, repos Repositories, opts ...Option) *Service {
	s := &Service{
		logger: logger,
		repos:  repos,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview reports what merging sourceID into targetID would do without doing it.
func (s *Service) Preview(ctx context.Context, orgID, sourceID, targetID string) (*models.MergePreview, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Preview")
	defer span.End()

	p, err := s.plan(ctx, orgID, sourceID, targetID)
	if err != nil {
		return nil, err
	}
	return p.preview(), nil
}

// Merge folds sourceID into targetID and deletes the source account.
func (s *Service) Merge(ctx context.Context, orgID, sourceID, targetID string, opts models.MergeOptions) (*models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.Merge")
	defer span.End()

	if s.approvalRequired && opts.ApprovalRequestID == nil {
		return nil, httperror.NewHTTPError(http.StatusForbidden, "account merges require an approved merge request")
	}

	var run *models.MergeRun
	var target *models.Account
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		run, target, err = s.merge(ctx, orgID, sourceID, targetID, opts)
		return err
	})
	if err != nil {
		metrics.MergesTotal.WithLabelValues(OperationMerge, metrics.StatusError).Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_account_id": sourceID,
			"target_account_id": targetID,
		}).Warn("Account merge failed")
		return nil, err
	}

	s.afterMerge(ctx, run, target)
	return run, nil
}

func (s *Service) merge(ctx context.Context, orgID, sourceID, targetID string, opts models.MergeOptions) (*models.MergeRun, *models.Account, error) {
	p, err := s.plan(ctx, orgID, sourceID, targetID)
	if err != nil {
		return nil, nil, err
	}
	snapshot, err := s.apply(ctx, p)
	if err != nil {
		return nil, nil, err
	}

	run, err := s.repos.MergeRuns.Create(ctx, &models.MergeRun{
		ID:                 uuid.New().String(),
		OrganizationID:     orgID,
		PrimaryAccountID:   p.target.ID,
		SecondaryAccountID: p.source.ID,
		Status:             models.MergeRunStatusCompleted,
		MovedCounts:        database.NewJSONB(p.counts()),
		Snapshot:           database.NewJSONB(*snapshot),
		ApprovalRequestID:  opts.ApprovalRequestID,
		MergedBy:           opts.MergedBy,
		CreatedAt:          s.now().UTC(),
	})
	if err != nil {
		return nil, nil, err
	}

	target, err := s.repos.Accounts.Get(ctx, orgID, p.target.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, target, nil
}

// afterMerge runs the side effects that must not undo a committed merge.
func (s *Service) afterMerge(ctx context.Context, run *models.MergeRun, target *models.Account) {
	metrics.MergesTotal.WithLabelValues(OperationMerge, metrics.StatusSuccess).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"merge_run_id":      run.ID,
		"source_account_id": run.SecondaryAccountID,
		"target_account_id": run.PrimaryAccountID,
		"calls":             run.MovedCounts.Data.Calls,
		"contacts":          run.MovedCounts.Data.Contacts,
	}).Info("Merged accounts")

	ctx = context.WithoutCancel(ctx)
	if s.projector != nil {
		s.bestEffort(ctx, "graph", run, func() error { return s.projector.AccountMerged(ctx, run, target) })
	}
	if s.events != nil {
		s.bestEffort(ctx, "events", run, func() error { return s.events.EmitAccountMerged(ctx, run) })
	}
}

func (s *Service) bestEffort(ctx context.Context, target string, run *models.MergeRun, fn func() error) {
	if err := fn(); err != nil {
		metrics.BestEffortFailures.WithLabelValues(target).Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"merge_run_id": run.ID,
			"target":       target,
		}).Warn("Post-merge side effect failed")
	}
}

// ListRuns returns the organization's most recent merge runs, newest first.
func (s *Service) ListRuns(ctx context.Context, orgID string, limit int) ([]models.MergeRun, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.ListRuns")
	defer span.End()

	if limit <= 0 {
		limit = defaultRunListLimit
	}
	return s.repos.MergeRuns.List(ctx, orgID, limit)
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.repos.Transactor == nil {
		return fn(ctx)
	}
	return s.repos.Transactor.RunInTx(ctx, fn)
}
