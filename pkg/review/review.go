// Package review serves the queue of calls whose account could not be
// resolved with confidence, and the manual actions that clear it.
package review

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultLowConfidenceThreshold = 0.7
	DefaultSuggestionLimit        = 3

	// ManualConfidence is stored on calls resolved by a person.
	ManualConfidence = 1.0
)

// Queue actions, used as metric labels.
const (
	ActionResolve       = "resolve"
	ActionBulkResolve   = "bulk_resolve"
	ActionDismiss       = "dismiss"
	ActionCreateAccount = "create_account"
)

// Matcher is the slice of the resolver the queue needs.
type Matcher interface {
	IndexAccounts(ctx context.Context, orgID string) (*resolver.AccountIndex, error)
	LinkContacts(ctx context.Context, orgID, callID, accountID string, participants []models.ParticipantInput) (int, error)
}

type Repositories struct {
	Transactor   repositories.Transactor
	Accounts     repositories.AccountRepo
	Domains      repositories.AccountDomainRepo
	Calls        repositories.CallRepo
	Participants repositories.ParticipantRepo
}

type Config struct {
	LowConfidenceThreshold float64
	SuggestionLimit        int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// ResolveResult reports what a manual resolution wrote.
type ResolveResult struct {
	CallID         string   `json:"call_id"`
	AccountID      string   `json:"account_id"`
	AliasesCreated []string `json:"aliases_created"`
	ContactsLinked int      `json:"contacts_linked"`
}

type CreateAccountInput struct {
	Name   string `json:"name" validate:"required"`
	Domain string `json:"domain,omitempty"`
}

type CreateAccountResult struct {
	Account    models.Account `json:"account"`
	Resolution ResolveResult  `json:"resolution"`
}

type Service struct {
	logger  ectologger.Logger
	repos   Repositories
	matcher Matcher
	config  Config
	now     func() time.Time
}

func NewService(logger ectologger.Logger, repos Repositories, matcher Matcher, config Config, opts ...Option) *Service {
	if config.LowConfidenceThreshold <= 0 {
		config.LowConfidenceThreshold = DefaultLowConfidenceThreshold
	}
	if config.SuggestionLimit <= 0 {
		config.SuggestionLimit = DefaultSuggestionLimit
	}
	s := &Service{
		logger:  logger,
		repos:   repos,
		matcher: matcher,
		config:  config,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns one page of the queue: undismissed calls that are unmatched
// or below the confidence threshold, each with its best suggestions.
func (s *Service) List(ctx context.Context, orgID string, params models.ReviewListParams) (*models.ReviewPage, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.List")
	defer span.End()

	params.Normalize()
	calls, total, err := s.repos.Calls.ListReviewQueue(ctx, orgID, s.config.LowConfidenceThreshold, params)
	if err != nil {
		return nil, err
	}

	items := make([]models.ReviewItem, 0, len(calls))
	var index *resolver.AccountIndex
	if len(calls) > 0 {
		// one index serves the whole page
		if index, err = s.matcher.IndexAccounts(ctx, orgID); err != nil {
			return nil, err
		}
	}
	for _, call := range calls {
		participants, err := s.repos.Participants.ListByCall(ctx, call.ID)
		if err != nil {
			return nil, err
		}
		suggestions, err := s.suggest(ctx, orgID, call, participants, index)
		if err != nil {
			return nil, err
		}
		items = append(items, models.ReviewItem{
			Call:         call,
			Participants: participants,
			Suggestions:  suggestions,
		})
	}

	return &models.ReviewPage{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, nil
}

func (s *Service) Stats(ctx context.Context, orgID string) (*models.ReviewStats, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Stats")
	defer span.End()

	return s.repos.Calls.ReviewStats(ctx, orgID, s.config.LowConfidenceThreshold)
}

// ResolveCall assigns a call to an account by hand. Participant domains no
// account claims yet become aliases of the account, and participants with a
// corporate email become its contacts. Repeating the call changes nothing.
func (s *Service) ResolveCall(ctx context.Context, orgID, callID, accountID string) (*ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.ResolveCall")
	defer span.End()

	var result *ResolveResult
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.resolveCall(ctx, orgID, callID, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues(ActionResolve).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"call_id":         callID,
		"account_id":      accountID,
		"aliases_created": len(result.AliasesCreated),
		"contacts_linked": result.ContactsLinked,
	}).Info("Resolved call manually")
	return result, nil
}

func (s *Service) resolveCall(ctx context.Context, orgID, callID, accountID string) (*ResolveResult, error) {
	call, err := s.repos.Calls.Get(ctx, orgID, callID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repos.Accounts.Get(ctx, orgID, accountID); err != nil {
		return nil, err
	}
	rows, err := s.repos.Participants.ListByCall(ctx, call.ID)
	if err != nil {
		return nil, err
	}
	participants := models.ParticipantInputs(rows)

	result := &ResolveResult{CallID: call.ID, AccountID: accountID, AliasesCreated: []string{}}
	for _, domain := range resolver.ParticipantDomains(participants) {
		claimed, err := s.repos.Domains.IsClaimed(ctx, orgID, domain)
		if err != nil {
			return nil, err
		}
		if claimed {
			continue
		}
		if _, err := s.repos.Domains.Create(ctx, &models.AccountDomain{
			OrganizationID: orgID,
			AccountID:      accountID,
			Domain:         domain,
		}); err != nil {
			return nil, err
		}
		result.AliasesCreated = append(result.AliasesCreated, domain)
	}

	linked, err := s.matcher.LinkContacts(ctx, orgID, call.ID, accountID, participants)
	if err != nil {
		return nil, err
	}
	result.ContactsLinked = linked

	if err := s.repos.Calls.UpdateResolution(ctx, orgID, call.ID, &accountID, models.MatchMethodManual, ManualConfidence); err != nil {
		return nil, err
	}
	return result, nil
}

// BulkResolve resolves each call to accountID and returns how many succeeded.
// A failing call is logged and skipped.
func (s *Service) BulkResolve(ctx context.Context, orgID string, callIDs []string, accountID string) int {
	ctx, span := tracing.StartSpan(ctx, "review.Service.BulkResolve")
	defer span.End()

	resolved := 0
	for _, callID := range callIDs {
		if _, err := s.ResolveCall(ctx, orgID, callID, accountID); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"call_id":    callID,
				"account_id": accountID,
			}).Warn("Failed to resolve call in bulk")
			continue
		}
		resolved++
	}

	metrics.ReviewActionsTotal.WithLabelValues(ActionBulkResolve).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"requested": len(callIDs),
		"resolved":  resolved,
	}).Info("Bulk resolved calls")
	return resolved
}

// DismissCalls hides calls from the queue and returns how many were stamped.
func (s *Service) DismissCalls(ctx context.Context, orgID string, callIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.DismissCalls")
	defer span.End()

	count, err := s.repos.Calls.Dismiss(ctx, orgID, callIDs, s.now().UTC())
	if err != nil {
		return 0, err
	}
	metrics.ReviewActionsTotal.WithLabelValues(ActionDismiss).Inc()
	return count, nil
}

// CreateAccountFromCall creates an account named by the reviewer and resolves
// the call to it. Without an explicit domain the first corporate participant
// domain is used. A missing or free-mail domain is rejected, as is one another
// account already claims.
func (s *Service) CreateAccountFromCall(ctx context.Context, orgID, callID string, input CreateAccountInput) (*CreateAccountResult, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.CreateAccountFromCall")
	defer span.End()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "account name is required")
	}

	var result *CreateAccountResult
	err := s.runInTx(ctx, func(ctx context.Context) error {
		call, err := s.repos.Calls.Get(ctx, orgID, callID)
		if err != nil {
			return err
		}

		domain := normalizers.NormalizeDomain(input.Domain)
		if domain == "" {
			rows, err := s.repos.Participants.ListByCall(ctx, call.ID)
			if err != nil {
				return err
			}
			if domains := resolver.ParticipantDomains(models.ParticipantInputs(rows)); len(domains) > 0 {
				domain = domains[0]
			}
		}

		switch {
		case domain == "":
			return httperror.NewHTTPError(http.StatusBadRequest, "a corporate domain is required: pass one or resolve a call with a corporate participant")
		case normalizers.IsFreeEmailDomain(domain):
			return httperror.NewHTTPError(http.StatusBadRequest, "domain "+domain+" is a free mail provider")
		}
		claimed, err := s.repos.Domains.IsClaimed(ctx, orgID, domain)
		if err != nil {
			return err
		}
		if claimed {
			return httperror.NewHTTPError(http.StatusConflict, "domain "+domain+" is already claimed by another account")
		}
		account := &models.Account{OrganizationID: orgID, Name: name, Domain: &domain}

		created, err := s.repos.Accounts.Create(ctx, account)
		if err != nil {
			return err
		}
		resolution, err := s.resolveCall(ctx, orgID, call.ID, created.ID)
		if err != nil {
			return err
		}
		result = &CreateAccountResult{Account: *created, Resolution: *resolution}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ReviewActionsTotal.WithLabelValues(ActionCreateAccount).Inc()
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"call_id":    callID,
		"account_id": result.Account.ID,
	}).Info("Created account from call")
	return result, nil
}

func (s *Service) runInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.repos.Transactor == nil {
		return fn(ctx)
	}
	return s.repos.Transactor.RunInTx(ctx, fn)
}
