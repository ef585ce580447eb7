// Package resolver decides which account a call or contact belongs to.
//
// Resolution is tiered. Email domains are tried first (primary domain, alias
// domain, then the domain of a known contact) and only when none of them hits
// are the call title and participant names compared to account names.
package resolver

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Tier confidences.
const (
	ConfidencePrimaryDomain = 0.95
	ConfidenceAliasDomain   = 0.90
	ConfidenceContactDomain = 0.85
	MaxFuzzyConfidence      = 0.75
)

// minCandidateLength drops fuzzy candidates too short to mean anything.
const minCandidateLength = 2

// Repositories groups the stores the resolver reads and writes.
type Repositories struct {
	Transactor   repositories.Transactor
	Accounts     repositories.AccountRepo
	Domains      repositories.AccountDomainRepo
	Contacts     repositories.ContactRepo
	Calls        repositories.CallRepo
	Participants repositories.ParticipantRepo
}

// IndexFactory builds an empty similarity index for one fuzzy lookup.
type IndexFactory func() matching.SimilarityIndex

type Option func(*Resolver)

// WithIndexFactory replaces the default FuzzyIndex.
func WithIndexFactory(factory IndexFactory) Option {
	return func(r *Resolver) {
		r.newIndex = factory
	}
}

// Resolver handles entity resolution
type Resolver struct {
	logger   ectologger.Logger
	repos    Repositories
	newIndex IndexFactory
}

func NewResolver(logger ectologger.Logger, repos Repositories, opts ...Option) *Resolver {
	r := &Resolver{
		logger: logger,
		repos:  repos,
		newIndex: func() matching.SimilarityIndex {
			return matching.NewFuzzyIndex()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the best account for a call with the given participants and title.
// A call that matches nothing resolves to NoResolution, not an error.
func (r *Resolver) Resolve(ctx context.Context, orgID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	res, err := r.resolve(ctx, orgID, participants, callTitle)
	if err != nil {
		return nil, err
	}
	metrics.ResolutionsTotal.WithLabelValues(string(res.Method)).Inc()
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, orgID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error) {
	domains := ParticipantDomains(participants)
	if len(domains) > 0 {
		res, err := r.resolveByDomain(ctx, orgID, domains)
		if err != nil || res != nil {
			return res, err
		}
	}
	return r.resolveByName(ctx, orgID, participants, callTitle)
}

// ParticipantDomains returns the distinct corporate email domains of participants.
func ParticipantDomains(participants []models.ParticipantInput) []string {
	emails := make([]string, 0, len(participants))
	for _, p := range participants {
		emails = append(emails, p.Email)
	}
	return normalizers.UniqueEmailDomains(emails)
}

// resolveByDomain walks the three domain tiers. It returns nil when none hit.
func (r *Resolver) resolveByDomain(ctx context.Context, orgID string, domains []string) (*models.Resolution, error) {
	accounts, err := r.repos.Accounts.FindByPrimaryDomains(ctx, orgID, domains)
	if err != nil {
		return nil, err
	}
	byDomain := make(map[string]models.Account, len(accounts))
	for _, a := range accounts {
		if a.Domain != nil {
			byDomain[*a.Domain] = a
		}
	}
	for _, d := range domains {
		if a, ok := byDomain[d]; ok {
			return emailResolution(a, ConfidencePrimaryDomain), nil
		}
	}

	aliases, err := r.repos.Domains.FindByDomains(ctx, orgID, domains)
	if err != nil {
		return nil, err
	}
	aliasOwner := make(map[string]string, len(aliases))
	for _, a := range aliases {
		aliasOwner[a.Domain] = a.AccountID
	}
	for _, d := range domains {
		if accountID, ok := aliasOwner[d]; ok {
			return r.accountResolution(ctx, orgID, accountID, ConfidenceAliasDomain)
		}
	}

	contacts, err := r.repos.Contacts.FindByEmailDomains(ctx, orgID, domains)
	if err != nil {
		return nil, err
	}
	contactOwner := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if _, seen := contactOwner[c.EmailDomain]; !seen {
			contactOwner[c.EmailDomain] = c.AccountID
		}
	}
	for _, d := range domains {
		if accountID, ok := contactOwner[d]; ok {
			return r.accountResolution(ctx, orgID, accountID, ConfidenceContactDomain)
		}
	}
	return nil, nil
}

func (r *Resolver) accountResolution(ctx context.Context, orgID, accountID string, confidence float64) (*models.Resolution, error) {
	account, err := r.repos.Accounts.Get(ctx, orgID, accountID)
	if err != nil {
		return nil, err
	}
	return emailResolution(*account, confidence), nil
}

func emailResolution(account models.Account, confidence float64) *models.Resolution {
	return &models.Resolution{
		AccountID:   account.ID,
		AccountName: account.Name,
		Confidence:  confidence,
		Method:      models.ResolutionMethodEmailDomain,
	}
}

// FuzzyCandidates returns the normalized call title and participant names that
// are long enough to compare against account names, title first.
func FuzzyCandidates(participants []models.ParticipantInput, callTitle string) []string {
	var out []string
	add := func(s string) {
		if n := normalizers.NormalizeCompanyName(s); len([]rune(n)) >= minCandidateLength {
			out = append(out, n)
		}
	}
	add(callTitle)
	for _, p := range participants {
		add(p.Name)
	}
	return out
}

// FuzzyMatch is the closest account name found for any candidate. Similarity
// ranks matches; Confidence is Similarity capped at MaxFuzzyConfidence.
type FuzzyMatch struct {
	Account    models.Account
	Candidate  string
	Similarity float64
	Confidence float64
}

// AccountIndex is a fuzzy name index over one organization's accounts. Build
// it once and search it for many calls.
type AccountIndex struct {
	byID  map[string]models.Account
	index matching.SimilarityIndex
}

// IndexAccounts lists orgID's accounts and indexes their normalized names.
func (r *Resolver) IndexAccounts(ctx context.Context, orgID string) (*AccountIndex, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.IndexAccounts")
	defer span.End()

	accounts, err := r.repos.Accounts.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	ix := &AccountIndex{byID: make(map[string]models.Account, len(accounts))}
	if len(accounts) == 0 {
		return ix, nil
	}
	indexed := make([]matching.Candidate, 0, len(accounts))
	for _, a := range accounts {
		name := a.NormalizedName
		if name == "" {
			name = normalizers.NormalizeCompanyName(a.Name)
		}
		ix.byID[a.ID] = a
		indexed = append(indexed, matching.Candidate{ID: a.ID, Value: name})
	}
	ix.index = r.newIndex()
	ix.index.Index(indexed)
	return ix, nil
}

// BestMatches returns, per account, the closest any candidate came, closest
// first. Accounts that no candidate reached are left out.
func (ix *AccountIndex) BestMatches(candidates []string) []FuzzyMatch {
	if ix == nil || ix.index == nil || len(candidates) == 0 {
		return nil
	}

	best := map[string]FuzzyMatch{}
	var order []string
	for _, candidate := range candidates {
		for _, m := range ix.index.Search(candidate) {
			similarity := 1 - m.Distance
			current, seen := best[m.ID]
			if !seen {
				order = append(order, m.ID)
			}
			if !seen || similarity > current.Similarity {
				best[m.ID] = FuzzyMatch{
					Account:    ix.byID[m.ID],
					Candidate:  candidate,
					Similarity: similarity,
					Confidence: min(similarity, MaxFuzzyConfidence),
				}
			}
		}
	}

	out := make([]FuzzyMatch, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out
}

// BestFuzzyMatches indexes orgID's accounts and matches candidates against them.
func (r *Resolver) BestFuzzyMatches(ctx context.Context, orgID string, candidates []string) ([]FuzzyMatch, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ix, err := r.IndexAccounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return ix.BestMatches(candidates), nil
}

func (r *Resolver) resolveByName(ctx context.Context, orgID string, participants []models.ParticipantInput, callTitle string) (*models.Resolution, error) {
	matches, err := r.BestFuzzyMatches(ctx, orgID, FuzzyCandidates(participants, callTitle))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return models.NoResolution(), nil
	}
	top := matches[0]
	return &models.Resolution{
		AccountID:   top.Account.ID,
		AccountName: top.Account.Name,
		Confidence:  top.Confidence,
		Method:      models.ResolutionMethodFuzzyName,
	}, nil
}
