package review

import (
	"context"
	"fmt"
	"sort"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/resolver"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	domainConfidence = resolver.ConfidenceContactDomain
	domainReason     = "email domain match"
)

// Suggestions ranks the accounts a queued call most likely belongs to.
func (s *Service) Suggestions(ctx context.Context, orgID, callID string) ([]models.Suggestion, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Suggestions")
	defer span.End()

	call, err := s.repos.Calls.Get(ctx, orgID, callID)
	if err != nil {
		return nil, err
	}
	participants, err := s.repos.Participants.ListByCall(ctx, call.ID)
	if err != nil {
		return nil, err
	}
	index, err := s.matcher.IndexAccounts(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return s.suggest(ctx, orgID, *call, participants, index)
}

// suggest merges domain hits and fuzzy name hits. The first suggestion for an
// account wins, so a domain hit shadows a fuzzy hit on the same account.
func (s *Service) suggest(ctx context.Context, orgID string, call models.Call, rows []models.CallParticipant, index *resolver.AccountIndex) ([]models.Suggestion, error) {
	participants := models.ParticipantInputs(rows)

	var out []models.Suggestion
	seen := map[string]struct{}{}
	add := func(sg models.Suggestion) {
		if _, dup := seen[sg.AccountID]; dup {
			return
		}
		seen[sg.AccountID] = struct{}{}
		out = append(out, sg)
	}

	byDomain, err := s.domainOwners(ctx, orgID, resolver.ParticipantDomains(participants))
	if err != nil {
		return nil, err
	}
	for _, account := range byDomain {
		add(models.Suggestion{
			AccountID:   account.ID,
			AccountName: account.Name,
			Confidence:  domainConfidence,
			Reason:      domainReason,
		})
	}

	for _, m := range index.BestMatches(resolver.FuzzyCandidates(participants, call.Title)) {
		add(models.Suggestion{
			AccountID:   m.Account.ID,
			AccountName: m.Account.Name,
			Confidence:  m.Confidence,
			Reason:      fmt.Sprintf("name similar to %q", m.Candidate),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > s.config.SuggestionLimit {
		out = out[:s.config.SuggestionLimit]
	}
	if out == nil {
		out = []models.Suggestion{}
	}
	return out, nil
}

// domainOwners returns the accounts owning any of domains, as a primary
// domain or an alias, in the order the domains were given.
func (s *Service) domainOwners(ctx context.Context, orgID string, domains []string) ([]models.Account, error) {
	if len(domains) == 0 {
		return nil, nil
	}

	owners := map[string]models.Account{}
	primaries, err := s.repos.Accounts.FindByPrimaryDomains(ctx, orgID, domains)
	if err != nil {
		return nil, err
	}
	for _, a := range primaries {
		if a.Domain != nil {
			owners[*a.Domain] = a
		}
	}

	aliases, err := s.repos.Domains.FindByDomains(ctx, orgID, domains)
	if err != nil {
		return nil, err
	}
	for _, alias := range aliases {
		if _, ok := owners[alias.Domain]; ok {
			continue
		}
		account, err := s.repos.Accounts.Get(ctx, orgID, alias.AccountID)
		if err != nil {
			return nil, err
		}
		owners[alias.Domain] = *account
	}

	out := make([]models.Account, 0, len(owners))
	for _, d := range domains {
		if a, ok := owners[d]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
