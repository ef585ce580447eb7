package merging

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
)

// mergePlan is everything a merge of source into target would touch, read
// before anything is written.
type mergePlan struct {
	source models.Account
	target models.Account

	sourceAliases []models.AccountDomain
	aliasDomains  []string

	callIDs           []string
	contactIDs        []string
	duplicateContacts []models.DeletedContact
	duplicateEmails   []string
	storyIDs          []string
	eventIDs          []string
	duplicateEvents   []models.CRMEvent
	grantIDs          []string
	droppedGrants     []models.AccessGrant
	adopted           models.AdoptedCRMIDs
}

func (s *Service) plan(ctx context.Context, orgID, sourceID, targetID string) (*mergePlan, error) {
	if sourceID == targetID {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot merge an account into itself")
	}
	source, err := s.repos.Accounts.Get(ctx, orgID, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.repos.Accounts.Get(ctx, orgID, targetID)
	if err != nil {
		return nil, err
	}

	p := &mergePlan{source: *source, target: *target}
	steps := []func(context.Context, string) error{
		p.planDomains(s),
		p.planCalls(s),
		p.planContacts(s),
		p.planStories(s),
		p.planEvents(s),
		p.planGrants(s),
	}
	for _, step := range steps {
		if err := step(ctx, orgID); err != nil {
			return nil, err
		}
	}
	p.planCRMIDs()
	return p, nil
}

// planDomains turns the source's primary domain and aliases into target
// aliases, skipping domains the target already owns or another account aliases.
func (p *mergePlan) planDomains(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		aliases, err := s.repos.Domains.ListByAccount(ctx, orgID, p.source.ID)
		if err != nil {
			return err
		}
		p.sourceAliases = aliases

		var candidates []string
		if p.source.Domain != nil {
			candidates = append(candidates, *p.source.Domain)
		}
		for _, a := range aliases {
			candidates = append(candidates, a.Domain)
		}
		if len(candidates) == 0 {
			return nil
		}

		owned, err := s.repos.Domains.FindByDomains(ctx, orgID, candidates)
		if err != nil {
			return err
		}
		taken := map[string]struct{}{}
		if p.target.Domain != nil {
			taken[*p.target.Domain] = struct{}{}
		}
		for _, d := range owned {
			if d.AccountID != p.source.ID {
				taken[d.Domain] = struct{}{}
			}
		}
		for _, d := range candidates {
			if _, skip := taken[d]; skip {
				continue
			}
			taken[d] = struct{}{}
			p.aliasDomains = append(p.aliasDomains, d)
		}
		return nil
	}
}

func (p *mergePlan) planCalls(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		ids, err := s.repos.Calls.ListIDsByAccount(ctx, orgID, p.source.ID)
		p.callIDs = ids
		return err
	}
}

// planContacts splits the source's contacts into ones that move and ones
// whose email the target already has, which are folded into the target's row.
func (p *mergePlan) planContacts(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		sourceContacts, err := s.repos.Contacts.ListByAccount(ctx, orgID, p.source.ID)
		if err != nil {
			return err
		}
		targetContacts, err := s.repos.Contacts.ListByAccount(ctx, orgID, p.target.ID)
		if err != nil {
			return err
		}
		byEmail := make(map[string]string, len(targetContacts))
		for _, c := range targetContacts {
			byEmail[c.Email] = c.ID
		}

		for _, c := range sourceContacts {
			targetContactID, dup := byEmail[c.Email]
			if !dup {
				p.contactIDs = append(p.contactIDs, c.ID)
				continue
			}
			participantIDs, err := s.repos.Participants.ListIDsByContact(ctx, c.ID)
			if err != nil {
				return err
			}
			p.duplicateContacts = append(p.duplicateContacts, models.DeletedContact{
				Contact:         c,
				TargetContactID: targetContactID,
				ParticipantIDs:  participantIDs,
			})
			p.duplicateEmails = append(p.duplicateEmails, c.Email)
		}
		return nil
	}
}

func (p *mergePlan) planStories(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		ids, err := s.repos.Stories.ListIDsByAccount(ctx, orgID, p.source.ID)
		p.storyIDs = ids
		return err
	}
}

// planEvents drops source ledger rows whose (opportunity, stage) the target
// already has; the ledger keeps one row per triple.
func (p *mergePlan) planEvents(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		sourceEvents, err := s.repos.CRMEvents.ListByAccount(ctx, orgID, p.source.ID)
		if err != nil {
			return err
		}
		targetEvents, err := s.repos.CRMEvents.ListByAccount(ctx, orgID, p.target.ID)
		if err != nil {
			return err
		}
		type key struct{ opportunity, stage string }
		existing := make(map[key]struct{}, len(targetEvents))
		for _, e := range targetEvents {
			existing[key{e.OpportunityID, e.StageName}] = struct{}{}
		}
		for _, e := range sourceEvents {
			k := key{e.OpportunityID, e.StageName}
			if _, dup := existing[k]; dup {
				p.duplicateEvents = append(p.duplicateEvents, e)
				continue
			}
			existing[k] = struct{}{}
			p.eventIDs = append(p.eventIDs, e.ID)
		}
		return nil
	}
}

func (p *mergePlan) planGrants(s *Service) func(context.Context, string) error {
	return func(ctx context.Context, orgID string) error {
		sourceGrants, err := s.repos.AccessGrants.ListByAccount(ctx, orgID, p.source.ID)
		if err != nil {
			return err
		}
		targetGrants, err := s.repos.AccessGrants.ListByAccount(ctx, orgID, p.target.ID)
		if err != nil {
			return err
		}
		holders := make(map[string]struct{}, len(targetGrants))
		for _, g := range targetGrants {
			holders[g.UserID] = struct{}{}
		}
		for _, g := range sourceGrants {
			if _, held := holders[g.UserID]; held {
				p.droppedGrants = append(p.droppedGrants, g)
				continue
			}
			p.grantIDs = append(p.grantIDs, g.ID)
		}
		return nil
	}
}

// planCRMIDs lets the target take over CRM ids it has none of.
func (p *mergePlan) planCRMIDs() {
	if p.target.SalesforceID == nil && p.source.SalesforceID != nil {
		p.adopted.SalesforceID = p.source.SalesforceID
	}
	if p.target.HubspotID == nil && p.source.HubspotID != nil {
		p.adopted.HubspotID = p.source.HubspotID
	}
}

func (p *mergePlan) adoptsCRMIDs() bool {
	return p.adopted.SalesforceID != nil || p.adopted.HubspotID != nil
}

func (p *mergePlan) counts() models.MergeCounts {
	return models.MergeCounts{
		Calls:                 len(p.callIDs),
		Contacts:              len(p.contactIDs),
		ContactsDeduplicated:  len(p.duplicateContacts),
		Domains:               len(p.aliasDomains),
		Stories:               len(p.storyIDs),
		CRMEvents:             len(p.eventIDs),
		CRMEventsDeduplicated: len(p.duplicateEvents),
		AccessGrants:          len(p.grantIDs),
	}
}

func (p *mergePlan) preview() *models.MergePreview {
	return &models.MergePreview{
		Source:                 p.source,
		Target:                 p.target,
		Counts:                 p.counts(),
		AliasDomains:           orEmpty(p.aliasDomains),
		DuplicateContactEmails: orEmpty(p.duplicateEmails),
		AdoptedCRMIDs:          p.adopted,
	}
}

// apply writes the plan. The caller owns the transaction.
func (s *Service) apply(ctx context.Context, p *mergePlan) (*models.MergeSnapshot, error) {
	orgID := p.target.OrganizationID
	snapshot := &models.MergeSnapshot{
		SourceAccount:       p.source,
		SourceAliases:       orEmpty(p.sourceAliases),
		MovedCallIDs:        orEmpty(p.callIDs),
		RepointedContactIDs: orEmpty(p.contactIDs),
		DeletedContacts:     orEmpty(p.duplicateContacts),
		MovedStoryIDs:       orEmpty(p.storyIDs),
		MovedCRMEventIDs:    orEmpty(p.eventIDs),
		DeletedCRMEvents:    orEmpty(p.duplicateEvents),
		MovedGrantIDs:       orEmpty(p.grantIDs),
		DroppedGrants:       orEmpty(p.droppedGrants),
		AdoptedCRMIDs:       p.adopted,
		CreatedAliases:      []models.AccountDomain{},
	}

	if len(p.callIDs) > 0 {
		if err := s.repos.Calls.UpdateAccount(ctx, p.callIDs, p.target.ID); err != nil {
			return nil, err
		}
	}

	for _, dup := range p.duplicateContacts {
		if len(dup.ParticipantIDs) > 0 {
			if err := s.repos.Participants.RelinkContact(ctx, dup.ParticipantIDs, dup.TargetContactID); err != nil {
				return nil, err
			}
		}
		if err := s.repos.Contacts.Delete(ctx, dup.Contact.ID); err != nil {
			return nil, err
		}
	}
	if len(p.contactIDs) > 0 {
		if err := s.repos.Contacts.UpdateAccount(ctx, p.contactIDs, p.target.ID); err != nil {
			return nil, err
		}
	}

	// source aliases go before the target takes their domains over
	if len(p.sourceAliases) > 0 {
		ids := make([]string, 0, len(p.sourceAliases))
		for _, a := range p.sourceAliases {
			ids = append(ids, a.ID)
		}
		if err := s.repos.Domains.DeleteByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}
	for _, domain := range p.aliasDomains {
		created, err := s.repos.Domains.Create(ctx, &models.AccountDomain{
			OrganizationID: orgID,
			AccountID:      p.target.ID,
			Domain:         domain,
		})
		if err != nil {
			return nil, err
		}
		snapshot.CreatedAliases = append(snapshot.CreatedAliases, *created)
	}

	if len(p.storyIDs) > 0 {
		if err := s.repos.Stories.UpdateAccount(ctx, p.storyIDs, p.target.ID); err != nil {
			return nil, err
		}
	}

	if len(p.duplicateEvents) > 0 {
		if err := s.repos.CRMEvents.DeleteByIDs(ctx, eventIDs(p.duplicateEvents)); err != nil {
			return nil, err
		}
	}
	if len(p.eventIDs) > 0 {
		if err := s.repos.CRMEvents.UpdateAccount(ctx, p.eventIDs, p.target.ID); err != nil {
			return nil, err
		}
	}

	if len(p.droppedGrants) > 0 {
		if err := s.repos.AccessGrants.DeleteByIDs(ctx, grantIDs(p.droppedGrants)); err != nil {
			return nil, err
		}
	}
	if len(p.grantIDs) > 0 {
		if err := s.repos.AccessGrants.UpdateAccount(ctx, p.grantIDs, p.target.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repos.Accounts.Delete(ctx, orgID, p.source.ID); err != nil {
		return nil, err
	}

	// the source row held these ids under a unique index, so they move after it is gone
	if p.adoptsCRMIDs() {
		salesforceID, hubspotID := p.target.SalesforceID, p.target.HubspotID
		if p.adopted.SalesforceID != nil {
			salesforceID = p.adopted.SalesforceID
		}
		if p.adopted.HubspotID != nil {
			hubspotID = p.adopted.HubspotID
		}
		if err := s.repos.Accounts.UpdateCRMIDs(ctx, orgID, p.target.ID, salesforceID, hubspotID); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

func eventIDs(events []models.CRMEvent) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func grantIDs(grants []models.AccessGrant) []string {
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.ID)
	}
	return out
}

func orEmpty[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
