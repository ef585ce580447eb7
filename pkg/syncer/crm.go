package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// syncCRM runs accounts, then contacts, then opportunities. Later stages look
// accounts up by the CRM ids the first stage stored. CRM adapters page on
// their own and throttle each request through their provider's waiter.
func (s *Syncer) syncCRM(ctx context.Context, cfg *models.IntegrationConfig, provider providers.CRMProvider, credentials json.RawMessage, counts *Counts) error {
	ctx, span := tracing.StartSpan(ctx, "syncer.Syncer.syncCRM")
	defer span.End()

	sample := models.Account{}
	sample.SetCRMID(cfg.Provider, new(string))
	if sample.CRMID(cfg.Provider) == nil {
		return fmt.Errorf("provider %s has no account id column, CRM records cannot be linked", cfg.Provider)
	}

	l := &crmLookup{s: s, orgID: cfg.OrganizationID, provider: cfg.Provider, byExternalID: map[string]string{}}

	accounts, err := provider.FetchAccounts(ctx, credentials)
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}
	for _, a := range accounts {
		adopted, err := s.syncCRMAccount(ctx, cfg, l, a)
		if err != nil {
			s.crmFailure(ctx, cfg, "account", a.ExternalID, err, counts)
			continue
		}
		counts.AccountsUpserted++
		if adopted {
			counts.AccountsAdopted++
			s.recordOutcome(cfg.Provider, "account", "adopted")
			continue
		}
		s.recordOutcome(cfg.Provider, "account", "upserted")
	}

	contacts, err := provider.FetchContacts(ctx, credentials)
	if err != nil {
		return fmt.Errorf("failed to fetch contacts: %w", err)
	}
	for _, c := range contacts {
		stored, err := s.syncCRMContact(ctx, cfg, l, c)
		switch {
		case err != nil:
			s.crmFailure(ctx, cfg, "contact", c.ExternalID, err, counts)
		case !stored:
			counts.ContactsSkipped++
			s.recordOutcome(cfg.Provider, "contact", "skipped")
		default:
			counts.ContactsUpserted++
			s.recordOutcome(cfg.Provider, "contact", "upserted")
		}
	}

	opportunities, err := provider.FetchOpportunities(ctx, credentials)
	if err != nil {
		return fmt.Errorf("failed to fetch opportunities: %w", err)
	}
	for _, o := range opportunities {
		outcome, err := s.syncOpportunity(ctx, cfg, l, o)
		if err != nil {
			s.crmFailure(ctx, cfg, "opportunity", o.ExternalID, err, counts)
			continue
		}
		switch outcome {
		case "created":
			counts.EventsCreated++
		case "duplicate":
			counts.EventsDuplicate++
		default:
			counts.EventsSkipped++
		}
		s.recordOutcome(cfg.Provider, "opportunity", outcome)
	}
	return ctx.Err()
}

func (s *Syncer) crmFailure(ctx context.Context, cfg *models.IntegrationConfig, kind, externalID string, err error, counts *Counts) {
	counts.Failed++
	s.recordOutcome(cfg.Provider, kind, "failed")
	s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"config_id":   cfg.ID,
		"kind":        kind,
		"external_id": externalID,
	}).Warn("Failed to sync CRM record")
}

// syncCRMAccount upserts by CRM id. An account the CRM has not linked yet is
// adopted by whichever local account already claims its domain, so accounts
// created from the review queue or by another CRM gain the id instead of
// colliding with it. It reports whether an existing account was adopted.
func (s *Syncer) syncCRMAccount(ctx context.Context, cfg *models.IntegrationConfig, l *crmLookup, a providers.CRMAccount) (bool, error) {
	if a.ExternalID == "" || strings.TrimSpace(a.Name) == "" {
		return false, fmt.Errorf("account needs an id and a name")
	}
	account := &models.Account{
		OrganizationID: cfg.OrganizationID,
		Name:           strings.TrimSpace(a.Name),
		Industry:       a.Industry,
		EmployeeCount:  a.EmployeeCount,
		AnnualRevenue:  a.AnnualRevenue,
	}
	if a.Domain != nil {
		if d := normalizers.NormalizeDomain(*a.Domain); d != "" {
			account.Domain = &d
		}
	}
	externalID := a.ExternalID
	account.SetCRMID(cfg.Provider, &externalID)

	var adopted bool
	err := s.runInTx(ctx, func(ctx context.Context) error {
		adopted = false
		linked, err := l.account(ctx, externalID)
		if err != nil {
			return err
		}

		var owner string
		if account.Domain != nil {
			if owner, err = l.accountByDomain(ctx, *account.Domain); err != nil {
				return err
			}
		}

		switch {
		case linked != "":
			// a domain claimed elsewhere, or held as an alias, never moves onto the primary column
			if owner != "" {
				current, err := s.repos.Accounts.Get(ctx, cfg.OrganizationID, linked)
				if err != nil {
					return err
				}
				if current.Domain == nil || *current.Domain != *account.Domain {
					account.Domain = nil
				}
			}
		case owner != "":
			if err := s.adoptAccount(ctx, cfg, owner, externalID); err != nil {
				return err
			}
			account.Domain = nil
			adopted = true
		}

		stored, err := s.repos.Accounts.UpsertByCRMID(ctx, account, cfg.Provider)
		if err != nil {
			return err
		}
		l.byExternalID[externalID] = stored.ID
		return nil
	})
	if err != nil {
		delete(l.byExternalID, externalID)
		return false, err
	}
	return adopted, nil
}

// adoptAccount stamps the CRM id onto the account that owns the record's domain.
func (s *Syncer) adoptAccount(ctx context.Context, cfg *models.IntegrationConfig, accountID, externalID string) error {
	owner, err := s.repos.Accounts.Get(ctx, cfg.OrganizationID, accountID)
	if err != nil {
		return err
	}
	if current := owner.CRMID(cfg.Provider); current != nil && *current != externalID {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf(
			"account %s already carries %s id %s", owner.ID, cfg.Provider, *current))
	}
	owner.SetCRMID(cfg.Provider, &externalID)
	return s.repos.Accounts.UpdateCRMIDs(ctx, cfg.OrganizationID, owner.ID, owner.SalesforceID, owner.HubspotID)
}

// syncCRMContact reports false when the contact has no corporate email or no local account.
func (s *Syncer) syncCRMContact(ctx context.Context, cfg *models.IntegrationConfig, l *crmLookup, c providers.CRMContact) (bool, error) {
	domain, ok := normalizers.ExtractEmailDomain(c.Email)
	if !ok {
		return false, nil
	}

	var accountID string
	if c.AccountExternalID != nil {
		id, err := l.account(ctx, *c.AccountExternalID)
		if err != nil {
			return false, err
		}
		accountID = id
	}
	if accountID == "" {
		id, err := l.accountByDomain(ctx, domain)
		if err != nil {
			return false, err
		}
		accountID = id
	}
	if accountID == "" {
		return false, nil
	}

	_, err := s.repos.Contacts.Upsert(ctx, &models.Contact{
		OrganizationID: cfg.OrganizationID,
		AccountID:      accountID,
		Email:          normalizers.NormalizeEmail(c.Email),
		EmailDomain:    domain,
		Name:           trimmed(c.Name),
		Title:          trimmed(c.Title),
		Phone:          trimmed(c.Phone),
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// syncOpportunity returns "created", "duplicate" or "skipped".
func (s *Syncer) syncOpportunity(ctx context.Context, cfg *models.IntegrationConfig, l *crmLookup, o providers.CRMOpportunity) (string, error) {
	if o.ExternalID == "" || o.AccountExternalID == "" {
		return "skipped", nil
	}
	accountID, err := l.account(ctx, o.AccountExternalID)
	if err != nil {
		return "", err
	}
	if accountID == "" {
		return "skipped", nil
	}

	created, err := s.repos.CRMEvents.CreateIgnoreDuplicate(ctx, &models.CRMEvent{
		OrganizationID: cfg.OrganizationID,
		AccountID:      accountID,
		Provider:       cfg.Provider,
		EventType:      o.LedgerEventType(),
		OpportunityID:  o.ExternalID,
		StageName:      o.StageName,
		Amount:         o.Amount,
		CloseDate:      o.CloseDate,
		Description:    o.Description,
	})
	if err != nil {
		return "", err
	}
	if !created {
		return "duplicate", nil
	}
	return "created", nil
}

// crmLookup resolves CRM account references to local account ids.
type crmLookup struct {
	s            *Syncer
	orgID        string
	provider     models.Provider
	byExternalID map[string]string
}

// account returns "" when no local account carries the CRM id.
func (l *crmLookup) account(ctx context.Context, externalID string) (string, error) {
	if id, ok := l.byExternalID[externalID]; ok {
		return id, nil
	}
	account, err := l.s.repos.Accounts.GetByCRMID(ctx, l.orgID, l.provider, externalID)
	if err != nil {
		if isNotFound(err) {
			l.byExternalID[externalID] = ""
			return "", nil
		}
		return "", err
	}
	l.byExternalID[externalID] = account.ID
	return account.ID, nil
}

func (l *crmLookup) accountByDomain(ctx context.Context, domain string) (string, error) {
	accounts, err := l.s.repos.Accounts.FindByPrimaryDomains(ctx, l.orgID, []string{domain})
	if err != nil {
		return "", err
	}
	if len(accounts) > 0 {
		return accounts[0].ID, nil
	}
	if l.s.repos.Domains == nil {
		return "", nil
	}
	aliases, err := l.s.repos.Domains.FindByDomains(ctx, l.orgID, []string{domain})
	if err != nil {
		return "", err
	}
	if len(aliases) > 0 {
		return aliases[0].AccountID, nil
	}
	return "", nil
}

func isNotFound(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
