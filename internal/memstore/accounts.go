package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

type accountRepo struct{ s *Store }

func prepareAccount(a *models.Account) {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	a.NormalizedName = normalizers.NormalizeCompanyName(a.Name)
	if a.Domain != nil {
		d := strings.ToLower(strings.TrimSpace(*a.Domain))
		if d == "" {
			a.Domain = nil
		} else {
			a.Domain = &d
		}
	}
}

func sameOptional(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

// uniqueAccount mirrors the (organization, domain|salesforce_id|hubspot_id) unique indexes.
func (s *Store) uniqueAccount(a models.Account) error {
	for _, other := range s.st.accounts {
		if other.ID == a.ID || other.OrganizationID != a.OrganizationID {
			continue
		}
		if sameOptional(other.Domain, a.Domain) || sameOptional(other.SalesforceID, a.SalesforceID) || sameOptional(other.HubspotID, a.HubspotID) {
			return conflict("an account with this domain or CRM id already exists")
		}
	}
	return nil
}

func (r accountRepo) Create(_ context.Context, account *models.Account) (*models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prepareAccount(account)
	if _, exists := s.st.accounts[account.ID]; exists {
		return nil, conflict("account id already exists")
	}
	if err := s.uniqueAccount(*account); err != nil {
		return nil, err
	}
	s.st.accounts[account.ID] = *account
	s.track(account.ID)
	return account, nil
}

func (r accountRepo) Get(_ context.Context, orgID, id string) (*models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.Get")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	a, ok := s.st.accounts[id]
	if !ok || a.OrganizationID != orgID {
		return nil, notFound(fmt.Sprintf("account %s not found", id))
	}
	return &a, nil
}

func (r accountRepo) ListByOrganization(_ context.Context, orgID string) ([]models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.ListByOrganization")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.Account
	for _, a := range s.st.accounts {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NormalizedName != out[j].NormalizedName {
			return out[i].NormalizedName < out[j].NormalizedName
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r accountRepo) FindByPrimaryDomains(_ context.Context, orgID string, domains []string) ([]models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.FindByPrimaryDomains")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var ids []string
	for id, a := range s.st.accounts {
		if a.OrganizationID == orgID && a.Domain != nil && contains(domains, *a.Domain) {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	out := make([]models.Account, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.st.accounts[id])
	}
	return out, nil
}

func (s *Store) accountByCRMID(orgID string, provider models.Provider, crmID string) (models.Account, bool) {
	for _, a := range s.st.accounts {
		if a.OrganizationID != orgID {
			continue
		}
		if id := a.CRMID(provider); id != nil && *id == crmID {
			return a, true
		}
	}
	return models.Account{}, false
}

func (r accountRepo) GetByCRMID(_ context.Context, orgID string, provider models.Provider, crmID string) (*models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.GetByCRMID")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	a, ok := s.accountByCRMID(orgID, provider, crmID)
	if !ok {
		return nil, notFound(fmt.Sprintf("no account for %s id %s", provider, crmID))
	}
	return &a, nil
}

func (r accountRepo) UpsertByCRMID(_ context.Context, account *models.Account, provider models.Provider) (*models.Account, error) {
	s := r.s
	err := s.enter("AccountRepo.UpsertByCRMID")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	crmID := account.CRMID(provider)
	if crmID == nil {
		return nil, fmt.Errorf("account has no %s id", provider)
	}
	prepareAccount(account)

	existing, ok := s.accountByCRMID(account.OrganizationID, provider, *crmID)
	if !ok {
		if err := s.uniqueAccount(*account); err != nil {
			return nil, err
		}
		s.st.accounts[account.ID] = *account
		s.track(account.ID)
		stored := *account
		return &stored, nil
	}

	existing.Name = account.Name
	existing.NormalizedName = account.NormalizedName
	if account.Domain != nil {
		existing.Domain = account.Domain
	}
	if account.Industry != nil {
		existing.Industry = account.Industry
	}
	if account.EmployeeCount != nil {
		existing.EmployeeCount = account.EmployeeCount
	}
	if account.AnnualRevenue != nil {
		existing.AnnualRevenue = account.AnnualRevenue
	}
	existing.UpdatedAt = account.UpdatedAt
	if err := s.uniqueAccount(existing); err != nil {
		return nil, err
	}
	s.st.accounts[existing.ID] = existing
	return &existing, nil
}

func (r accountRepo) UpdateCRMIDs(_ context.Context, orgID, id string, salesforceID, hubspotID *string) error {
	s := r.s
	err := s.enter("AccountRepo.UpdateCRMIDs")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	a, ok := s.st.accounts[id]
	if !ok || a.OrganizationID != orgID {
		return nil
	}
	a.SalesforceID = salesforceID
	a.HubspotID = hubspotID
	a.UpdatedAt = time.Now().UTC()
	if err := s.uniqueAccount(a); err != nil {
		return err
	}
	s.st.accounts[id] = a
	return nil
}

func (r accountRepo) Delete(_ context.Context, orgID, id string) error {
	s := r.s
	err := s.enter("AccountRepo.Delete")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	a, ok := s.st.accounts[id]
	if !ok || a.OrganizationID != orgID {
		return notFound(fmt.Sprintf("account %s not found", id))
	}
	for _, table := range []string{"calls", "contacts", "crm_events", "stories", "user_account_access"} {
		if s.referenced(table, id) {
			return fmt.Errorf("account %s is still referenced by %s", id, table)
		}
	}
	delete(s.st.accounts, id)
	for did, d := range s.st.domains {
		if d.AccountID == id {
			delete(s.st.domains, did)
		}
	}
	return nil
}

// referenced mirrors the foreign keys pointing at accounts without ON DELETE CASCADE.
func (s *Store) referenced(table, accountID string) bool {
	switch table {
	case "calls":
		for _, c := range s.st.calls {
			if c.AccountID != nil && *c.AccountID == accountID {
				return true
			}
		}
	case "contacts":
		for _, c := range s.st.contacts {
			if c.AccountID == accountID {
				return true
			}
		}
	case "crm_events":
		for _, e := range s.st.crmEvents {
			if e.AccountID == accountID {
				return true
			}
		}
	case "stories":
		for _, st := range s.st.stories {
			if st.AccountID == accountID {
				return true
			}
		}
	case "user_account_access":
		for _, g := range s.st.grants {
			if g.AccountID == accountID {
				return true
			}
		}
	}
	return false
}

type domainRepo struct{ s *Store }

func (r domainRepo) Create(_ context.Context, domain *models.AccountDomain) (*models.AccountDomain, error) {
	s := r.s
	err := s.enter("AccountDomainRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if domain.ID == "" {
		domain.ID = uuid.New().String()
	}
	if domain.CreatedAt.IsZero() {
		domain.CreatedAt = time.Now().UTC()
	}
	domain.Domain = strings.ToLower(strings.TrimSpace(domain.Domain))
	if _, ok := s.st.accounts[domain.AccountID]; !ok {
		return nil, fmt.Errorf("account %s does not exist", domain.AccountID)
	}
	for _, d := range s.st.domains {
		if d.OrganizationID == domain.OrganizationID && d.Domain == domain.Domain {
			return nil, conflict("domain " + domain.Domain + " is already claimed")
		}
	}
	s.st.domains[domain.ID] = *domain
	s.track(domain.ID)
	return domain, nil
}

func (r domainRepo) FindByDomains(_ context.Context, orgID string, domains []string) ([]models.AccountDomain, error) {
	s := r.s
	err := s.enter("AccountDomainRepo.FindByDomains")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.filterDomains(func(d models.AccountDomain) bool {
		return d.OrganizationID == orgID && contains(domains, d.Domain)
	}), nil
}

func (r domainRepo) ListByAccount(_ context.Context, orgID, accountID string) ([]models.AccountDomain, error) {
	s := r.s
	err := s.enter("AccountDomainRepo.ListByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.filterDomains(func(d models.AccountDomain) bool {
		return d.OrganizationID == orgID && d.AccountID == accountID
	}), nil
}

func (s *Store) filterDomains(keep func(models.AccountDomain) bool) []models.AccountDomain {
	var ids []string
	for id, d := range s.st.domains {
		if keep(d) {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	out := make([]models.AccountDomain, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.st.domains[id])
	}
	return out
}

func (r domainRepo) IsClaimed(_ context.Context, orgID, domain string) (bool, error) {
	s := r.s
	err := s.enter("AccountDomainRepo.IsClaimed")
	defer s.mu.Unlock()
	if err != nil {
		return false, err
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, a := range s.st.accounts {
		if a.OrganizationID == orgID && a.Domain != nil && *a.Domain == domain {
			return true, nil
		}
	}
	for _, d := range s.st.domains {
		if d.OrganizationID == orgID && d.Domain == domain {
			return true, nil
		}
	}
	return false, nil
}

func (r domainRepo) DeleteByIDs(_ context.Context, ids []string) error {
	s := r.s
	err := s.enter("AccountDomainRepo.DeleteByIDs")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		delete(s.st.domains, id)
	}
	return nil
}

type contactRepo struct{ s *Store }

func prepareContact(c *models.Contact) {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Email = normalizers.NormalizeEmail(c.Email)
	if c.EmailDomain == "" {
		if at := strings.LastIndex(c.Email, "@"); at >= 0 {
			c.EmailDomain = c.Email[at+1:]
		}
	}
}

func (s *Store) contactByEmail(accountID, email string) (models.Contact, bool) {
	for _, c := range s.st.contacts {
		if c.AccountID == accountID && c.Email == email {
			return c, true
		}
	}
	return models.Contact{}, false
}

func (r contactRepo) Create(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	s := r.s
	err := s.enter("ContactRepo.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prepareContact(contact)
	if _, dup := s.contactByEmail(contact.AccountID, contact.Email); dup {
		return nil, conflict(fmt.Sprintf("contact %s already exists on account", contact.Email))
	}
	s.st.contacts[contact.ID] = *contact
	s.track(contact.ID)
	return contact, nil
}

func (r contactRepo) Upsert(_ context.Context, contact *models.Contact) (*models.Contact, error) {
	s := r.s
	err := s.enter("ContactRepo.Upsert")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prepareContact(contact)
	existing, ok := s.contactByEmail(contact.AccountID, contact.Email)
	if !ok {
		s.st.contacts[contact.ID] = *contact
		s.track(contact.ID)
		stored := *contact
		return &stored, nil
	}

	if contact.Name != nil {
		existing.Name = contact.Name
	}
	if contact.Title != nil {
		existing.Title = contact.Title
	}
	if contact.Phone != nil {
		existing.Phone = contact.Phone
	}
	existing.UpdatedAt = contact.UpdatedAt
	s.st.contacts[existing.ID] = existing
	return &existing, nil
}

func (s *Store) filterContacts(keep func(models.Contact) bool) []models.Contact {
	var ids []string
	for id, c := range s.st.contacts {
		if keep(c) {
			ids = append(ids, id)
		}
	}
	s.sortBySeq(ids)
	out := make([]models.Contact, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.st.contacts[id])
	}
	return out
}

func (r contactRepo) FindByEmailDomains(_ context.Context, orgID string, domains []string) ([]models.Contact, error) {
	s := r.s
	err := s.enter("ContactRepo.FindByEmailDomains")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.filterContacts(func(c models.Contact) bool {
		return c.OrganizationID == orgID && contains(domains, c.EmailDomain)
	}), nil
}

func (r contactRepo) ListByAccount(_ context.Context, orgID, accountID string) ([]models.Contact, error) {
	s := r.s
	err := s.enter("ContactRepo.ListByAccount")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return s.filterContacts(func(c models.Contact) bool {
		return c.OrganizationID == orgID && c.AccountID == accountID
	}), nil
}

func (r contactRepo) UpdateAccount(_ context.Context, ids []string, accountID string) error {
	s := r.s
	err := s.enter("ContactRepo.UpdateAccount")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, id := range ids {
		c, ok := s.st.contacts[id]
		if !ok {
			continue
		}
		if other, dup := s.contactByEmail(accountID, c.Email); dup && other.ID != id {
			return conflict(fmt.Sprintf("contact %s already exists on account", c.Email))
		}
		c.AccountID = accountID
		c.UpdatedAt = time.Now().UTC()
		s.st.contacts[id] = c
	}
	return nil
}

func (r contactRepo) Delete(_ context.Context, id string) error {
	s := r.s
	err := s.enter("ContactRepo.Delete")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	delete(s.st.contacts, id)
	for pid, p := range s.st.participants {
		if p.ContactID != nil && *p.ContactID == id {
			p.ContactID = nil
			s.st.participants[pid] = p
		}
	}
	return nil
}
