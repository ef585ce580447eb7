package models

import "time"

// Account is the canonical organization record every call and contact resolves to.
type Account struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Domain         *string   `json:"domain,omitempty" db:"domain"`
	Industry       *string   `json:"industry,omitempty" db:"industry"`
	EmployeeCount  *int      `json:"employee_count,omitempty" db:"employee_count"`
	AnnualRevenue  *float64  `json:"annual_revenue,omitempty" db:"annual_revenue"`
	SalesforceID   *string   `json:"salesforce_id,omitempty" db:"salesforce_id"`
	HubspotID      *string   `json:"hubspot_id,omitempty" db:"hubspot_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// CRMID returns the account's native id in the given CRM.
func (a *Account) CRMID(provider Provider) *string {
	switch provider {
	case ProviderSalesforce:
		return a.SalesforceID
	case ProviderHubspot:
		return a.HubspotID
	default:
		return nil
	}
}

// SetCRMID sets the native id column for provider. Unknown providers are ignored.
func (a *Account) SetCRMID(provider Provider, id *string) {
	switch provider {
	case ProviderSalesforce:
		a.SalesforceID = id
	case ProviderHubspot:
		a.HubspotID = id
	}
}

// AccountDomain is an alias domain owned by an account in addition to its primary domain.
type AccountDomain struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Domain         string    `json:"domain" db:"domain"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Story struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Title          string    `json:"title" db:"title"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AccessGrant gives a user visibility of one account.
type AccessGrant struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	UserID         string `json:"user_id" db:"user_id"`
	AccountID      string `json:"account_id" db:"account_id"`
}

type CreateAccountInput struct {
	Name   string  `json:"name" validate:"required"`
	Domain *string `json:"domain,omitempty"`
}
