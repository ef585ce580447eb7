package models

import "time"

type Contact struct {
	ID             string    `json:"id" db:"id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Email          string    `json:"email" db:"email"`
	EmailDomain    string    `json:"email_domain" db:"email_domain"`
	Name           *string   `json:"name,omitempty" db:"name"`
	Title          *string   `json:"title,omitempty" db:"title"`
	Phone          *string   `json:"phone,omitempty" db:"phone"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
