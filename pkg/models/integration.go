package models

import "time"

// Provider identifies an upstream integration.
type Provider string

const (
	ProviderGong       Provider = "GONG"
	ProviderChorus     Provider = "CHORUS"
	ProviderZoom       Provider = "ZOOM"
	ProviderGrain      Provider = "GRAIN"
	ProviderFireflies  Provider = "FIREFLIES"
	ProviderSalesforce Provider = "SALESFORCE"
	ProviderHubspot    Provider = "HUBSPOT"
	ProviderMergeDev   Provider = "MERGE_DEV"
)

type IntegrationCategory string

const (
	IntegrationCategoryCallRecording IntegrationCategory = "CALL_RECORDING"
	IntegrationCategoryCRM           IntegrationCategory = "CRM"
)

type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "ACTIVE"
	IntegrationStatusError    IntegrationStatus = "ERROR"
	IntegrationStatusDisabled IntegrationStatus = "DISABLED"
)

// IntegrationConfig is an organization's connection to one provider.
type IntegrationConfig struct {
	ID             string              `json:"id" db:"id"`
	OrganizationID string              `json:"organization_id" db:"organization_id"`
	Provider       Provider            `json:"provider" db:"provider"`
	Category       IntegrationCategory `json:"category" db:"category"`
	Enabled        bool                `json:"enabled" db:"enabled"`
	Credentials    []byte              `json:"-" db:"credentials"`
	SyncCursor     *string             `json:"sync_cursor,omitempty" db:"sync_cursor"`
	LastSyncAt     *time.Time          `json:"last_sync_at,omitempty" db:"last_sync_at"`
	Status         IntegrationStatus   `json:"status" db:"status"`
	LastError      *string             `json:"last_error,omitempty" db:"last_error"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// Syncable reports whether the scheduler should pick the config up.
func (c *IntegrationConfig) Syncable() bool {
	return c.Enabled && (c.Status == IntegrationStatusActive || c.Status == IntegrationStatusError)
}
