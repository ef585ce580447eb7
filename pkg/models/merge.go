package models

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/database"
)

type MergeRunStatus string

const (
	MergeRunStatusCompleted MergeRunStatus = "COMPLETED"
	MergeRunStatusUndone    MergeRunStatus = "UNDONE"
)

// MergeCounts is the number of rows of each kind a merge touched.
type MergeCounts struct {
	Calls                 int `json:"calls"`
	Contacts              int `json:"contacts"`
	ContactsDeduplicated  int `json:"contacts_deduplicated"`
	Domains               int `json:"domains"`
	Stories               int `json:"stories"`
	CRMEvents             int `json:"crm_events"`
	CRMEventsDeduplicated int `json:"crm_events_deduplicated"`
	AccessGrants          int `json:"access_grants"`
}

// DeletedContact is a source contact removed because the target already had its email.
type DeletedContact struct {
	Contact         Contact  `json:"contact"`
	TargetContactID string   `json:"target_contact_id"`
	ParticipantIDs  []string `json:"participant_ids"`
}

// AdoptedCRMIDs lists the CRM-native ids the target took over from the source.
type AdoptedCRMIDs struct {
	SalesforceID *string `json:"salesforce_id,omitempty"`
	HubspotID    *string `json:"hubspot_id,omitempty"`
}

// MergeSnapshot records everything a merge changed so Undo can restore it exactly.
type MergeSnapshot struct {
	SourceAccount       Account          `json:"source_account"`
	SourceAliases       []AccountDomain  `json:"source_aliases"`
	CreatedAliases      []AccountDomain  `json:"created_aliases"`
	MovedCallIDs        []string         `json:"moved_call_ids"`
	RepointedContactIDs []string         `json:"repointed_contact_ids"`
	DeletedContacts     []DeletedContact `json:"deleted_contacts"`
	MovedStoryIDs       []string         `json:"moved_story_ids"`
	MovedCRMEventIDs    []string         `json:"moved_crm_event_ids"`
	DeletedCRMEvents    []CRMEvent       `json:"deleted_crm_events"`
	MovedGrantIDs       []string         `json:"moved_grant_ids"`
	DroppedGrants       []AccessGrant    `json:"dropped_grants"`
	AdoptedCRMIDs       AdoptedCRMIDs    `json:"adopted_crm_ids"`
}

type MergeRun struct {
	ID                 string                        `json:"id" db:"id"`
	OrganizationID     string                        `json:"organization_id" db:"organization_id"`
	PrimaryAccountID   string                        `json:"primary_account_id" db:"primary_account_id"`
	SecondaryAccountID string                        `json:"secondary_account_id" db:"secondary_account_id"`
	Status             MergeRunStatus                `json:"status" db:"status"`
	MovedCounts        database.JSONB[MergeCounts]   `json:"moved_counts" db:"moved_counts"`
	Snapshot           database.JSONB[MergeSnapshot] `json:"-" db:"snapshot"`
	ApprovalRequestID  *string                       `json:"approval_request_id,omitempty" db:"approval_request_id"`
	MergedBy           string                        `json:"merged_by" db:"merged_by"`
	CreatedAt          time.Time                     `json:"created_at" db:"created_at"`
	UndoneAt           *time.Time                    `json:"undone_at,omitempty" db:"undone_at"`
	UndoneBy           *string                       `json:"undone_by,omitempty" db:"undone_by"`
}

type MergeOptions struct {
	MergedBy          string
	ApprovalRequestID *string
}

// MergePreview describes what merging source into target would do, without doing it.
type MergePreview struct {
	Source                 Account       `json:"source"`
	Target                 Account       `json:"target"`
	Counts                 MergeCounts   `json:"counts"`
	AliasDomains           []string      `json:"alias_domains"`
	DuplicateContactEmails []string      `json:"duplicate_contact_emails"`
	AdoptedCRMIDs          AdoptedCRMIDs `json:"adopted_crm_ids"`
}

type MergeRequest struct {
	SourceAccountID string `json:"source_account_id" validate:"required,uuid"`
	TargetAccountID string `json:"target_account_id" validate:"required,uuid"`
}
