package models

import "time"

type ApprovalRequestType string

const ApprovalRequestTypeAccountMerge ApprovalRequestType = "ACCOUNT_MERGE"

type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// ApprovalRequest gates a merge behind a second reviewer.
type ApprovalRequest struct {
	ID              string              `json:"id" db:"id"`
	OrganizationID  string              `json:"organization_id" db:"organization_id"`
	RequestType     ApprovalRequestType `json:"request_type" db:"request_type"`
	Status          ApprovalStatus      `json:"status" db:"status"`
	SourceAccountID string              `json:"source_account_id" db:"source_account_id"`
	TargetAccountID string              `json:"target_account_id" db:"target_account_id"`
	RequestedBy     string              `json:"requested_by" db:"requested_by"`
	ReviewedBy      *string             `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewNotes     *string             `json:"review_notes,omitempty" db:"review_notes"`
	MergeRunID      *string             `json:"merge_run_id,omitempty" db:"merge_run_id"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	ReviewedAt      *time.Time          `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

type ReviewApprovalRequest struct {
	Notes *string `json:"notes,omitempty"`
}
