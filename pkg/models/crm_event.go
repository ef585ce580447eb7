package models

import "time"

type CRMEventType string

const (
	CRMEventOpportunityCreated CRMEventType = "OPPORTUNITY_CREATED"
	CRMEventStageChange        CRMEventType = "STAGE_CHANGE"
	CRMEventClosedWon          CRMEventType = "CLOSED_WON"
	CRMEventClosedLost         CRMEventType = "CLOSED_LOST"
)

// CRMEvent is one row of the opportunity ledger. The (account, opportunity, stage)
// triple is unique.
type CRMEvent struct {
	ID             string       `json:"id" db:"id"`
	OrganizationID string       `json:"organization_id" db:"organization_id"`
	AccountID      string       `json:"account_id" db:"account_id"`
	Provider       Provider     `json:"provider" db:"provider"`
	EventType      CRMEventType `json:"event_type" db:"event_type"`
	OpportunityID  string       `json:"opportunity_id" db:"opportunity_id"`
	StageName      string       `json:"stage_name" db:"stage_name"`
	Amount         *float64     `json:"amount,omitempty" db:"amount"`
	CloseDate      *time.Time   `json:"close_date,omitempty" db:"close_date"`
	Description    *string      `json:"description,omitempty" db:"description"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}
