// Package providers defines the contracts upstream integrations implement and
// the registry the syncer looks them up in.
package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// NormalizedTranscript is a call transcript in provider-neutral form.
type NormalizedTranscript struct {
	FullText string
	Language *string
}

// NormalizedCall is a call in provider-neutral form.
type NormalizedCall struct {
	ExternalID      string
	RecordingID     *string
	Title           string
	DurationSeconds int
	OccurredAt      time.Time
	RecordingURL    *string
	Participants    []models.ParticipantInput
	Transcript      *NormalizedTranscript
}

// CallPage is one page of calls. NextCursor resumes after this page.
type CallPage struct {
	Data       []NormalizedCall
	NextCursor *string
	HasMore    bool
}

type CRMAccount struct {
	ExternalID    string
	Name          string
	Domain        *string
	Industry      *string
	EmployeeCount *int
	AnnualRevenue *float64
}

type CRMContact struct {
	ExternalID        string
	AccountExternalID *string
	Email             string
	Name              *string
	Title             *string
	Phone             *string
}

type CRMOpportunity struct {
	ExternalID        string
	AccountExternalID string
	Name              string
	StageName         string
	EventType         models.CRMEventType
	IsClosed          bool
	IsWon             bool
	Amount            *float64
	CloseDate         *time.Time
	Description       *string
}

// LedgerEventType is the explicit event type when the provider supplied one,
// otherwise it is derived from the closed and won flags.
func (o CRMOpportunity) LedgerEventType() models.CRMEventType {
	switch {
	case o.EventType != "":
		return o.EventType
	case o.IsClosed && o.IsWon:
		return models.CRMEventClosedWon
	case o.IsClosed:
		return models.CRMEventClosedLost
	default:
		return models.CRMEventStageChange
	}
}

// CallRecordingProvider pages calls recorded since the given time. A nil cursor
// starts from the beginning.
type CallRecordingProvider interface {
	FetchCalls(ctx context.Context, credentials json.RawMessage, cursor *string, since *time.Time) (*CallPage, error)
}

type CRMProvider interface {
	FetchAccounts(ctx context.Context, credentials json.RawMessage) ([]CRMAccount, error)
	FetchContacts(ctx context.Context, credentials json.RawMessage) ([]CRMContact, error)
	FetchOpportunities(ctx context.Context, credentials json.RawMessage) ([]CRMOpportunity, error)
}

// CredentialResolver turns a stored config into the credentials a provider call needs.
type CredentialResolver interface {
	Resolve(ctx context.Context, config *models.IntegrationConfig) (json.RawMessage, error)
}

// PassthroughCredentials hands the stored credential blob to the provider as is.
type PassthroughCredentials struct{}

func (PassthroughCredentials) Resolve(_ context.Context, config *models.IntegrationConfig) (json.RawMessage, error) {
	return json.RawMessage(config.Credentials), nil
}
