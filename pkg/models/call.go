package models

import "time"

type MatchMethod string

const (
	MatchMethodNone        MatchMethod = "NONE"
	MatchMethodEmailDomain MatchMethod = "EMAIL_DOMAIN"
	MatchMethodFuzzyName   MatchMethod = "FUZZY_NAME"
	MatchMethodManual      MatchMethod = "MANUAL"
)

type Call struct {
	ID              string      `json:"id" db:"id"`
	OrganizationID  string      `json:"organization_id" db:"organization_id"`
	AccountID       *string     `json:"account_id,omitempty" db:"account_id"`
	Provider        Provider    `json:"provider" db:"provider"`
	ExternalID      string      `json:"external_id" db:"external_id"`
	RecordingID     *string     `json:"recording_id,omitempty" db:"recording_id"`
	Title           string      `json:"title" db:"title"`
	DurationSeconds int         `json:"duration_seconds" db:"duration_seconds"`
	OccurredAt      time.Time   `json:"occurred_at" db:"occurred_at"`
	RecordingURL    *string     `json:"recording_url,omitempty" db:"recording_url"`
	MatchMethod     MatchMethod `json:"match_method" db:"match_method"`
	MatchConfidence float64     `json:"match_confidence" db:"match_confidence"`
	DismissedAt     *time.Time  `json:"dismissed_at,omitempty" db:"dismissed_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

type CallParticipant struct {
	ID        string  `json:"id" db:"id"`
	CallID    string  `json:"call_id" db:"call_id"`
	Email     *string `json:"email,omitempty" db:"email"`
	Name      *string `json:"name,omitempty" db:"name"`
	IsHost    bool    `json:"is_host" db:"is_host"`
	ContactID *string `json:"contact_id,omitempty" db:"contact_id"`
}

// Input returns the participant in the shape the resolver consumes.
func (p CallParticipant) Input() ParticipantInput {
	in := ParticipantInput{IsHost: p.IsHost}
	if p.Email != nil {
		in.Email = *p.Email
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	return in
}

type Transcript struct {
	ID        string    `json:"id" db:"id"`
	CallID    string    `json:"call_id" db:"call_id"`
	FullText  string    `json:"full_text" db:"full_text"`
	Language  *string   `json:"language,omitempty" db:"language"`
	WordCount int       `json:"word_count" db:"word_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CallUpsert is the outcome of storing a provider call.
type CallUpsert struct {
	Call  *Call
	IsNew bool
}

// ParticipantInput is a participant as supplied by a provider or the review UI.
type ParticipantInput struct {
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	IsHost bool   `json:"is_host,omitempty"`
}

func ParticipantInputs(participants []CallParticipant) []ParticipantInput {
	out := make([]ParticipantInput, 0, len(participants))
	for _, p := range participants {
		out = append(out, p.Input())
	}
	return out
}
