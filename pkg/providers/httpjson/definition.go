// Package httpjson is a configurable REST provider: it pages a JSON HTTP
// endpoint and maps each record into normalized calls or CRM records with
// JMESPath expressions, so adding a provider is configuration rather than code.
package httpjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Field names understood per record kind.
const (
	FieldExternalID         = "external_id"
	FieldRecordingID        = "recording_id"
	FieldTitle              = "title"
	FieldDurationSeconds    = "duration_seconds"
	FieldOccurredAt         = "occurred_at"
	FieldRecordingURL       = "recording_url"
	FieldTranscript         = "transcript"
	FieldTranscriptLanguage = "transcript_language"

	FieldEmail  = "email"
	FieldName   = "name"
	FieldIsHost = "is_host"

	FieldDomain        = "domain"
	FieldIndustry      = "industry"
	FieldEmployeeCount = "employee_count"
	FieldAnnualRevenue = "annual_revenue"

	FieldAccountExternalID = "account_external_id"
	FieldPhone             = "phone"

	FieldStageName   = "stage_name"
	FieldEventType   = "event_type"
	FieldIsClosed    = "is_closed"
	FieldIsWon       = "is_won"
	FieldAmount      = "amount"
	FieldCloseDate   = "close_date"
	FieldDescription = "description"
)

const defaultMaxPages = 100

// Field extracts one value from a record. Normalizers are names from the
// normalizers registry applied in order to string results.
type Field struct {
	Expression  string   `json:"expression" validate:"required"`
	Normalizers []string `json:"normalizers,omitempty"`
}

// Mapping selects the records of a response and maps their fields.
type Mapping struct {
	Records string           `json:"records" validate:"required"`
	Fields  map[string]Field `json:"fields" validate:"required,dive"`
}

// Endpoint is one paged listing.
type Endpoint struct {
	Path string `json:"path" validate:"required"`
	// CursorParam is the query parameter the cursor is sent in.
	CursorParam string `json:"cursor_param,omitempty"`
	// SinceParam is the query parameter a lower time bound is sent in, RFC 3339.
	SinceParam string `json:"since_param,omitempty"`
	// NextCursor selects the next cursor from the response body.
	NextCursor string `json:"next_cursor,omitempty"`
	// HasMore selects a boolean from the body. Without it a non-empty next cursor means more.
	HasMore string `json:"has_more,omitempty"`
	Mapping
	// Participants maps the participants nested in each call record.
	Participants *Mapping `json:"participants,omitempty"`
}

// Auth places a credential value in a request header.
type Auth struct {
	Header string `json:"header"`
	Prefix string `json:"prefix,omitempty"`
	// Credential selects the value from the credentials document.
	Credential string `json:"credential"`
}

// Definition describes one provider.
type Definition struct {
	Provider models.Provider            `json:"provider" validate:"required"`
	Category models.IntegrationCategory `json:"category" validate:"required,oneof=CALL_RECORDING CRM"`
	BaseURL  string                     `json:"base_url" validate:"required,url"`
	Auth     *Auth                      `json:"auth,omitempty"`
	MaxPages int                        `json:"max_pages,omitempty" validate:"omitempty,min=1"`

	Calls         *Endpoint `json:"calls,omitempty" validate:"required_if=Category CALL_RECORDING"`
	Accounts      *Endpoint `json:"accounts,omitempty" validate:"required_if=Category CRM"`
	Contacts      *Endpoint `json:"contacts,omitempty" validate:"required_if=Category CRM"`
	Opportunities *Endpoint `json:"opportunities,omitempty" validate:"required_if=Category CRM"`
}

var validate = validator.New()

// Validate checks the definition is complete for its category.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid provider definition %q: %w", d.Provider, err)
	}
	return nil
}

// ParseDefinitions decodes and validates a JSON array of definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to decode provider definitions: %w", err)
	}
	for i := range defs {
		if err := defs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// ParseYAMLDefinitions decodes a YAML list of definitions. Keys follow the
// JSON field names.
func ParseYAMLDefinitions(data []byte) ([]Definition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode provider definitions: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode provider definitions: %w", err)
	}
	return ParseDefinitions(asJSON)
}

// LoadDefinitions reads provider definitions from a JSON or, by extension,
// YAML file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider definitions: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAMLDefinitions(data)
	}
	return ParseDefinitions(data)
}
