// Package jobs hands calls with fresh transcripts to the downstream
// processing pipeline.
package jobs

import "context"

// ProcessingJob asks the processing pipeline to analyse one call.
type ProcessingJob struct {
	CallID         string  `json:"call_id"`
	OrganizationID string  `json:"organization_id"`
	AccountID      *string `json:"account_id,omitempty"`
	HasTranscript  bool    `json:"has_transcript"`
}

// Publisher delivers a job to the queue backend.
type Publisher interface {
	Publish(ctx context.Context, job ProcessingJob) error
}

// Queue backends selectable by configuration.
const (
	BackendKafka  = "kafka"
	BackendRabbit = "rabbitmq"
)
