package jobs

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/kafka"
)

// KafkaPublisher publishes jobs keyed by call id so redeliveries land on one partition.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, job ProcessingJob) error {
	return p.producer.Publish(ctx, job.CallID, job, map[string]string{
		"organization_id": job.OrganizationID,
		"job_type":        "call_processing",
	})
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
