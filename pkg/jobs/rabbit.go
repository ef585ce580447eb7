package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RabbitPublisher publishes persistent jobs to a durable RabbitMQ queue.
type RabbitPublisher struct {
	conn  *amqp.Connection
	queue string
}

// NewRabbitPublisher connects to RabbitMQ and declares the queue.
func NewRabbitPublisher(url, queueName string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &RabbitPublisher{conn: conn, queue: q.Name}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, job ProcessingJob) error {
	ctx, span := tracing.StartSpan(ctx, "jobs.RabbitPublisher.Publish")
	defer span.End()

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	headers := amqp.Table{"organization_id": job.OrganizationID}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers["traceparent"] = traceparent
	}

	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.CallID,
		Headers:      headers,
		Body:         body,
	})
}

func (p *RabbitPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
