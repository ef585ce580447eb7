// Package events publishes account lifecycle events for downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	EventTypeAccountMerged      EventType = "account.merged"
	EventTypeAccountMergeUndone EventType = "account.merge_undone"
)

type BaseEvent struct {
	EventType      EventType `json:"event_type"`
	SchemaVersion  string    `json:"schema_version"`
	OrganizationID string    `json:"organization_id"`
	Timestamp      time.Time `json:"timestamp"`
	CorrelationID  string    `json:"correlation_id"`
}

func NewBaseEvent(eventType EventType, orgID string) BaseEvent {
	return BaseEvent{
		EventType:      eventType,
		SchemaVersion:  SchemaVersion,
		OrganizationID: orgID,
		Timestamp:      time.Now().UTC(),
		CorrelationID:  uuid.New().String(),
	}
}

// AccountMergedEvent says SourceAccountID no longer exists and everything it
// owned now belongs to TargetAccountID.
type AccountMergedEvent struct {
	BaseEvent
	MergeRunID      string             `json:"merge_run_id"`
	SourceAccountID string             `json:"source_account_id"`
	TargetAccountID string             `json:"target_account_id"`
	MergedBy        string             `json:"merged_by"`
	Counts          models.MergeCounts `json:"counts"`
}

// AccountMergeUndoneEvent says SourceAccountID exists again with what it owned before the merge.
type AccountMergeUndoneEvent struct {
	BaseEvent
	MergeRunID      string `json:"merge_run_id"`
	SourceAccountID string `json:"source_account_id"`
	TargetAccountID string `json:"target_account_id"`
	UndoneBy        string `json:"undone_by"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value any, headers map[string]string) error
}

type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{publisher: publisher, logger: logger}
}

func (e *Emitter) EmitAccountMerged(ctx context.Context, run *models.MergeRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAccountMerged")
	defer span.End()

	event := &AccountMergedEvent{
		BaseEvent:       NewBaseEvent(EventTypeAccountMerged, run.OrganizationID),
		MergeRunID:      run.ID,
		SourceAccountID: run.SecondaryAccountID,
		TargetAccountID: run.PrimaryAccountID,
		MergedBy:        run.MergedBy,
		Counts:          run.MovedCounts.Data,
	}
	return e.emit(ctx, run.PrimaryAccountID, event.EventType, event)
}

func (e *Emitter) EmitAccountMergeUndone(ctx context.Context, run *models.MergeRun) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitAccountMergeUndone")
	defer span.End()

	undoneBy := ""
	if run.UndoneBy != nil {
		undoneBy = *run.UndoneBy
	}
	event := &AccountMergeUndoneEvent{
		BaseEvent:       NewBaseEvent(EventTypeAccountMergeUndone, run.OrganizationID),
		MergeRunID:      run.ID,
		SourceAccountID: run.SecondaryAccountID,
		TargetAccountID: run.PrimaryAccountID,
		UndoneBy:        undoneBy,
	}
	return e.emit(ctx, run.PrimaryAccountID, event.EventType, event)
}

// emit keys by the surviving account so a merge and its undo stay ordered.
func (e *Emitter) emit(ctx context.Context, key string, eventType EventType, event any) error {
	err := e.publisher.Publish(ctx, key, event, map[string]string{
		"event_type":     string(eventType),
		"schema_version": SchemaVersion,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to emit %s event", eventType)
		return err
	}
	return nil
}
