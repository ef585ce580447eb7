package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

type published struct {
	key     string
	value   []byte
	headers map[string]string
}

type fakePublisher struct {
	err  error
	sent []published
}

func (f *fakePublisher) Publish(_ context.Context, key string, value any, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, published{key: key, value: body, headers: headers})
	return nil
}

func testRun() *models.MergeRun {
	undoneBy := "user-2"
	return &models.MergeRun{
		ID:                 "run-1",
		OrganizationID:     "org-1",
		PrimaryAccountID:   "target",
		SecondaryAccountID: "source",
		MergedBy:           "user-1",
		UndoneBy:           &undoneBy,
		MovedCounts:        database.NewJSONB(models.MergeCounts{Calls: 3, Contacts: 2}),
	}
}

func TestEmitter(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("account merged", func(t *testing.T) {
		pub := &fakePublisher{}
		require.NoError(t, NewEmitter(pub, logger).EmitAccountMerged(context.Background(), testRun()))

		require.Len(t, pub.sent, 1)
		assert.Equal(t, "target", pub.sent[0].key)
		assert.Equal(t, "account.merged", pub.sent[0].headers["event_type"])

		var event AccountMergedEvent
		require.NoError(t, json.Unmarshal(pub.sent[0].value, &event))
		assert.Equal(t, EventTypeAccountMerged, event.EventType)
		assert.Equal(t, SchemaVersion, event.SchemaVersion)
		assert.Equal(t, "org-1", event.OrganizationID)
		assert.Equal(t, "source", event.SourceAccountID)
		assert.Equal(t, "target", event.TargetAccountID)
		assert.Equal(t, 3, event.Counts.Calls)
		assert.NotEmpty(t, event.CorrelationID)
	})

	t.Run("merge undone", func(t *testing.T) {
		pub := &fakePublisher{}
		require.NoError(t, NewEmitter(pub, logger).EmitAccountMergeUndone(context.Background(), testRun()))

		var event AccountMergeUndoneEvent
		require.NoError(t, json.Unmarshal(pub.sent[0].value, &event))
		assert.Equal(t, EventTypeAccountMergeUndone, event.EventType)
		assert.Equal(t, "user-2", event.UndoneBy)
	})

	t.Run("publish failure is returned", func(t *testing.T) {
		pub := &fakePublisher{err: errors.New("broker down")}
		assert.Error(t, NewEmitter(pub, logger).EmitAccountMerged(context.Background(), testRun()))
	})
}
