package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fern-api", cfg.AppName)
	assert.Equal(t, 0.7, cfg.LowConfidenceThreshold)
	assert.Equal(t, 3, cfg.SuggestionLimit)
	assert.Equal(t, 3, cfg.ProcessingJobAttempts)
	assert.Equal(t, 5*time.Second, cfg.ProcessingJobBackoff)
	assert.Equal(t, 0.4, cfg.FuzzyDistanceThreshold)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("PROCESSING_QUEUE_BACKEND", "rabbit")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, "rabbit", cfg.ProcessingQueueBackend)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoad_MigrationVersion(t *testing.T) {
	t.Setenv("DB_MIGRATION_VERSION", "7")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.DatabaseMigrationVersion)

	t.Setenv("DB_MIGRATION_VERSION", "-1")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")
	_, err := Load()
	assert.Error(t, err)
}
