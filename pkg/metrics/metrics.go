// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks entity resolutions by tier
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Total number of resolutions by method",
		},
		[]string{"method"},
	)

	// SyncRunsTotal tracks per-config sync runs by outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of integration sync runs by status",
		},
		[]string{"provider", "status"},
	)

	// SyncDuration tracks per-config sync duration in seconds
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of integration syncs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"provider"},
	)

	// SyncRecordsTotal tracks records ingested by kind
	SyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Total number of records ingested by kind and outcome",
		},
		[]string{"provider", "kind", "outcome"},
	)

	// RateLimitWaitTime tracks time spent waiting on the provider page limiter
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "ratelimit",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for provider rate limits in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// SchedulerCyclesTotal tracks scheduler poll cycles
	SchedulerCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Total number of scheduler cycles",
		},
	)

	// SchedulerLocksSkipped tracks configs skipped because another run holds the lock
	SchedulerLocksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "scheduler",
			Name:      "locks_skipped_total",
			Help:      "Total number of configs skipped because their sync lock was held",
		},
	)

	// JobsPublished tracks processing jobs by outcome
	JobsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "jobs",
			Name:      "published_total",
			Help:      "Total number of processing jobs published by backend and status",
		},
		[]string{"backend", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// ReviewActionsTotal tracks manual queue actions
	ReviewActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "review",
			Name:      "actions_total",
			Help:      "Total number of resolution queue actions by kind",
		},
		[]string{"action"},
	)

	// MergesTotal tracks account merges and undos
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Total number of account merge operations by kind and status",
		},
		[]string{"operation", "status"},
	)

	// BestEffortFailures tracks post-commit side effects that failed
	BestEffortFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sideeffects",
			Name:      "failures_total",
			Help:      "Total number of failed best-effort side effects by target",
		},
		[]string{"target"},
	)
)

// Status label values
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// RecordSync records a per-config sync run
func RecordSync(provider, status string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(provider, status).Inc()
	SyncDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
