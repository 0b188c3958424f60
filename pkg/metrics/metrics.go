// Package metrics provides Prometheus metrics for the clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnmappedFeatureKeysTotal counts feature keys the feature map has no slot for
	UnmappedFeatureKeysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "embedding",
			Name:      "unmapped_feature_keys_total",
			Help:      "Total number of feature keys dropped because the feature map has no index for them",
		},
		[]string{"source"},
	)

	// EmbeddingRebuildsTotal tracks embedding rebuilds by outcome
	EmbeddingRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "embedding",
			Name:      "rebuilds_total",
			Help:      "Total number of embedding rebuilds by status",
		},
		[]string{"trigger", "status"},
	)

	// QuestionnaireSubmissionsTotal tracks submissions by questionnaire and outcome
	QuestionnaireSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "questionnaire",
			Name:      "submissions_total",
			Help:      "Total number of questionnaire submissions by status",
		},
		[]string{"questionnaire", "status"},
	)

	// MatchRunsTotal tracks matching pipeline runs by outcome
	MatchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Total number of matching runs by status",
		},
		[]string{"status"},
	)

	// MatchCandidates tracks how many candidates survive each pipeline stage
	MatchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "matching",
			Name:      "candidates",
			Help:      "Number of candidates remaining after each matching stage",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 500, 1000, 5000},
		},
		[]string{"stage"},
	)

	// VectorSearchDuration tracks nearest-neighbour query latency
	VectorSearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "vector_search",
			Name:      "duration_seconds",
			Help:      "Duration of vector search queries in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	// EventsPublishedTotal tracks domain events sent to Kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type and status",
		},
		[]string{"event_type", "status"},
	)

	// LockWaitDuration tracks time spent waiting for per-user rebuild locks
	LockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent acquiring embedding rebuild locks",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)
)
