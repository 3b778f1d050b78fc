// Package metrics exposes Prometheus collectors for brief runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefgen_runs_started_total",
			Help: "Total number of brief runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefgen_runs_completed_total",
			Help: "Total number of brief runs finished, by outcome",
		},
		[]string{"outcome", "partial"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "briefgen_run_duration_seconds",
			Help:    "Brief run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "briefgen_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Source metrics
	SourcesSummarized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefgen_sources_summarized_total",
			Help: "Total number of sources summarized",
		},
	)

	SourcesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefgen_sources_skipped_total",
			Help: "Total number of candidate sources skipped, by reason",
		},
		[]string{"reason"},
	)

	// External call metrics
	CallRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefgen_call_retries_total",
			Help: "Retries of external calls, by operation and error kind",
		},
		[]string{"op", "kind"},
	)

	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "briefgen_tokens_used_total",
			Help: "Model tokens consumed, by model key",
		},
		[]string{"model_key"},
	)

	// Cache metrics
	ContextCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefgen_context_cache_hits_total",
			Help: "User context reads served from Redis",
		},
	)

	ContextCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "briefgen_context_cache_misses_total",
			Help: "User context reads that went to the store",
		},
	)
)
