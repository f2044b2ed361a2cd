// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation metrics
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_recommendation_requests_total",
			Help: "Recommendation requests by list kind",
		},
		[]string{"kind"}, // collaborative, content_based, hybrid, trending, personalized
	)

	RecommendationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_recommendation_failures_total",
			Help: "Recommendation computations that failed and were replaced by an empty or fallback result",
		},
		[]string{"kind"},
	)

	RecommendationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qdsupport_recommendation_fallbacks_total",
			Help: "Personalized bundles served from the static catalog fallback",
		},
	)

	// Model metrics
	ModelRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_model_rebuilds_total",
			Help: "Recommendation model rebuilds by result",
		},
		[]string{"result"}, // ok, error
	)

	ModelRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qdsupport_model_rebuild_duration_seconds",
			Help:    "Time to load data and build a recommendation snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	ModelGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qdsupport_model_generation",
			Help: "Generation of the recommendation snapshot currently served",
		},
	)

	ModelUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qdsupport_model_users",
			Help: "Users with at least one order in the current snapshot",
		},
	)

	// Chat metrics
	ChatMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_chat_messages_total",
			Help: "Chat messages tracked by role and detected topic",
		},
		[]string{"role", "topic"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_llm_requests_total",
			Help: "Completion requests sent to the LLM provider by result",
		},
		[]string{"result"}, // ok, error, circuit_open
	)

	LLMLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qdsupport_llm_request_duration_seconds",
			Help:    "Latency of completion requests to the LLM provider",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Worker metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qdsupport_jobs_processed_total",
			Help: "Background jobs processed by type and result",
		},
		[]string{"type", "result"},
	)
)
