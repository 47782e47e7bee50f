// Package metrics exposes the Prometheus counters and histograms the
// orchestrator, LLM client, and delegation layer update as they run, served
// from the HTTP transport's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LLMTokensTotal counts tokens spent per provider/model/direction
	// (input vs output).
	LLMTokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_llm_tokens_total",
		Help: "Total LLM tokens consumed, labeled by provider, model, and direction.",
	}, []string{"provider", "model", "direction"})

	// LLMCallDuration times each LLM round trip, including retries, from
	// Generate's perspective.
	LLMCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortex_llm_call_duration_seconds",
		Help:    "Duration of LLM generate calls, labeled by provider and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "outcome"})

	// DelegationDuration times a full subprocess delegation to a worker
	// agent, from spawn to exit.
	DelegationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortex_delegation_duration_seconds",
		Help:    "Duration of subprocess delegations to worker agents, labeled by agent and outcome.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
	}, []string{"agent", "outcome"})

	// GuardianVerdictsTotal counts guardian scan verdicts by outcome.
	GuardianVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cortex_guardian_verdicts_total",
		Help: "Guardian scan verdicts, labeled by verdict (pass, flag, block).",
	}, []string{"verdict"})

	// RetrievalDuration times memory retrieval calls.
	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cortex_retrieval_duration_seconds",
		Help:    "Duration of memory retrieval calls, labeled by strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	// BusQueueDepth reports the current pending-message count per
	// recipient, sampled on each Send/Receive.
	BusQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cortex_bus_queue_depth",
		Help: "Pending messages on the bus, labeled by recipient agent.",
	}, []string{"to_agent"})
)
