// Package metrics exposes Prometheus instrumentation for the search
// pipeline. Purely observational: nothing here feeds back into job
// correctness decisions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_provider_calls_total",
			Help: "Provider fetch calls by platform and outcome",
		},
		[]string{"platform", "outcome"}, // outcome: ok | retryable | terminal
	)

	CreatorsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_creators_accepted_total",
			Help: "Creators accepted into result sets",
		},
		[]string{"platform"},
	)

	CreatorsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_creators_rejected_total",
			Help: "Creators rejected by the dedup/cutoff stage",
		},
		[]string{"platform", "reason"}, // reason: duplicate | overflow
	)

	EnrichmentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_enrichment_total",
			Help: "Bio enrichment attempts by outcome",
		},
		[]string{"outcome"}, // outcome: ok | failed
	)

	ExpansionRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scout_expansion_runs_total",
			Help: "Keyword expansion rounds performed",
		},
	)

	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_ticks_total",
			Help: "Orchestrator ticks by resulting job status",
		},
		[]string{"status"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scout_tick_duration_seconds",
			Help:    "Wall-clock duration of one orchestrator tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scout_batch_duration_seconds",
			Help:    "Duration of one provider batch fetch including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var registerOnce sync.Once

// Init registers all collectors. Must be called once at startup.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ProviderCalls, CreatorsAccepted, CreatorsRejected,
			EnrichmentOutcomes, ExpansionRuns, Ticks,
			TickDuration, BatchDuration,
		)
	})
}
