// Package metrics exposes the engine's Prometheus surface: version-chain
// length, GC reclamations, commit latency, and representation-transition
// counts (SPEC_FULL.md "DOMAIN STACK"), following the teacher's
// package-level var block + init-time MustRegister pattern.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	VersionChainLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertexdb_shard_version_chain_length",
			Help: "Number of live versions retained in a shard's version chain",
		},
		[]string{"shard"},
	)

	GCReclamations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_shard_gc_reclamations_total",
			Help: "Total number of shard versions reclaimed by garbage collection",
		},
		[]string{"shard"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vertexdb_commit_duration_seconds",
			Help:    "Time taken to commit a write transaction",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_commits_total",
			Help: "Total number of committed transactions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	RepresentationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vertexdb_representation_transitions_total",
			Help: "Total number of neighborhood representation promotions",
		},
		[]string{"from", "to"},
	)

	ActiveReaders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vertexdb_active_readers",
			Help: "Current number of registered active read timestamps",
		},
	)

	VertexCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vertexdb_vertex_count",
			Help: "Number of live vertices per shard",
		},
		[]string{"shard"},
	)
)

func init() {
	prometheus.MustRegister(VersionChainLength)
	prometheus.MustRegister(GCReclamations)
	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(RepresentationTransitionsTotal)
	prometheus.MustRegister(ActiveReaders)
	prometheus.MustRegister(VertexCount)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
