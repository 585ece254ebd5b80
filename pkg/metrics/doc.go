/*
Package metrics exposes the engine's Prometheus surface and a small set of
health/readiness HTTP handlers, following the same package-level var block
plus init-time MustRegister pattern used throughout this codebase's other
layers.

# Metrics Catalog

vertexdb_shard_version_chain_length{shard}:
  - Type: Gauge
  - Description: Number of live versions retained in a shard's version chain
  - Labels: shard

vertexdb_shard_gc_reclamations_total{shard}:
  - Type: Counter
  - Description: Total number of shard versions reclaimed by garbage collection
  - Labels: shard

vertexdb_commit_duration_seconds{kind}:
  - Type: Histogram
  - Description: Time taken to commit a write transaction
  - Labels: kind (write, light_write)

vertexdb_commits_total{kind,outcome}:
  - Type: Counter
  - Description: Total number of committed transactions by kind and outcome
  - Labels: kind, outcome (committed, aborted)

vertexdb_representation_transitions_total{from,to}:
  - Type: Counter
  - Description: Total number of neighborhood representation promotions
  - Labels: from, to (clustered, range, art)

vertexdb_active_readers:
  - Type: Gauge
  - Description: Current number of registered active read timestamps

vertexdb_vertex_count{shard}:
  - Type: Gauge
  - Description: Number of live vertices per shard

# Usage

	timer := metrics.NewTimer()
	builder.Commit(ts)
	timer.ObserveDurationVec(metrics.CommitDuration, "write")

	metrics.CommitsTotal.WithLabelValues("write", "committed").Inc()

# Health and readiness

RegisterComponent/UpdateComponent record the health of a named subsystem
(forest, registry, engine); HealthHandler/ReadyHandler/LivenessHandler
expose /health, /ready, and /live respectively for cmd/vertexdb's server.
*/
package metrics
