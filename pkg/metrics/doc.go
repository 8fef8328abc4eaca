/*
Package metrics provides Prometheus metrics collection and exposition for
the executor fleet.

All metrics are package-level Prometheus collectors registered at init
time; any package may import metrics and update a gauge, counter, or
histogram directly without a central registration step. A periodic
Collector additionally samples worker and shard state that only makes
sense as a point-in-time scan rather than an inline update.

# Metrics Catalog

Worker:
  - golem_workers_total{status}: gauge, workers by status
  - golem_invocations_total{outcome}: counter, invocations by outcome
  - golem_invocation_duration_seconds{function}: histogram
  - golem_replay_duration_seconds: histogram, time to reach the live tail

Oplog:
  - golem_oplog_entries_total: counter
  - golem_oplog_commit_duration_seconds: histogram
  - golem_snapshots_total{outcome}: counter

Shard manager:
  - golem_shards_total, golem_shards_unassigned, golem_pods_total: gauges
  - golem_rebalances_total: counter
  - golem_rebalance_duration_seconds: histogram

API:
  - golem_api_requests_total{method,status}: counter
  - golem_api_request_duration_seconds{method}: histogram

Update:
  - golem_updates_total{mode,outcome}: counter (mode: automatic|snapshot)

# Usage

	timer := metrics.NewTimer()
	err := doWork()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.InvocationsTotal.WithLabelValues(outcome).Inc()
	timer.ObserveDurationVec(metrics.InvocationDuration, functionName)

	http.Handle("/metrics", metrics.Handler())

# Collector

pkg/scheduler.Registry and pkg/shardmanager.ShardManager satisfy
WorkerSource and ShardSource respectively without this package
importing either — metrics stays a leaf package so every other package
can depend on it without risking an import cycle.

	collector := metrics.NewCollector(workerRegistry, shardManager)
	collector.Start()
	defer collector.Stop()

# Cardinality

Label values are bounded: status enums, outcome strings, function
names. Never label with a worker id or timestamp.
*/
package metrics
