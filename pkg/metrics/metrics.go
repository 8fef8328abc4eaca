package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "golem_workers_total",
			Help: "Total number of workers by status",
		},
		[]string{"status"},
	)

	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golem_invocations_total",
			Help: "Total number of invocations by outcome",
		},
		[]string{"outcome"},
	)

	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "golem_invocation_duration_seconds",
			Help:    "Invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	ReplayDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "golem_replay_duration_seconds",
			Help:    "Time taken to replay a worker's oplog to reach the live tail",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Oplog metrics
	OplogEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golem_oplog_entries_total",
			Help: "Total number of oplog entries committed across all workers",
		},
	)

	OplogCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "golem_oplog_commit_duration_seconds",
			Help:    "Time taken to commit an oplog entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SnapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golem_snapshots_total",
			Help: "Total number of snapshot updates by outcome",
		},
		[]string{"outcome"},
	)

	// Shard manager metrics
	ShardsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "golem_shards_total",
			Help: "Total number of shards known to the shard manager",
		},
	)

	ShardsUnassigned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "golem_shards_unassigned",
			Help: "Number of shards not currently assigned to any pod",
		},
	)

	PodsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "golem_pods_total",
			Help: "Total number of executor pods registered with the shard manager",
		},
	)

	RebalancesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "golem_rebalances_total",
			Help: "Total number of shard rebalances executed",
		},
	)

	RebalanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "golem_rebalance_duration_seconds",
			Help:    "Time taken to execute a shard rebalance in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golem_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "golem_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Update metrics
	UpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "golem_updates_total",
			Help: "Total number of worker component updates by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(InvocationsTotal)
	prometheus.MustRegister(InvocationDuration)
	prometheus.MustRegister(ReplayDuration)
	prometheus.MustRegister(OplogEntriesTotal)
	prometheus.MustRegister(OplogCommitDuration)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(ShardsTotal)
	prometheus.MustRegister(ShardsUnassigned)
	prometheus.MustRegister(PodsTotal)
	prometheus.MustRegister(RebalancesTotal)
	prometheus.MustRegister(RebalanceDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(UpdatesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
