package metrics

import (
	"time"

	"github.com/golemproject/golem/pkg/types"
)

// WorkerSource is the part of pkg/scheduler.Registry the collector
// needs. Declaring it here rather than importing pkg/scheduler keeps
// pkg/metrics a leaf package that every other package can import
// without risking an import cycle.
type WorkerSource interface {
	WorkerStatusCounts() map[types.WorkerStatus]int
}

// ShardSource is the part of pkg/shardmanager.ShardManager the
// collector needs, for the same reason as WorkerSource.
type ShardSource interface {
	ShardCounts() (total, unassigned, pods int)
}

// Collector periodically samples worker and shard state and pushes it
// into the package's gauges. Counters and histograms (invocations,
// oplog commits, rebalances) are updated inline by the components that
// do the work; this collector only handles the gauges that need a
// point-in-time scan.
type Collector struct {
	workers WorkerSource
	shards  ShardSource
	stopCh  chan struct{}
}

// NewCollector creates a new metrics collector. Either argument may be
// nil if that subsystem isn't running in this process (a shard-manager
// process has no worker registry, an executor has no ShardManager).
func NewCollector(workers WorkerSource, shards ShardSource) *Collector {
	return &Collector{
		workers: workers,
		shards:  shards,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkerMetrics()
	c.collectShardMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	if c.workers == nil {
		return
	}
	for status, count := range c.workers.WorkerStatusCounts() {
		WorkersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectShardMetrics() {
	if c.shards == nil {
		return
	}
	total, unassigned, pods := c.shards.ShardCounts()
	ShardsTotal.Set(float64(total))
	ShardsUnassigned.Set(float64(unassigned))
	PodsTotal.Set(float64(pods))
}
