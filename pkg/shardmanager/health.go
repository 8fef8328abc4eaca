package shardmanager

import (
	"context"
	"time"

	"github.com/golemproject/golem/pkg/health"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/types"
	"github.com/rs/zerolog"
)

// HealthLoop periodically RPCs every registered pod and removes any
// that go unhealthy, triggering a rebalance when it does.
//
// Grounded on pkg/reconciler/reconciler.go's ticker/mutex run loop,
// generalized from "reconcile desired container count" to "ping every
// registered pod". Each pod gets its own health.Status, fed from the
// gRPC HealthCheck result every tick, so a pod is only dropped from
// the routing table once health.Status.Update's hysteresis marks it
// unhealthy (config.Retries consecutive failures) rather than on the
// first failed RPC — the same debounce pkg/health gives any other
// caller, applied here instead of reimplemented.
type HealthLoop struct {
	sm      *ShardManager
	clients ClientFactory
	config  health.Config
	logger  zerolog.Logger

	status map[string]*health.Status

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewHealthLoop(sm *ShardManager, clients ClientFactory, config health.Config) *HealthLoop {
	return &HealthLoop{
		sm:      sm,
		clients: clients,
		config:  config,
		logger:  log.WithComponent("shardmanager-health"),
		status:  make(map[string]*health.Status),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (h *HealthLoop) Start() {
	go h.run()
}

func (h *HealthLoop) Stop() {
	close(h.stopCh)
	<-h.doneCh
}

func (h *HealthLoop) run() {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.check(context.Background())
		case <-h.stopCh:
			return
		}
	}
}

func (h *HealthLoop) check(ctx context.Context) {
	live := make(map[string]struct{})
	var unhealthy []types.Pod

	for _, pod := range h.sm.Pods() {
		key := pod.Key()
		live[key] = struct{}{}

		status, ok := h.status[key]
		if !ok {
			status = health.NewStatus()
			h.status[key] = status
		}
		if status.InStartPeriod(h.config) {
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
		healthy := h.clients.For(pod).HealthCheck(checkCtx, pod)
		cancel()

		wasHealthy := status.Healthy
		status.Update(health.Result{Healthy: healthy, CheckedAt: time.Now()}, h.config)
		if wasHealthy && !status.Healthy {
			unhealthy = append(unhealthy, pod)
		}
	}

	for key := range h.status {
		if _, ok := live[key]; !ok {
			delete(h.status, key)
		}
	}

	if len(unhealthy) == 0 {
		h.logger.Debug().Msg("all registered pods healthy")
		return
	}

	h.logger.Warn().Int("count", len(unhealthy)).Msg("pods failed health check, removing from routing table")
	if h.sm.RemoveUnhealthyPods(unhealthy) {
		h.sm.TriggerRebalance(ctx)
	}
}
