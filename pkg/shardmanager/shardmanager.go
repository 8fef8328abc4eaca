package shardmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golemproject/golem/pkg/events"
	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a pod or shard lookup fails.
var ErrNotFound = errors.New("shardmanager: not found")

// ClientFactory resolves the ExecutorClient for a pod, letting
// production code dial a real gRPC connection per pod while tests
// supply fakes.
type ClientFactory interface {
	For(pod types.Pod) ExecutorClient
}

// ShardManager owns the one routing table partitioning shards across
// registered executor pods. There is a single writer (this struct's
// mutex enforces it in-process; operationally only one shard manager
// process is ever active by design, with no raft or other consensus
// layer backing it).
//
// Grounded on original_source/golem-shard-manager/src/server.rs's
// ShardManagerServiceImpl, and on pkg/manager/manager.go's
// CRUD-over-store shape for the persistence plumbing.
type ShardManager struct {
	mu      sync.Mutex
	rt      types.RoutingTable
	pending Rebalance

	store   Store
	clients ClientFactory
	logger  zerolog.Logger
	events  *events.Broker
}

// New loads persisted state and, if a rebalance was left in progress by
// a prior crash, resumes it before returning. events is optional; when
// set, pod registration and removal are published to it for live
// observability (shard assignment events come from pkg/api instead).
func New(ctx context.Context, store Store, clients ClientFactory, broker *events.Broker) (*ShardManager, error) {
	rt, pending, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load routing table: %w", err)
	}

	sm := &ShardManager{
		rt:      rt,
		pending: pending,
		store:   store,
		clients: clients,
		logger:  log.WithComponent("shardmanager"),
		events:  broker,
	}

	if !pending.IsEmpty() {
		sm.logger.Info().Msg("resuming rebalance left in progress by a prior run")
		if err := sm.runRebalance(ctx, pending); err != nil {
			return nil, fmt.Errorf("resume rebalance: %w", err)
		}
	}

	return sm, nil
}

// Register declares pod present. A pod already known returns its
// existing assignment unchanged (idempotent); a new pod is added to
// the table with no shards, to be picked up by the next rebalance.
// Anti-spoofing (the caller's declared host:port must match the RPC
// peer's observed source address) is the gRPC server's responsibility,
// not this method's: by the time Register is called the pod is already
// believed genuine.
func (sm *ShardManager) Register(ctx context.Context, pod types.Pod) (types.RoutingTable, error) {
	sm.mu.Lock()
	if ps, ok := sm.rt.Assignments[pod.Key()]; ok {
		rt := sm.rt
		sm.mu.Unlock()
		sm.logger.Info().Str("pod", ps.Pod.String()).Msg("pod already registered")
		return rt, nil
	}

	sm.rt.Assignments[pod.Key()] = &types.PodShards{Pod: pod, Shards: make(map[types.ShardId]struct{})}
	rt := sm.rt
	sm.mu.Unlock()

	sm.logger.Info().Str("pod", pod.String()).Msg("pod registered")
	if err := sm.store.Save(ctx, rt, sm.currentPending()); err != nil {
		sm.logger.Error().Err(err).Msg("persist routing table after register")
	}
	sm.publish(events.EventPodRegistered, fmt.Sprintf("pod %s registered", pod), pod.Key())

	go sm.TriggerRebalance(context.Background())
	return rt, nil
}

func (sm *ShardManager) publish(eventType events.EventType, message, podKey string) {
	if sm.events == nil {
		return
	}
	sm.events.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: map[string]string{"pod": podKey},
	})
}

// GetRoutingTable returns the current assignment snapshot.
func (sm *ShardManager) GetRoutingTable() types.RoutingTable {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.rt
}

func (sm *ShardManager) currentPending() Rebalance {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.pending
}

// TriggerRebalance computes a fresh plan from the current table and
// executes it. It is safe to call concurrently with itself; only one
// execution proceeds at a time because it holds the manager mutex for
// the duration (rebalances are not expected to be frequent or large
// enough for this to be a bottleneck).
func (sm *ShardManager) TriggerRebalance(ctx context.Context) {
	sm.mu.Lock()
	plan := computeRebalance(sm.rt)
	sm.mu.Unlock()

	if plan.IsEmpty() {
		return
	}
	if err := sm.runRebalance(ctx, plan); err != nil {
		sm.logger.Error().Err(err).Msg("rebalance failed")
	}
}

func (sm *ShardManager) runRebalance(ctx context.Context, plan Rebalance) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RebalanceDuration)

	sm.pending = plan
	err := executeRebalance(ctx, sm.store, sm.clients.For, &sm.rt, &sm.pending)
	if err == nil {
		sm.pending = NewRebalance()
		metrics.RebalancesTotal.Inc()
	}
	return err
}

// RemoveUnhealthyPods drops the given pods from the routing table (the
// health loop's response to a failed RPC) and returns whether anything
// changed, so the caller knows whether a rebalance is warranted.
func (sm *ShardManager) RemoveUnhealthyPods(pods []types.Pod) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	changed := false
	for _, pod := range pods {
		if _, ok := sm.rt.Assignments[pod.Key()]; ok {
			delete(sm.rt.Assignments, pod.Key())
			changed = true
			sm.publish(events.EventPodDown, fmt.Sprintf("pod %s removed after health check failure", pod), pod.Key())
		}
	}
	return changed
}

// ShardCounts returns the total shard count, how many of those shards
// are currently unassigned, and how many pods are registered, for
// metrics collection.
func (sm *ShardManager) ShardCounts() (total, unassigned, pods int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	assigned := make(map[types.ShardId]struct{})
	for _, ps := range sm.rt.Assignments {
		for shard := range ps.Shards {
			assigned[shard] = struct{}{}
		}
	}
	return sm.rt.NumberOfShards, sm.rt.NumberOfShards - len(assigned), len(sm.rt.Assignments)
}

// Pods returns every currently registered pod.
func (sm *ShardManager) Pods() []types.Pod {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	pods := make([]types.Pod, 0, len(sm.rt.Assignments))
	for _, ps := range sm.rt.Assignments {
		pods = append(pods, ps.Pod)
	}
	return pods
}
