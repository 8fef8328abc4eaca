package shardmanager

import (
	"context"
	"fmt"

	"github.com/golemproject/golem/pkg/log"
	"github.com/golemproject/golem/pkg/types"
)

// ExecutorClient is the shard manager's view of a registered pod: the
// RPCs it needs to make against a worker executor process. Grounded on
// original_source/golem-shard-manager/src/worker_executor.rs's
// WorkerExecutorService trait (assign_shards/revoke_shards/health_check).
type ExecutorClient interface {
	AssignShards(ctx context.Context, pod types.Pod, shards []types.ShardId) error
	RevokeShards(ctx context.Context, pod types.Pod, shards []types.ShardId) error
	HealthCheck(ctx context.Context, pod types.Pod) bool
}

// computeRebalance derives a target assignment from the current routing
// table: every shard ends up owned by exactly one of the table's
// currently registered pods, counts differ by at most one, and a pod
// already at its target count keeps its current shards untouched.
//
// Grounded on the balancing goal stated in
// original_source/golem-shard-manager/src/model.rs's RoutingTable, but
// the greedy pour-from-the-unassigned-pool algorithm below is this
// package's own, since rebalancing.rs (the original's algorithm) was
// not present in the retrieval pack.
func computeRebalance(rt types.RoutingTable) Rebalance {
	plan := NewRebalance()

	pods := make(map[string]types.Pod, len(rt.Assignments))
	current := make(map[string][]types.ShardId, len(rt.Assignments))
	for key, ps := range rt.Assignments {
		pods[key] = ps.Pod
		current[key] = sortedShardIds(ps.Shards)
	}
	if len(pods) == 0 {
		return plan
	}

	keys := sortedPodKeys(pods)
	n := len(keys)
	base := rt.NumberOfShards / n
	remainder := rt.NumberOfShards % n
	target := make(map[string]int, n)
	for _, key := range keys {
		target[key] = base
	}
	// The remainder's extra shards go to the pods already holding the
	// most (ties broken by key order), so a table that is already
	// balanced to within one moves no shard.
	for r := 0; r < remainder; r++ {
		best := ""
		for _, key := range keys {
			if target[key] == base && (best == "" || len(current[key]) > len(current[best])) {
				best = key
			}
		}
		target[best]++
	}

	pool := rt.UnassignedShards()
	for _, key := range keys {
		shards := current[key]
		want := target[key]
		if len(shards) > want {
			excess := shards[want:]
			for _, shard := range excess {
				plan.unassign(pods[key], shard)
			}
			pool = append(pool, excess...)
		}
	}

	for _, key := range keys {
		have := len(current[key])
		if unassigned, ok := plan.Unassignments[key]; ok {
			have -= len(unassigned)
		}
		for have < target[key] && len(pool) > 0 {
			shard := pool[0]
			pool = pool[1:]
			plan.assign(pods[key], shard)
			have++
		}
	}

	return plan
}

// executeRebalance runs the three durable phases described in spec
// §4.7: persist the plan, revoke, assign, persist the updated table.
// The plan's pods are health-checked first and unhealthy ones dropped.
// store.Save runs before the first revoke/assign RPC and once more
// after all of them complete; a crash in between leaves the persisted
// plan for the next execute call to resume from.
func executeRebalance(ctx context.Context, store Store, clients func(types.Pod) ExecutorClient, rt *types.RoutingTable, plan *Rebalance) error {
	logger := log.WithComponent("shardmanager")

	unhealthy := map[string]struct{}{}
	for key, pod := range plan.Pods {
		if !clients(pod).HealthCheck(ctx, pod) {
			unhealthy[key] = struct{}{}
		}
	}
	plan.removePods(unhealthy)
	if len(unhealthy) > 0 {
		logger.Warn().Int("count", len(unhealthy)).Msg("pods involved in rebalance failed health check, removed from plan")
	}

	if err := store.Save(ctx, *rt, *plan); err != nil {
		return fmt.Errorf("persist planned rebalance: %w", err)
	}

	for key, shards := range plan.Unassignments {
		pod := plan.Pods[key]
		if err := clients(pod).RevokeShards(ctx, pod, sortedShardIds(shards)); err != nil {
			logger.Error().Err(err).Str("pod", pod.String()).Msg("failed to revoke shards, leaving them in the plan for the next attempt")
			continue
		}
		for _, shard := range sortedShardIds(shards) {
			rt.Revoke(shard)
		}
		delete(plan.Unassignments, key)
	}

	for key, shards := range plan.Assignments {
		pod := plan.Pods[key]
		if err := clients(pod).AssignShards(ctx, pod, sortedShardIds(shards)); err != nil {
			logger.Error().Err(err).Str("pod", pod.String()).Msg("failed to assign shards, leaving them in the plan for the next attempt")
			continue
		}
		for _, shard := range sortedShardIds(shards) {
			rt.Assign(pod, shard)
		}
		delete(plan.Assignments, key)
	}

	if err := store.Save(ctx, *rt, *plan); err != nil {
		return fmt.Errorf("persist updated routing table: %w", err)
	}
	return nil
}
