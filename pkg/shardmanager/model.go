package shardmanager

import (
	"sort"

	"github.com/golemproject/golem/pkg/types"
)

// Rebalance is a planned set of shard movements: shards to assign to a
// pod and shards to revoke from a pod. It is itself durable state —
// persisting it alongside the routing table is what lets a rebalance
// survive a crash between phases and resume where it left off.
//
// Grounded on original_source/golem-shard-manager/src/model.rs's
// Assignments/Unassignments pair.
type Rebalance struct {
	Assignments   map[string]map[types.ShardId]struct{} `json:"assignments"`
	Unassignments map[string]map[types.ShardId]struct{} `json:"unassignments"`
	Pods          map[string]types.Pod                  `json:"pods"`
}

// NewRebalance returns an empty, no-op rebalance plan.
func NewRebalance() Rebalance {
	return Rebalance{
		Assignments:   make(map[string]map[types.ShardId]struct{}),
		Unassignments: make(map[string]map[types.ShardId]struct{}),
		Pods:          make(map[string]types.Pod),
	}
}

// IsEmpty reports whether the plan has no remaining movements.
func (r Rebalance) IsEmpty() bool {
	for _, shards := range r.Assignments {
		if len(shards) > 0 {
			return false
		}
	}
	for _, shards := range r.Unassignments {
		if len(shards) > 0 {
			return false
		}
	}
	return true
}

func (r *Rebalance) assign(pod types.Pod, shard types.ShardId) {
	r.Pods[pod.Key()] = pod
	if r.Assignments[pod.Key()] == nil {
		r.Assignments[pod.Key()] = make(map[types.ShardId]struct{})
	}
	r.Assignments[pod.Key()][shard] = struct{}{}
}

func (r *Rebalance) unassign(pod types.Pod, shard types.ShardId) {
	r.Pods[pod.Key()] = pod
	if r.Unassignments[pod.Key()] == nil {
		r.Unassignments[pod.Key()] = make(map[types.ShardId]struct{})
	}
	r.Unassignments[pod.Key()][shard] = struct{}{}
}

// removePods drops every movement touching any of the given pods, the
// Go analogue of Rebalance::remove_pods in the original: a pod that
// fails its pre-rebalance health check is pulled out of the plan
// entirely rather than partially executed against.
func (r *Rebalance) removePods(pods map[string]struct{}) {
	for key := range pods {
		delete(r.Assignments, key)
		delete(r.Unassignments, key)
		delete(r.Pods, key)
	}
}

// sortedPodKeys returns a's keys in a stable order, so plans computed
// from the same routing table always assign the same way.
func sortedPodKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedShardIds(shards map[types.ShardId]struct{}) []types.ShardId {
	ids := make([]types.ShardId, 0, len(shards))
	for id := range shards {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
