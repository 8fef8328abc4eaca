package shardmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/golemproject/golem/pkg/types"
	"github.com/redis/go-redis/v9"
)

// persistedState is the on-disk shape of (number_of_shards, assignments,
// pending_rebalance) the shard manager needs to recover from a restart.
// Grounded on original_source/golem-shard-manager/src/model.rs's
// ShardManagerState, stored as JSON rather than bincode (pkg/oplog's
// entries, by contrast, use that package's own binary codec).
type persistedState struct {
	NumberOfShards int                   `json:"number_of_shards"`
	Assignments    map[string]types.Pod  `json:"pods"`
	Shards         map[string][]uint32   `json:"shards"` // pod key -> owned shard ids
	Rebalance      Rebalance             `json:"pending_rebalance"`
}

// Store persists the routing table and any in-flight rebalance plan.
type Store interface {
	Load(ctx context.Context) (types.RoutingTable, Rebalance, error)
	Save(ctx context.Context, rt types.RoutingTable, rebalance Rebalance) error
}

// redisStateKey is the single key the entire shard manager state lives
// under, mirroring the original's single persisted document rather than
// one key per pod: the whole table is replaced atomically on every
// change.
const redisStateKey = "golem:shard-manager:state"

// RedisStore is the production Store, replacing warren's raft+bbolt
// pkg/manager state store with a single redis-held document — the
// shard manager has one writer (its own leader process) and does not
// need raft's replicated-log guarantees, only durability across
// restarts.
type RedisStore struct {
	client         *redis.Client
	numberOfShards int
}

func NewRedisStore(client *redis.Client, numberOfShards int) *RedisStore {
	return &RedisStore{client: client, numberOfShards: numberOfShards}
}

func (s *RedisStore) Load(ctx context.Context) (types.RoutingTable, Rebalance, error) {
	raw, err := s.client.Get(ctx, redisStateKey).Bytes()
	if err == redis.Nil {
		return types.NewRoutingTable(s.numberOfShards), NewRebalance(), nil
	}
	if err != nil {
		return types.RoutingTable{}, Rebalance{}, fmt.Errorf("load shard manager state: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return types.RoutingTable{}, Rebalance{}, fmt.Errorf("decode shard manager state: %w", err)
	}
	return state.toRoutingTable(), state.Rebalance, nil
}

func (s *RedisStore) Save(ctx context.Context, rt types.RoutingTable, rebalance Rebalance) error {
	state := fromRoutingTable(rt, rebalance)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode shard manager state: %w", err)
	}
	return s.client.Set(ctx, redisStateKey, data, 0).Err()
}

func fromRoutingTable(rt types.RoutingTable, rebalance Rebalance) persistedState {
	state := persistedState{
		NumberOfShards: rt.NumberOfShards,
		Assignments:    make(map[string]types.Pod, len(rt.Assignments)),
		Shards:         make(map[string][]uint32, len(rt.Assignments)),
		Rebalance:      rebalance,
	}
	for key, ps := range rt.Assignments {
		state.Assignments[key] = ps.Pod
		shards := sortedShardIds(ps.Shards)
		ids := make([]uint32, len(shards))
		for i, s := range shards {
			ids[i] = uint32(s)
		}
		state.Shards[key] = ids
	}
	return state
}

func (state persistedState) toRoutingTable() types.RoutingTable {
	rt := types.NewRoutingTable(state.NumberOfShards)
	for key, pod := range state.Assignments {
		ps := &types.PodShards{Pod: pod, Shards: make(map[types.ShardId]struct{})}
		for _, id := range state.Shards[key] {
			ps.Shards[types.ShardId(id)] = struct{}{}
		}
		rt.Assignments[key] = ps
	}
	return rt
}

// MemoryStore is an in-process Store, useful for a single-node
// deployment and for tests that don't need a redis instance.
type MemoryStore struct {
	mu        sync.Mutex
	rt        types.RoutingTable
	rebalance Rebalance
}

func NewMemoryStore(numberOfShards int) *MemoryStore {
	return &MemoryStore{rt: types.NewRoutingTable(numberOfShards), rebalance: NewRebalance()}
}

func (m *MemoryStore) Load(context.Context) (types.RoutingTable, Rebalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rt, m.rebalance, nil
}

func (m *MemoryStore) Save(_ context.Context, rt types.RoutingTable, rebalance Rebalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rt = rt
	m.rebalance = rebalance
	return nil
}
