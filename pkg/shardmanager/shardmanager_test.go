package shardmanager

import (
	"context"
	"sync"
	"testing"

	"github.com/golemproject/golem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClients is a ClientFactory/ExecutorClient whose behavior per pod
// is controlled by the test, standing in for a real gRPC dial.
type fakeClients struct {
	mu       sync.Mutex
	unhealthy map[string]bool
	assigned  map[string][]types.ShardId
	revoked   map[string][]types.ShardId
}

func newFakeClients() *fakeClients {
	return &fakeClients{
		unhealthy: make(map[string]bool),
		assigned:  make(map[string][]types.ShardId),
		revoked:   make(map[string][]types.ShardId),
	}
}

func (f *fakeClients) For(pod types.Pod) ExecutorClient {
	return &fakeClient{owner: f, pod: pod}
}

type fakeClient struct {
	owner *fakeClients
	pod   types.Pod
}

func (c *fakeClient) AssignShards(_ context.Context, pod types.Pod, shards []types.ShardId) error {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	c.owner.assigned[pod.Key()] = append(c.owner.assigned[pod.Key()], shards...)
	return nil
}

func (c *fakeClient) RevokeShards(_ context.Context, pod types.Pod, shards []types.ShardId) error {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	c.owner.revoked[pod.Key()] = append(c.owner.revoked[pod.Key()], shards...)
	return nil
}

func (c *fakeClient) HealthCheck(_ context.Context, pod types.Pod) bool {
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	return !c.owner.unhealthy[pod.Key()]
}

func TestRegisterNewPodThenRebalanceAssignsShards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	clients := newFakeClients()

	sm, err := New(ctx, store, clients, nil)
	require.NoError(t, err)

	pod := podAt("10.0.0.1", 9000)
	rt, err := sm.Register(ctx, pod)
	require.NoError(t, err)
	assert.Contains(t, rt.Assignments, pod.Key())

	sm.TriggerRebalance(ctx)

	final := sm.GetRoutingTable()
	assert.Len(t, final.Assignments[pod.Key()].Shards, 4)
}

func TestRegisterExistingPodIsIdempotent(t *testing.T) {
	ctx := context.Background()
	sm, err := New(ctx, NewMemoryStore(4), newFakeClients(), nil)
	require.NoError(t, err)

	pod := podAt("10.0.0.1", 9000)
	first, err := sm.Register(ctx, pod)
	require.NoError(t, err)
	sm.TriggerRebalance(ctx)

	second, err := sm.Register(ctx, pod)
	require.NoError(t, err)
	assert.Equal(t, first.Assignments[pod.Key()].Pod, second.Assignments[pod.Key()].Pod)
}

func TestRemoveUnhealthyPodTriggersRebalanceToRemainingPods(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	clients := newFakeClients()
	sm, err := New(ctx, store, clients, nil)
	require.NoError(t, err)

	a, b := podAt("a", 1), podAt("b", 2)
	_, err = sm.Register(ctx, a)
	require.NoError(t, err)
	_, err = sm.Register(ctx, b)
	require.NoError(t, err)
	sm.TriggerRebalance(ctx)

	clients.mu.Lock()
	clients.unhealthy[a.Key()] = true
	clients.mu.Unlock()

	changed := sm.RemoveUnhealthyPods([]types.Pod{a})
	assert.True(t, changed)
	sm.TriggerRebalance(ctx)

	final := sm.GetRoutingTable()
	assert.NotContains(t, final.Assignments, a.Key())
	assert.Len(t, final.Assignments[b.Key()].Shards, 4)
}

func TestNewResumesPendingRebalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(4)
	pod := podAt("a", 1)
	rt := types.NewRoutingTable(4)
	rt.Assignments[pod.Key()] = &types.PodShards{Pod: pod, Shards: map[types.ShardId]struct{}{}}
	pending := NewRebalance()
	pending.assign(pod, types.ShardId(0))
	pending.assign(pod, types.ShardId(1))
	require.NoError(t, store.Save(ctx, rt, pending))

	clients := newFakeClients()
	sm, err := New(ctx, store, clients, nil)
	require.NoError(t, err)

	final := sm.GetRoutingTable()
	assert.Len(t, final.Assignments[pod.Key()].Shards, 2)
	assert.Len(t, clients.assigned[pod.Key()], 2)
}
