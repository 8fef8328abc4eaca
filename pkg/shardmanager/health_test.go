package shardmanager

import (
	"context"
	"testing"
	"time"

	"github.com/golemproject/golem/pkg/health"
	"github.com/golemproject/golem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealthLoop(t *testing.T, clients *fakeClients, retries int) (*HealthLoop, *ShardManager) {
	t.Helper()
	ctx := context.Background()
	sm, err := New(ctx, NewMemoryStore(4), clients, nil)
	require.NoError(t, err)

	cfg := health.Config{Interval: time.Second, Timeout: time.Second, Retries: retries}
	return NewHealthLoop(sm, clients, cfg), sm
}

func TestHealthLoopKeepsPodAfterSingleFailedCheck(t *testing.T) {
	clients := newFakeClients()
	loop, sm := newTestHealthLoop(t, clients, 3)

	pod := podAt("a", 1)
	_, err := sm.Register(context.Background(), pod)
	require.NoError(t, err)

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = true
	clients.mu.Unlock()

	loop.check(context.Background())

	final := sm.GetRoutingTable()
	assert.Contains(t, final.Assignments, pod.Key())
}

func TestHealthLoopRemovesPodAfterRetriesConsecutiveFailures(t *testing.T) {
	clients := newFakeClients()
	loop, sm := newTestHealthLoop(t, clients, 3)

	pod := podAt("a", 1)
	_, err := sm.Register(context.Background(), pod)
	require.NoError(t, err)
	sm.TriggerRebalance(context.Background())

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = true
	clients.mu.Unlock()

	for i := 0; i < 3; i++ {
		loop.check(context.Background())
	}

	final := sm.GetRoutingTable()
	assert.NotContains(t, final.Assignments, pod.Key())
}

func TestHealthLoopResetsFailureStreakOnSuccess(t *testing.T) {
	clients := newFakeClients()
	loop, sm := newTestHealthLoop(t, clients, 3)

	pod := podAt("a", 1)
	_, err := sm.Register(context.Background(), pod)
	require.NoError(t, err)
	sm.TriggerRebalance(context.Background())

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = true
	clients.mu.Unlock()
	loop.check(context.Background())
	loop.check(context.Background())

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = false
	clients.mu.Unlock()
	loop.check(context.Background())

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = true
	clients.mu.Unlock()
	loop.check(context.Background())
	loop.check(context.Background())

	final := sm.GetRoutingTable()
	assert.Contains(t, final.Assignments, pod.Key(), "failure streak should have reset on the intervening success")
}

func TestHealthLoopForgetsStatusForDeregisteredPods(t *testing.T) {
	clients := newFakeClients()
	loop, sm := newTestHealthLoop(t, clients, 3)

	pod := podAt("a", 1)
	_, err := sm.Register(context.Background(), pod)
	require.NoError(t, err)

	clients.mu.Lock()
	clients.unhealthy[pod.Key()] = true
	clients.mu.Unlock()
	loop.check(context.Background())
	loop.check(context.Background())

	require.True(t, sm.RemoveUnhealthyPods([]types.Pod{pod}))
	loop.check(context.Background())

	_, tracked := loop.status[pod.Key()]
	assert.False(t, tracked)
}
