package oplog

import (
	"context"
	"testing"
	"time"

	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkerId() types.WorkerId {
	return types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"}
}

func TestOpenOplogsReturnsSameInstance(t *testing.T) {
	registry := NewOpenOplogs(storage.NewMemoryIndexedStorage())
	workerId := testWorkerId()

	a := registry.Open(workerId)
	b := registry.Open(workerId)

	ctx := context.Background()
	_, err := a.Add(ctx, types.OplogEntry{Kind: types.EntryNoOp, Timestamp: time.Now()})
	require.NoError(t, err)

	idxA, err := a.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	idxB, err := b.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, idxA, idxB)
	assert.Equal(t, 1, registry.Count())
}

func TestPrimaryOplogAppendAndReadBack(t *testing.T) {
	ctx := context.Background()
	registry := NewOpenOplogs(storage.NewMemoryIndexedStorage())
	workerId := testWorkerId()
	o := registry.Open(workerId)

	idx1, err := o.Add(ctx, types.OplogEntry{Kind: types.EntryCreate, Timestamp: time.Now(), WorkerId: workerId, ComponentVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, types.OplogIndex(1), idx1)

	idx2, err := o.Add(ctx, types.OplogEntry{Kind: types.EntrySuspend, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, types.OplogIndex(2), idx2)

	current, err := o.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.OplogIndex(2), current)

	entry, err := o.Read(ctx, idx1)
	require.NoError(t, err)
	assert.Equal(t, types.EntryCreate, entry.Kind)
	assert.Equal(t, types.ComponentVersion(1), entry.ComponentVersion)

	entries, err := o.ReadRange(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.EntryCreate, entries[0].Kind)
	assert.Equal(t, types.EntrySuspend, entries[1].Kind)
}

func TestReplayStateLiveModeAndJump(t *testing.T) {
	rs := NewReplayState(5)
	assert.False(t, rs.LiveMode())
	assert.Equal(t, types.OplogIndex(1), rs.Cursor())

	rs.Advance(2)
	assert.Equal(t, types.OplogIndex(3), rs.Cursor())
	assert.False(t, rs.LiveMode())

	rs.Jump(types.OplogRegion{Start: 3, End: 5})
	assert.Equal(t, types.OplogIndex(6), rs.Cursor())
	assert.True(t, rs.LiveMode())
}
