package update

import (
	"context"
	"testing"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var emptyComponent = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func loaderFor(byVersion map[types.ComponentVersion][]byte) worker.ComponentLoader {
	return func(_ context.Context, _ types.ComponentId, version types.ComponentVersion) ([]byte, error) {
		return byVersion[version], nil
	}
}

func TestRequestUpdateThenPendingTarget(t *testing.T) {
	ctx := context.Background()
	oplogs := oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage())
	blob := storage.NewMemoryBlobStorage()
	workerId := types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"}

	o := oplogs.Open(workerId)
	_, err := o.Add(ctx, types.OplogEntry{Kind: types.EntryCreate, WorkerId: workerId, ComponentVersion: 1})
	require.NoError(t, err)

	e := New(oplogs, blob, loaderFor(map[types.ComponentVersion][]byte{1: emptyComponent, 2: emptyComponent}))
	require.NoError(t, e.RequestUpdate(ctx, workerId, types.UpdateModeAutomatic, 2))

	desc, pending, err := PendingTarget(ctx, o)
	require.NoError(t, err)
	require.True(t, pending)
	assert.Equal(t, types.ComponentVersion(2), desc.TargetVersion)
	assert.Equal(t, types.UpdateModeAutomatic, desc.Mode)
}

func TestRunAutomaticSucceedsWhenReplayReachesLive(t *testing.T) {
	ctx := context.Background()
	oplogs := oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage())
	blob := storage.NewMemoryBlobStorage()
	workerId := types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"}

	loader := loaderFor(map[types.ComponentVersion][]byte{1: emptyComponent, 2: emptyComponent})
	e := New(oplogs, blob, loader)

	cfg := worker.Config{
		WorkerId:         workerId,
		ComponentVersion: 2,
		Oplogs:           oplogs,
		Blob:             blob,
		LoadComponent:    loader,
	}

	w, err := e.RunAutomatic(ctx, cfg, 1)
	require.NoError(t, err)
	defer w.Stop(ctx)
	assert.Equal(t, types.WorkerStatusRunning, w.Status())

	o := oplogs.Open(workerId)
	current, err := o.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	entries, err := o.ReadRange(ctx, 1, current)
	require.NoError(t, err)

	var sawSuccess bool
	for _, entry := range entries {
		if entry.Kind == types.EntrySuccessfulUpdate {
			sawSuccess = true
			assert.Equal(t, types.ComponentVersion(2), entry.TargetVersion)
		}
	}
	assert.True(t, sawSuccess, "expected a SuccessfulUpdate entry")
}

func TestRunSnapshotStartsFromSnapshotAndRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	oplogs := oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage())
	blob := storage.NewMemoryBlobStorage()
	workerId := types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"}

	loader := loaderFor(map[types.ComponentVersion][]byte{1: emptyComponent, 2: emptyComponent})
	e := New(oplogs, blob, loader)

	oldCfg := worker.Config{
		WorkerId:         workerId,
		ComponentVersion: 1,
		Oplogs:           oplogs,
		Blob:             blob,
		LoadComponent:    loader,
	}
	old := worker.New(oldCfg)
	require.NoError(t, old.Start(ctx))
	defer old.Stop(ctx)

	newCfg := oldCfg
	newCfg.ComponentVersion = 2
	w, err := e.RunSnapshot(ctx, old, newCfg)
	require.NoError(t, err)
	defer w.Stop(ctx)
	assert.Equal(t, types.WorkerStatusRunning, w.Status())

	o := oplogs.Open(workerId)
	current, err := o.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	entries, err := o.ReadRange(ctx, 1, current)
	require.NoError(t, err)

	var sawSuccess bool
	for _, entry := range entries {
		if entry.Kind == types.EntrySuccessfulUpdate {
			sawSuccess = true
		}
	}
	assert.True(t, sawSuccess, "expected a SuccessfulUpdate entry")
}
