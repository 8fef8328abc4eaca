package worker

import (
	"context"
	"testing"
	"time"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyComponent is the smallest valid WASM module: header only, no
// exports. It is enough to exercise the worker lifecycle without a
// real component on hand.
var emptyComponent = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func loadEmptyComponent(context.Context, types.ComponentId, types.ComponentVersion) ([]byte, error) {
	return emptyComponent, nil
}

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	cfg := Config{
		WorkerId:         types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"},
		ComponentVersion: 1,
		Oplogs:           oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage()),
		Blob:             storage.NewMemoryBlobStorage(),
		LoadComponent:    loadEmptyComponent,
	}
	return New(cfg)
}

func TestWorkerStartRecordsCreateAndReachesRunning(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	assert.Equal(t, types.WorkerStatusRunning, w.Status())

	entry, err := w.oplog.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.EntryCreate, entry.Kind)
	assert.Equal(t, types.ComponentVersion(1), entry.ComponentVersion)
}

func TestWorkerInvokeDrainsAndSuspends(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	require.NoError(t, w.Invoke(ctx, types.Invocation{FunctionName: "run"}))

	require.Eventually(t, func() bool {
		return w.Status() == types.WorkerStatusSuspended
	}, time.Second, 5*time.Millisecond)

	current, err := w.oplog.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	entries, err := w.oplog.ReadRange(ctx, 1, current)
	require.NoError(t, err)

	var sawInvoked, sawCompleted, sawSuspend bool
	for _, e := range entries {
		switch e.Kind {
		case types.EntryExportedFunctionInvoked:
			sawInvoked = true
		case types.EntryExportedFunctionCompleted:
			sawCompleted = true
		case types.EntrySuspend:
			sawSuspend = true
		}
	}
	assert.True(t, sawInvoked)
	assert.True(t, sawCompleted)
	assert.True(t, sawSuspend)
}

func TestWorkerIdempotentInvocationSkipsRerun(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	invocation := types.Invocation{FunctionName: "run", IdempotencyKey: "key-1"}
	require.NoError(t, w.Invoke(ctx, invocation))
	require.Eventually(t, func() bool {
		return w.Status() == types.WorkerStatusSuspended
	}, time.Second, 5*time.Millisecond)

	current, err := w.oplog.CurrentOplogIndex(ctx)
	require.NoError(t, err)

	require.NoError(t, w.Invoke(ctx, invocation))
	time.Sleep(20 * time.Millisecond)

	after, err := w.oplog.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, current, after, "a repeated idempotency key must not append new entries")
}

func TestWorkerRecoversUnfinishedRemoteWriteAsFailed(t *testing.T) {
	ctx := context.Background()
	w := newTestWorker(t)

	o := w.cfg.Oplogs.Open(w.cfg.WorkerId)
	_, err := o.Add(ctx, types.OplogEntry{Kind: types.EntryCreate, Timestamp: time.Now(), WorkerId: w.cfg.WorkerId})
	require.NoError(t, err)
	_, err = o.Add(ctx, types.OplogEntry{Kind: types.EntryBeginRemoteWrite, Timestamp: time.Now()})
	require.NoError(t, err)

	err = w.Start(ctx)
	require.Error(t, err)
	assert.Equal(t, types.WorkerStatusFailed, w.Status())
}
