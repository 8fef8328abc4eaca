package durable

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) (*Context, oplog.Oplog) {
	t.Helper()
	registry := oplog.NewOpenOplogs(storage.NewMemoryIndexedStorage())
	workerId := types.WorkerId{ComponentId: "comp-1", WorkerName: "w-1"}
	o := registry.Open(workerId)
	return &Context{
		Oplog:       o,
		Blob:        storage.NewMemoryBlobStorage(),
		WorkerId:    workerId,
		Replay:      oplog.NewReplayState(0),
		Interrupted: &atomic.Bool{},
	}, o
}

func clockWrapper(calls *int) *Wrapper[struct{}, int64] {
	return &Wrapper[struct{}, int64]{
		Name:           "wall-clock-now",
		Type:           types.ReadRemote,
		EncodeRequest:  func(struct{}) []byte { return nil },
		DecodeRequest:  func([]byte) (struct{}, error) { return struct{}{}, nil },
		EncodeResponse: func(v int64) []byte { b, _ := json.Marshal(v); return b },
		DecodeResponse: func(b []byte) (int64, error) { var v int64; err := json.Unmarshal(b, &v); return v, err },
		Execute: func(context.Context, struct{}) (int64, error) {
			*calls++
			return 42, nil
		},
	}
}

func TestWrapperLiveThenReplayReturnsRecordedResult(t *testing.T) {
	ctx := context.Background()
	c, o := newTestContext(t)
	calls := 0
	w := clockWrapper(&calls)

	res, err := w.Invoke(ctx, c, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res)
	assert.Equal(t, 1, calls)
	last := mustCurrent(t, ctx, o)

	// Rewind replay state to simulate recovery onto a fresh instance.
	c.Replay = oplog.NewReplayState(last)

	res, err = w.Invoke(ctx, c, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res, "replay must return the recorded result")
	assert.Equal(t, 1, calls, "replay must not re-execute a read")
}

func TestWrapperReplayDivergenceWhenFunctionNameMismatches(t *testing.T) {
	ctx := context.Background()
	c, o := newTestContext(t)
	calls := 0
	w := clockWrapper(&calls)

	_, err := w.Invoke(ctx, c, struct{}{})
	require.NoError(t, err)
	last := mustCurrent(t, ctx, o)

	other := clockWrapper(&calls)
	other.Name = "different-function"

	c.Replay = oplog.NewReplayState(last)

	_, err = other.Invoke(ctx, c, struct{}{})
	var divergence *DivergenceError
	require.ErrorAs(t, err, &divergence)
}

func mustCurrent(t *testing.T, ctx context.Context, o oplog.Oplog) types.OplogIndex {
	t.Helper()
	idx, err := o.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	return idx
}

func TestWrapperWriteRemoteBracketsBeginEnd(t *testing.T) {
	ctx := context.Background()
	c, o := newTestContext(t)

	w := &Wrapper[string, string]{
		Name:           "put-object",
		Type:           types.WriteRemote,
		EncodeRequest:  func(s string) []byte { return []byte(s) },
		DecodeRequest:  func(b []byte) (string, error) { return string(b), nil },
		EncodeResponse: func(s string) []byte { return []byte(s) },
		DecodeResponse: func(b []byte) (string, error) { return string(b), nil },
		Execute:        func(context.Context, string) (string, error) { return "ok", nil },
	}

	_, err := w.Invoke(ctx, c, "payload")
	require.NoError(t, err)

	entries, err := o.ReadRange(ctx, 1, mustCurrent(t, ctx, o))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, types.EntryBeginRemoteWrite, entries[0].Kind)
	assert.Equal(t, types.EntryImportedFunctionInvoked, entries[1].Kind)
	assert.Equal(t, types.EntryEndRemoteWrite, entries[2].Kind)
	assert.Equal(t, types.OplogIndex(1), entries[2].BeginIndex)

	unfinished, _, err := UnfinishedRemoteWrite(ctx, o)
	require.NoError(t, err)
	assert.False(t, unfinished)
}

func TestWrapperInterruptedShortCircuits(t *testing.T) {
	ctx := context.Background()
	c, o := newTestContext(t)
	c.Interrupted.Store(true)

	calls := 0
	w := clockWrapper(&calls)
	_, err := w.Invoke(ctx, c, struct{}{})
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 0, calls)

	entry, err := o.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.EntryInterrupted, entry.Kind)
}
