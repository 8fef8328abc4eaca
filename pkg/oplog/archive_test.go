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

func TestLayeredOplogArchiveMovesPrefixAndCompresses(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIndexedStorage()
	blob := storage.NewMemoryBlobStorage()
	workerId := testWorkerId()

	layered := NewLayeredOplog(store, blob, workerId, SizeTriggeredArchivePolicy{MaxEntries: 2})

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "t", "t", namespacePrimary, workerId.String(), EncodeEntry(types.OplogEntry{
			Kind: types.EntryNoOp, Timestamp: time.Now(),
		}))
		require.NoError(t, err)
	}

	should, from, to, err := layered.ShouldArchive(ctx)
	require.NoError(t, err)
	assert.True(t, should)
	assert.Equal(t, types.OplogIndex(1), from)
	assert.Equal(t, types.OplogIndex(5), to)

	original := make([]types.OplogEntry, 0, 5)
	for i := types.OplogIndex(1); i <= 5; i++ {
		entry, err := layered.Read(ctx, i)
		require.NoError(t, err)
		original = append(original, entry)
	}

	require.NoError(t, layered.Archive(ctx, from, to))

	remaining, err := store.Length(ctx, "t", "t", namespacePrimary, workerId.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), remaining)

	archived, err := store.Length(ctx, "t", "t", "oplog-archive-1", workerId.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), archived) // one marker per archived entry, same chunk

	entries, err := blob.ListDir(ctx, storage.BlobNamespaceCompressedOplog, workerId.String())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Moving [from, to] down a tier must not change what reading any
	// index in that range returns.
	for i, idx := 0, from; idx <= to; i, idx = i+1, idx+1 {
		got, err := layered.Read(ctx, idx)
		require.NoError(t, err)
		assert.Equal(t, original[i].Kind, got.Kind)
		assert.Equal(t, original[i].Timestamp.UnixNano(), got.Timestamp.UnixNano())
	}
}

func TestLayeredOplogAddReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIndexedStorage()
	blob := storage.NewMemoryBlobStorage()
	workerId := testWorkerId()

	layered := NewLayeredOplog(store, blob, workerId, SizeTriggeredArchivePolicy{MaxEntries: 100})

	idx, err := layered.Add(ctx, types.OplogEntry{Kind: types.EntryNoOp, Timestamp: time.Now(), Details: "first"})
	require.NoError(t, err)
	assert.Equal(t, types.OplogIndex(1), idx)

	current, err := layered.CurrentOplogIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.OplogIndex(1), current)

	entry, err := layered.Read(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Details)

	require.NoError(t, layered.Commit(ctx, 0))
}

func TestLayeredOplogReadRangeSpansArchivedAndHotEntries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIndexedStorage()
	blob := storage.NewMemoryBlobStorage()
	workerId := testWorkerId()

	layered := NewLayeredOplog(store, blob, workerId, SizeTriggeredArchivePolicy{MaxEntries: 1000})
	for i := 0; i < 3; i++ {
		_, err := layered.Add(ctx, types.OplogEntry{Kind: types.EntryNoOp, Timestamp: time.Now(), Details: string(rune('a' + i))})
		require.NoError(t, err)
	}
	require.NoError(t, layered.Archive(ctx, 1, 2))

	entries, err := layered.ReadRange(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Details)
	assert.Equal(t, "b", entries[1].Details)
	assert.Equal(t, "c", entries[2].Details)
}

func TestLayeredOplogArchiveNoopWithoutArchiveTier(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryIndexedStorage()
	blob := storage.NewMemoryBlobStorage()
	workerId := testWorkerId()

	layered := NewLayeredOplog(store, blob, workerId)
	should, _, _, err := layered.ShouldArchive(ctx)
	require.NoError(t, err)
	assert.False(t, should)
}
