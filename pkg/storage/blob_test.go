package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobBackends(t *testing.T) map[string]BlobStorage {
	t.Helper()
	boltStore, err := NewBoltBlobStorage(t.TempDir(), "blob.db")
	require.NoError(t, err)
	t.Cleanup(func() { boltStore.Close() })

	return map[string]BlobStorage{
		"memory": NewMemoryBlobStorage(),
		"bolt":   boltStore,
	}
}

func TestBlobStorageConformance(t *testing.T) {
	ctx := context.Background()

	for name, store := range blobBackends(t) {
		t.Run(name, func(t *testing.T) {
			exists, err := store.Exists(ctx, BlobNamespaceOplogPayload, "a/b")
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, store.Put(ctx, BlobNamespaceOplogPayload, "a/b", []byte("hello")))
			require.NoError(t, store.Put(ctx, BlobNamespaceOplogPayload, "a/c", []byte("world")))

			data, err := store.Get(ctx, BlobNamespaceOplogPayload, "a/b")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), data)

			_, err = store.Get(ctx, BlobNamespaceOplogPayload, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			entries, err := store.ListDir(ctx, BlobNamespaceOplogPayload, "a")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"a/b", "a/c"}, entries)

			require.NoError(t, store.Delete(ctx, BlobNamespaceOplogPayload, "a/b"))
			exists, err = store.Exists(ctx, BlobNamespaceOplogPayload, "a/b")
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, store.DeleteDir(ctx, BlobNamespaceOplogPayload, "a"))
			entries, err = store.ListDir(ctx, BlobNamespaceOplogPayload, "a")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
