package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackends returns one IndexedStorage instance per backend so the
// conformance suite below runs against all of them identically.
func newTestBackends(t *testing.T) map[string]IndexedStorage {
	t.Helper()

	dir := t.TempDir()
	boltStore, err := NewBoltIndexedStorage(dir, "indexed.db")
	require.NoError(t, err)
	t.Cleanup(func() { boltStore.Close() })

	sqliteStore, err := NewSQLiteIndexedStorage(dir + "/indexed.sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisStore := NewRedisIndexedStorage(redisClient)
	t.Cleanup(func() { redisStore.Close() })

	return map[string]IndexedStorage{
		"memory": NewMemoryIndexedStorage(),
		"bolt":   boltStore,
		"sqlite": sqliteStore,
		"redis":  redisStore,
	}
}

func TestIndexedStorageConformance(t *testing.T) {
	ctx := context.Background()

	for name, store := range newTestBackends(t) {
		t.Run(name, func(t *testing.T) {
			const ns, key = "oplog", "worker-1"

			exists, err := store.Exists(ctx, "svc", "exists", ns, key)
			require.NoError(t, err)
			assert.False(t, exists)

			id1, err := store.Append(ctx, "svc", "append", ns, key, []byte("entry-1"))
			require.NoError(t, err)
			assert.Equal(t, uint64(1), id1)

			id2, err := store.Append(ctx, "svc", "append", ns, key, []byte("entry-2"))
			require.NoError(t, err)
			assert.Equal(t, uint64(2), id2)

			id3, err := store.Append(ctx, "svc", "append", ns, key, []byte("entry-3"))
			require.NoError(t, err)
			assert.Equal(t, uint64(3), id3)

			exists, err = store.Exists(ctx, "svc", "exists", ns, key)
			require.NoError(t, err)
			assert.True(t, exists)

			data, err := store.Read(ctx, "svc", "read", ns, key, 2)
			require.NoError(t, err)
			assert.Equal(t, []byte("entry-2"), data)

			_, err = store.Read(ctx, "svc", "read", ns, key, 99)
			assert.ErrorIs(t, err, ErrNotFound)

			length, err := store.Length(ctx, "svc", "length", ns, key)
			require.NoError(t, err)
			assert.Equal(t, uint64(3), length)

			first, ok, err := store.First(ctx, "svc", "first", ns, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(1), first.Id)

			last, ok, err := store.Last(ctx, "svc", "last", ns, key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(3), last.Id)

			closest, ok, err := store.Closest(ctx, "svc", "closest", ns, key, 2)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(2), closest.Id)

			rangeEntries, err := store.ReadRange(ctx, "svc", "range", ns, key, 1, 2)
			require.NoError(t, err)
			require.Len(t, rangeEntries, 2)
			assert.Equal(t, []byte("entry-1"), rangeEntries[0].Data)
			assert.Equal(t, []byte("entry-2"), rangeEntries[1].Data)

			otherKey := "worker-2"
			_, err = store.Append(ctx, "svc", "append", ns, otherKey, []byte("other"))
			require.NoError(t, err)

			keys, _, err := store.Scan(ctx, "svc", "scan", ns, "worker-", 0, 100)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"worker-1", "worker-2"}, keys)

			require.NoError(t, store.Delete(ctx, "svc", "delete", ns, otherKey))
			exists, err = store.Exists(ctx, "svc", "exists", ns, otherKey)
			require.NoError(t, err)
			assert.False(t, exists)

			require.NoError(t, store.DropPrefix(ctx, "svc", "drop", ns, "worker-"))
			exists, err = store.Exists(ctx, "svc", "exists", ns, key)
			require.NoError(t, err)
			assert.False(t, exists)

			truncKey := "worker-trunc"
			for i := 0; i < 3; i++ {
				_, err := store.Append(ctx, "svc", "append", ns, truncKey, []byte("x"))
				require.NoError(t, err)
			}
			require.NoError(t, store.TruncatePrefix(ctx, "svc", "truncate", ns, truncKey, 2))
			truncLength, err := store.Length(ctx, "svc", "length", ns, truncKey)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), truncLength)
			truncFirst, ok, err := store.First(ctx, "svc", "first", ns, truncKey)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, uint64(2), truncFirst.Id)
		})
	}
}

func TestScanPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIndexedStorage()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "svc", "append", "ns", "k"+string(rune('a'+i)), []byte("x"))
		require.NoError(t, err)
	}

	var seen []string
	cursor := ScanCursor(0)
	for {
		keys, next, err := store.Scan(ctx, "svc", "scan", "ns", "k", cursor, 2)
		require.NoError(t, err)
		seen = append(seen, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Len(t, seen, 5)
}
