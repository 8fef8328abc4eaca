package config

import (
	"fmt"
	"path/filepath"

	"github.com/golemproject/golem/pkg/oplog"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/redis/go-redis/v9"
)

// BuildStorage constructs the IndexedStorage and BlobStorage pair a
// process uses from its configured backend. BackendMemory keeps both in
// memory; the bbolt, sqlite and redis backends all store blobs (oplog
// payloads, compiled components, CA material) in bbolt: no redis- or
// sqlite-backed BlobStorage exists, so picking BackendRedis or
// BackendSQLite only changes where indexed state (oplog entries) lives,
// not where blobs live.
func BuildStorage(backend StorageBackend, dataDir, redisAddr string) (storage.IndexedStorage, storage.BlobStorage, error) {
	switch backend {
	case BackendMemory:
		return storage.NewMemoryIndexedStorage(), storage.NewMemoryBlobStorage(), nil

	case BackendBolt:
		indexed, err := storage.NewBoltIndexedStorage(dataDir, "indexed.db")
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt indexed storage: %w", err)
		}
		blob, err := storage.NewBoltBlobStorage(dataDir, "blob.db")
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt blob storage: %w", err)
		}
		return indexed, blob, nil

	case BackendSQLite:
		indexed, err := storage.NewSQLiteIndexedStorage(filepath.Join(dataDir, "indexed.sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite indexed storage: %w", err)
		}
		blob, err := storage.NewBoltBlobStorage(dataDir, "blob.db")
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt blob storage: %w", err)
		}
		return indexed, blob, nil

	case BackendRedis:
		if redisAddr == "" {
			return nil, nil, fmt.Errorf("redis backend requires redis_addr")
		}
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		indexed := storage.NewRedisIndexedStorage(client)
		blob, err := storage.NewBoltBlobStorage(dataDir, "blob.db")
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt blob storage: %w", err)
		}
		return indexed, blob, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// BuildOplogs constructs the process-wide oplog registry an executor
// hands to every worker it starts. With archive.Enabled, each worker's
// oplog is a LayeredOplog whose ShouldArchive reports true once the hot
// tier holds more than archive.MaxEntries entries; nothing in the
// executor calls Archive, so entries are not moved into the
// zstd-compressed tier automatically. Left disabled, every worker uses
// the bare primary tier.
func BuildOplogs(indexed storage.IndexedStorage, blob storage.BlobStorage, archive OplogArchive) *oplog.OpenOplogs {
	if !archive.Enabled {
		return oplog.NewOpenOplogs(indexed)
	}
	return oplog.NewOpenOplogsWithArchive(indexed, blob, oplog.SizeTriggeredArchivePolicy{MaxEntries: archive.MaxEntries})
}
