/*
Package storage provides the two storage capabilities the durable
execution engine is built on: IndexedStorage (ordered append-only
key-streams) and BlobStorage (namespaced opaque byte objects).

# Architecture

	┌────────────────────── STORAGE CAPABILITIES ─────────────────────┐
	│                                                                    │
	│  IndexedStorage                    BlobStorage                    │
	│  ┌──────────────────────┐          ┌──────────────────────┐      │
	│  │ namespace/key stream   │          │ namespace/path object │      │
	│  │ (id, bytes) pairs       │          │ opaque bytes           │      │
	│  └──────────┬────────────┘          └──────────┬────────────┘      │
	│             │                                     │                │
	│   memory / bolt / redis / sqlite         memory / bolt            │
	└────────────────────────────────────────────────────────────────┘

IndexedStorage backs the oplog directly: namespace separates the
primary oplog from each archive layer, key is the worker id, and the
per-worker stream's ids are the worker's OplogIndex values.

BlobStorage backs large oplog payloads that exceed the inline threshold
and compressed archive chunks, referenced from an OplogEntry's
PayloadRef by content-addressed path.

# Backends

Four IndexedStorage backends are provided:
  - memory: process-local, no durability, used by tests
  - bolt: embedded, single-process, the default for a standalone executor
  - redis: sorted-set backed, shared across executor processes
  - sqlite: (namespace, key, id) primary key table, an alternative
    embedded backend when bbolt's mmap model is undesirable

All four satisfy the exact same conformance suite in indexed_test.go.

# Usage

	store := storage.NewMemoryIndexedStorage()
	id, err := store.Append(ctx, "oplog-svc", "append", "oplog", workerID.String(), entryBytes)
	entry, ok, err := store.Last(ctx, "oplog-svc", "last", "oplog", workerID.String())

# See Also

  - pkg/oplog for the Oplog built on top of IndexedStorage
  - pkg/types for the OplogEntry encoded into each stream entry
*/
package storage
