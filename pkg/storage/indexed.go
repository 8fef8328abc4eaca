package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching entry.
var ErrNotFound = errors.New("storage: not found")

// Entry is a single record in an indexed stream: a monotone id paired
// with its opaque payload.
type Entry struct {
	Id   uint64
	Data []byte
}

// ScanCursor lets Scan resume a paginated key listing. The zero value
// starts from the beginning.
type ScanCursor uint64

// IndexedStorage is an ordered, append-only key-stream store. Each
// (namespace, key) pair addresses its own stream of (id, bytes) entries
// with ids strictly increasing from 1. It is the storage primitive the
// oplog is built on: namespace separates concerns (e.g. "oplog" vs
// "oplog-archive"), key is the worker id, and the stream itself is the
// worker's history.
//
// Every call carries svcName/apiName so backends can attribute latency
// and error metrics per call site, mirroring how the Rust IndexedStorage
// trait threads the same labels through every method.
type IndexedStorage interface {
	// Append adds data to the end of the stream, returning its new id.
	Append(ctx context.Context, svcName, apiName, namespace, key string, data []byte) (uint64, error)

	// Read returns the entry at id, or ErrNotFound.
	Read(ctx context.Context, svcName, apiName, namespace, key string, id uint64) ([]byte, error)

	// ReadRange returns entries with id in [start, end], inclusive.
	ReadRange(ctx context.Context, svcName, apiName, namespace, key string, start, end uint64) ([]Entry, error)

	// First returns the lowest-id entry in the stream.
	First(ctx context.Context, svcName, apiName, namespace, key string) (Entry, bool, error)

	// Last returns the highest-id entry in the stream.
	Last(ctx context.Context, svcName, apiName, namespace, key string) (Entry, bool, error)

	// Closest returns the entry with the smallest id >= from.
	Closest(ctx context.Context, svcName, apiName, namespace, key string, from uint64) (Entry, bool, error)

	// Length returns the number of entries currently in the stream.
	Length(ctx context.Context, svcName, apiName, namespace, key string) (uint64, error)

	// Delete removes the key's entire stream.
	Delete(ctx context.Context, svcName, apiName, namespace, key string) error

	// DropPrefix removes every key in namespace starting with keyPrefix.
	DropPrefix(ctx context.Context, svcName, apiName, namespace, keyPrefix string) error

	// TruncatePrefix removes every entry in key's stream with id < beforeId,
	// leaving later entries and the stream itself in place. This is the
	// operation the oplog archiver uses after copying a closed range down
	// to the next tier, as opposed to DropPrefix which discards whole keys.
	TruncatePrefix(ctx context.Context, svcName, apiName, namespace, key string, beforeId uint64) error

	// Exists reports whether key has any entries in namespace.
	Exists(ctx context.Context, svcName, apiName, namespace, key string) (bool, error)

	// Scan lists keys under namespace matching keyPrefix, paginated.
	Scan(ctx context.Context, svcName, apiName, namespace, keyPrefix string, cursor ScanCursor, count int) ([]string, ScanCursor, error)

	// WaitForReplicas blocks until at least numberOfReplicas have
	// acknowledged all writes so far, or timeout elapses. Backends with
	// no replication (memory, bolt, sqlite) return immediately.
	WaitForReplicas(ctx context.Context, numberOfReplicas int, timeout time.Duration) error

	Close() error
}
