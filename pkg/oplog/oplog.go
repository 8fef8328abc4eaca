package oplog

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
)

const namespacePrimary = "oplog"

// Oplog is a single worker's append-only event log. The oplog is the
// worker: deleting it deletes the worker, and the WASM instance backing
// it can be destroyed and reconstructed from it at any time.
type Oplog interface {
	// Add appends entry and returns its new index.
	Add(ctx context.Context, entry types.OplogEntry) (types.OplogIndex, error)

	// Commit ensures every entry appended so far has reached at least
	// level durable replicas before returning.
	Commit(ctx context.Context, level int) error

	// Read returns the entry at index.
	Read(ctx context.Context, index types.OplogIndex) (types.OplogEntry, error)

	// ReadRange returns entries with index in [from, to], inclusive.
	ReadRange(ctx context.Context, from, to types.OplogIndex) ([]types.OplogEntry, error)

	// CurrentOplogIndex returns the index of the most recently added entry.
	CurrentOplogIndex(ctx context.Context) (types.OplogIndex, error)

	Close() error
}

// primaryOplog stores a worker's entries directly in IndexedStorage, the
// append-only generalisation of the teacher's per-entity CRUD buckets:
// where WarrenFSM.Apply writes one JSON value per entity id, primaryOplog
// appends one binary-framed entry per monotone index, never overwriting.
type primaryOplog struct {
	mu         sync.Mutex
	store      storage.IndexedStorage
	workerId   types.WorkerId
	numReplicas int
}

func newPrimaryOplog(store storage.IndexedStorage, workerId types.WorkerId, numReplicas int) *primaryOplog {
	return &primaryOplog{store: store, workerId: workerId, numReplicas: numReplicas}
}

func (o *primaryOplog) Add(ctx context.Context, entry types.OplogEntry) (types.OplogIndex, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, err := o.store.Append(ctx, "oplog", "add", namespacePrimary, o.workerId.String(), EncodeEntry(entry))
	if err != nil {
		return 0, fmt.Errorf("append oplog entry: %w", err)
	}
	metrics.OplogEntriesTotal.Inc()
	return types.OplogIndex(id), nil
}

func (o *primaryOplog) Commit(ctx context.Context, level int) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OplogCommitDuration)
	return o.store.WaitForReplicas(ctx, level, 0)
}

func (o *primaryOplog) Read(ctx context.Context, index types.OplogIndex) (types.OplogEntry, error) {
	data, err := o.store.Read(ctx, "oplog", "read", namespacePrimary, o.workerId.String(), uint64(index))
	if err != nil {
		return types.OplogEntry{}, err
	}
	return DecodeEntry(data)
}

func (o *primaryOplog) ReadRange(ctx context.Context, from, to types.OplogIndex) ([]types.OplogEntry, error) {
	raw, err := o.store.ReadRange(ctx, "oplog", "read-range", namespacePrimary, o.workerId.String(), uint64(from), uint64(to))
	if err != nil {
		return nil, err
	}
	out := make([]types.OplogEntry, 0, len(raw))
	for _, r := range raw {
		e, err := DecodeEntry(r.Data)
		if err != nil {
			return nil, fmt.Errorf("decode oplog entry %d: %w", r.Id, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (o *primaryOplog) CurrentOplogIndex(ctx context.Context) (types.OplogIndex, error) {
	last, ok, err := o.store.Last(ctx, "oplog", "current-index", namespacePrimary, o.workerId.String())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return types.OplogIndex(last.Id), nil
}

func (o *primaryOplog) Close() error { return nil }

// OpenOplogs is a process-wide registry of open oplogs, keyed by worker
// id. It exists so two components asking for the same worker's oplog
// share one instance rather than racing independent writers, the per
// process analogue of the teacher's single-FSM-per-manager invariant
// but scoped per worker.
//
// Entries are held by weak reference: once nothing else keeps an Oplog
// alive, a finalizer registered via runtime.AddCleanup removes it from
// the map instead of pinning every worker ever opened for the life of
// the process.
//
// When blob and archivePolicies are set (via NewOpenOplogsWithArchive),
// Open's oplogs are backed by a LayeredOplog instead of the bare primary
// tier. The registry never calls ShouldArchive or Archive itself, so
// entries stay in the primary tier until a caller runs them.
type OpenOplogs struct {
	store           storage.IndexedStorage
	blob            storage.BlobStorage
	archivePolicies []ArchivePolicy
	mu              sync.Mutex
	open            map[types.WorkerId]Oplog
}

func NewOpenOplogs(store storage.IndexedStorage) *OpenOplogs {
	return &OpenOplogs{store: store, open: make(map[types.WorkerId]Oplog)}
}

// NewOpenOplogsWithArchive builds a registry whose oplogs are
// LayeredOplogs over store and blob, with archivePolicies deciding what
// their ShouldArchive reports. Archiving happens only when a caller runs
// Archive; the registry does not trigger it. A registry with no
// archivePolicies behaves exactly like NewOpenOplogs.
func NewOpenOplogsWithArchive(store storage.IndexedStorage, blob storage.BlobStorage, archivePolicies ...ArchivePolicy) *OpenOplogs {
	return &OpenOplogs{store: store, blob: blob, archivePolicies: archivePolicies, open: make(map[types.WorkerId]Oplog)}
}

// Open returns the shared Oplog for workerId, creating it if this is the
// first caller to ask for it since it was last evicted.
func (r *OpenOplogs) Open(workerId types.WorkerId) Oplog {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.open[workerId]; ok {
		return existing
	}

	var o Oplog
	if len(r.archivePolicies) > 0 {
		o = NewLayeredOplog(r.store, r.blob, workerId, r.archivePolicies...)
	} else {
		o = newPrimaryOplog(r.store, workerId, 0)
	}
	r.open[workerId] = o

	holder := &oplogHandle{inner: o}
	runtime.AddCleanup(holder, func(id types.WorkerId) {
		r.evict(id)
	}, workerId)

	return holder
}

// oplogHandle wraps the shared Oplog so runtime.AddCleanup has
// something to attach a finalizer to without pinning the map entry
// itself (AddCleanup must not be attached to the object it cleans up).
type oplogHandle struct {
	inner Oplog
}

func (h *oplogHandle) Add(ctx context.Context, entry types.OplogEntry) (types.OplogIndex, error) {
	return h.inner.Add(ctx, entry)
}
func (h *oplogHandle) Commit(ctx context.Context, level int) error { return h.inner.Commit(ctx, level) }
func (h *oplogHandle) Read(ctx context.Context, index types.OplogIndex) (types.OplogEntry, error) {
	return h.inner.Read(ctx, index)
}
func (h *oplogHandle) ReadRange(ctx context.Context, from, to types.OplogIndex) ([]types.OplogEntry, error) {
	return h.inner.ReadRange(ctx, from, to)
}
func (h *oplogHandle) CurrentOplogIndex(ctx context.Context) (types.OplogIndex, error) {
	return h.inner.CurrentOplogIndex(ctx)
}
func (h *oplogHandle) Close() error { return h.inner.Close() }

func (r *OpenOplogs) evict(workerId types.WorkerId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, workerId)
}

// Count returns the number of oplogs currently tracked. Exposed for
// tests.
func (r *OpenOplogs) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
