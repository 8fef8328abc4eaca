package oplog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golemproject/golem/pkg/metrics"
	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/klauspost/compress/zstd"
)

// ArchivePolicy decides when a layer has accumulated enough entries to
// move its closed prefix down to the next layer. Implementations mirror
// the size-based and age-based triggers named in spec Open Question (b).
type ArchivePolicy interface {
	ShouldArchive(entryCount int, oldestEntryAge time.Duration) bool
}

// SizeTriggeredArchivePolicy moves a prefix once a layer holds more than
// MaxEntries entries.
type SizeTriggeredArchivePolicy struct {
	MaxEntries int
}

func (p SizeTriggeredArchivePolicy) ShouldArchive(entryCount int, _ time.Duration) bool {
	return entryCount > p.MaxEntries
}

// AgeTriggeredArchivePolicy moves a prefix once its oldest entry is
// older than MaxAge.
type AgeTriggeredArchivePolicy struct {
	MaxAge time.Duration
}

func (p AgeTriggeredArchivePolicy) ShouldArchive(_ int, oldestEntryAge time.Duration) bool {
	return oldestEntryAge > p.MaxAge
}

// layer is one tier of a LayeredOplog: its own IndexedStorage namespace
// plus the policy that decides when to push its prefix further down.
type layer struct {
	namespace string
	policy    ArchivePolicy
	compress  bool
}

// LayeredOplog stacks an ordered list of storage tiers under one worker
// id: a hot primary tier and one or more colder archive tiers. This
// adapts the teacher's FSM Apply/Snapshot/Restore triad (pkg/manager/fsm.go)
// to a per-worker append log instead of a Raft-replicated state machine:
//   - "apply" becomes "append to the top (primary) layer"
//   - "snapshot" becomes "copy a closed index range down one layer, then
//     drop_prefix the source so the primary tier stays small"
//   - "restore" becomes "open every layer and query top-to-bottom until
//     the requested index is found"
type LayeredOplog struct {
	mu        sync.Mutex
	store     storage.IndexedStorage
	blob      storage.BlobStorage
	workerId  types.WorkerId
	layers    []layer
	zstdLevel zstd.EncoderLevel
}

// NewLayeredOplog builds a layered oplog over store/blob for workerId.
// layers[0] is the hot primary tier queried first; later layers are
// progressively colder archive tiers.
func NewLayeredOplog(store storage.IndexedStorage, blob storage.BlobStorage, workerId types.WorkerId, archivePolicies ...ArchivePolicy) *LayeredOplog {
	layers := make([]layer, 0, len(archivePolicies)+1)
	layers = append(layers, layer{namespace: namespacePrimary})
	for i, p := range archivePolicies {
		layers = append(layers, layer{
			namespace: fmt.Sprintf("oplog-archive-%d", i+1),
			policy:    p,
			compress:  true,
		})
	}
	return &LayeredOplog{store: store, blob: blob, workerId: workerId, layers: layers, zstdLevel: zstd.SpeedDefault}
}

// Archive pushes every entry in [from, to] out of the top layer into the
// next one down, compressing the chunk with zstd if that layer is cold,
// then drops the range from the source so it is never read from again.
//
// Archiving must proceed in contiguous, increasing order (the only
// pattern ShouldArchive/the caller ever drives): dst's append-order ids
// then line up with the entries' original indices one-for-one, which is
// what lets Read locate an archived entry by its original index alone
// rather than needing a separate index-translation table.
func (l *LayeredOplog) Archive(ctx context.Context, from, to types.OplogIndex) error {
	if len(l.layers) < 2 {
		return fmt.Errorf("oplog archive: no archive tier configured for worker %s", l.workerId)
	}
	src := l.layers[0]
	dst := l.layers[1]
	key := l.workerId.String()

	entries, err := l.store.ReadRange(ctx, "oplog-archive", "read-range", src.namespace, key, uint64(from), uint64(to))
	if err != nil {
		return fmt.Errorf("read archive source range: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	if dst.compress {
		chunk, offsets, err := compressEntries(entries, l.zstdLevel)
		if err != nil {
			return fmt.Errorf("compress archive chunk: %w", err)
		}
		path := fmt.Sprintf("%s/%d-%d.zst", key, from, to)
		if err := l.blob.Put(ctx, storage.BlobNamespaceCompressedOplog, path, chunk); err != nil {
			return fmt.Errorf("store compressed archive chunk: %w", err)
		}
		for i, e := range entries {
			marker := EncodeEntry(types.OplogEntry{
				Kind:      types.EntryNoOp,
				Timestamp: time.Now(),
				Details:   encodeArchiveLocator(path, offsets[i]),
			})
			if _, err := l.store.Append(ctx, "oplog-archive", "append-marker", dst.namespace, key, marker); err != nil {
				return fmt.Errorf("append archive marker for entry %d: %w", e.Id, err)
			}
		}
	} else {
		for _, e := range entries {
			if _, err := l.store.Append(ctx, "oplog-archive", "append", dst.namespace, key, e.Data); err != nil {
				return fmt.Errorf("append to archive layer: %w", err)
			}
		}
	}

	if err := l.store.TruncatePrefix(ctx, "oplog-archive", "truncate-prefix", src.namespace, key, uint64(to)+1); err != nil {
		return fmt.Errorf("truncate archived prefix: %w", err)
	}
	return nil
}

// chunkOffset records where one entry's encoded bytes landed inside a
// compressed chunk's decompressed form, so Read can pull out exactly
// that entry without decoding the whole chunk as one value.
type chunkOffset struct {
	offset int
	length int
}

// compressEntries concatenates entries' raw encoded bytes and zstd
// compresses the result, returning the compressed chunk plus each
// entry's byte range within the uncompressed concatenation.
func compressEntries(entries []storage.Entry, level zstd.EncoderLevel) ([]byte, []chunkOffset, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, nil, err
	}

	offsets := make([]chunkOffset, len(entries))
	pos := 0
	for i, e := range entries {
		if _, err := enc.Write(e.Data); err != nil {
			enc.Close()
			return nil, nil, err
		}
		offsets[i] = chunkOffset{offset: pos, length: len(e.Data)}
		pos += len(e.Data)
	}
	if err := enc.Close(); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), offsets, nil
}

// encodeArchiveLocator/decodeArchiveLocator pack a blob path and byte
// range into OplogEntry.Details, the string field the uncompressed
// archive path marker already reused for this purpose.
func encodeArchiveLocator(path string, off chunkOffset) string {
	return fmt.Sprintf("%s:%d:%d", path, off.offset, off.length)
}

func decodeArchiveLocator(details string) (path string, off chunkOffset, err error) {
	parts := strings.Split(details, ":")
	if len(parts) != 3 {
		return "", chunkOffset{}, fmt.Errorf("malformed archive locator %q", details)
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", chunkOffset{}, fmt.Errorf("malformed archive locator offset %q: %w", details, err)
	}
	length, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", chunkOffset{}, fmt.Errorf("malformed archive locator length %q: %w", details, err)
	}
	return parts[0], chunkOffset{offset: offset, length: length}, nil
}

// ShouldArchive reports whether the top layer has satisfied its own
// archive policy and is ready to push its prefix down.
func (l *LayeredOplog) ShouldArchive(ctx context.Context) (bool, types.OplogIndex, types.OplogIndex, error) {
	if len(l.layers) < 2 {
		return false, 0, 0, nil
	}
	src := l.layers[0]
	key := l.workerId.String()

	count, err := l.store.Length(ctx, "oplog-archive", "length", src.namespace, key)
	if err != nil {
		return false, 0, 0, err
	}
	first, ok, err := l.store.First(ctx, "oplog-archive", "first", src.namespace, key)
	if err != nil || !ok {
		return false, 0, 0, err
	}
	firstEntry, err := DecodeEntry(first.Data)
	if err != nil {
		return false, 0, 0, err
	}
	policy := l.layers[1].policy
	if policy == nil {
		return false, 0, 0, nil
	}
	if !policy.ShouldArchive(int(count), time.Since(firstEntry.Timestamp)) {
		return false, 0, 0, nil
	}
	last, ok, err := l.store.Last(ctx, "oplog-archive", "last", src.namespace, key)
	if err != nil || !ok {
		return false, 0, 0, err
	}
	return true, types.OplogIndex(first.Id), types.OplogIndex(last.Id), nil
}

// Add appends entry to the hot primary tier, the only layer new writes
// ever land in; Archive is what later moves a closed prefix down.
func (l *LayeredOplog) Add(ctx context.Context, entry types.OplogEntry) (types.OplogIndex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, err := l.store.Append(ctx, "oplog-archive", "add", l.layers[0].namespace, l.workerId.String(), EncodeEntry(entry))
	if err != nil {
		return 0, fmt.Errorf("append oplog entry: %w", err)
	}
	metrics.OplogEntriesTotal.Inc()
	return types.OplogIndex(id), nil
}

// Commit waits for the primary tier's backing store to reach level
// durable replicas; archive tiers are a background concern of the
// archiver, not of the caller appending a new entry.
func (l *LayeredOplog) Commit(ctx context.Context, level int) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OplogCommitDuration)
	return l.store.WaitForReplicas(ctx, level, 0)
}

// Read returns the entry at index, trying the hot primary tier first
// and falling through progressively colder archive tiers. A compressed
// tier's stream holds one marker entry per archived index (see Archive)
// pointing at the zstd chunk and byte range that entry lives at.
func (l *LayeredOplog) Read(ctx context.Context, index types.OplogIndex) (types.OplogEntry, error) {
	key := l.workerId.String()
	for _, lyr := range l.layers {
		data, err := l.store.Read(ctx, "oplog-archive", "read", lyr.namespace, key, uint64(index))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return types.OplogEntry{}, err
		}
		if !lyr.compress {
			return DecodeEntry(data)
		}
		marker, err := DecodeEntry(data)
		if err != nil {
			return types.OplogEntry{}, fmt.Errorf("decode archive marker at %d: %w", index, err)
		}
		return l.readArchived(ctx, marker.Details)
	}
	return types.OplogEntry{}, storage.ErrNotFound
}

func (l *LayeredOplog) readArchived(ctx context.Context, details string) (types.OplogEntry, error) {
	path, off, err := decodeArchiveLocator(details)
	if err != nil {
		return types.OplogEntry{}, err
	}
	compressed, err := l.blob.Get(ctx, storage.BlobNamespaceCompressedOplog, path)
	if err != nil {
		return types.OplogEntry{}, fmt.Errorf("fetch compressed archive chunk %s: %w", path, err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return types.OplogEntry{}, err
	}
	defer dec.Close()
	chunk, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return types.OplogEntry{}, fmt.Errorf("decompress archive chunk %s: %w", path, err)
	}
	if off.offset < 0 || off.offset+off.length > len(chunk) {
		return types.OplogEntry{}, fmt.Errorf("archive locator out of range for chunk %s", path)
	}
	return DecodeEntry(chunk[off.offset : off.offset+off.length])
}

// ReadRange returns entries with index in [from, to], inclusive,
// regardless of which tier currently holds each one.
func (l *LayeredOplog) ReadRange(ctx context.Context, from, to types.OplogIndex) ([]types.OplogEntry, error) {
	out := make([]types.OplogEntry, 0, int(to-from)+1)
	for i := from; i <= to; i++ {
		entry, err := l.Read(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// CurrentOplogIndex returns the most recently added entry's index,
// always the primary tier's since that is the only layer Add writes to.
func (l *LayeredOplog) CurrentOplogIndex(ctx context.Context) (types.OplogIndex, error) {
	last, ok, err := l.store.Last(ctx, "oplog-archive", "current-index", l.layers[0].namespace, l.workerId.String())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return types.OplogIndex(last.Id), nil
}

func (l *LayeredOplog) Close() error { return nil }
