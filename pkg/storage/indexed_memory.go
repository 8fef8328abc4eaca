package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memStream struct {
	ids  []uint64 // sorted ascending
	data map[uint64][]byte
}

// MemoryIndexedStorage is an in-process IndexedStorage backend. It has
// no durability and no replication; it exists for tests and for
// single-process demos, mirroring the "memory" backend the indexed
// storage trait ships alongside its redis and sqlite implementations.
type MemoryIndexedStorage struct {
	mu    sync.RWMutex
	spans map[string]map[string]*memStream // namespace -> key -> stream
}

func NewMemoryIndexedStorage() *MemoryIndexedStorage {
	return &MemoryIndexedStorage{spans: make(map[string]map[string]*memStream)}
}

func (m *MemoryIndexedStorage) streamLocked(namespace, key string, create bool) *memStream {
	ns, ok := m.spans[namespace]
	if !ok {
		if !create {
			return nil
		}
		ns = make(map[string]*memStream)
		m.spans[namespace] = ns
	}
	s, ok := ns[key]
	if !ok {
		if !create {
			return nil
		}
		s = &memStream{data: make(map[uint64][]byte)}
		ns[key] = s
	}
	return s
}

func (m *MemoryIndexedStorage) Append(_ context.Context, _, _, namespace, key string, data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.streamLocked(namespace, key, true)
	var next uint64 = 1
	if len(s.ids) > 0 {
		next = s.ids[len(s.ids)-1] + 1
	}
	s.ids = append(s.ids, next)
	buf := make([]byte, len(data))
	copy(buf, data)
	s.data[next] = buf
	return next, nil
}

func (m *MemoryIndexedStorage) Read(_ context.Context, _, _, namespace, key string, id uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil {
		return nil, ErrNotFound
	}
	v, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemoryIndexedStorage) ReadRange(_ context.Context, _, _, namespace, key string, start, end uint64) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil {
		return nil, nil
	}
	var out []Entry
	for _, id := range s.ids {
		if id >= start && id <= end {
			out = append(out, Entry{Id: id, Data: s.data[id]})
		}
	}
	return out, nil
}

func (m *MemoryIndexedStorage) First(_ context.Context, _, _, namespace, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil || len(s.ids) == 0 {
		return Entry{}, false, nil
	}
	id := s.ids[0]
	return Entry{Id: id, Data: s.data[id]}, true, nil
}

func (m *MemoryIndexedStorage) Last(_ context.Context, _, _, namespace, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil || len(s.ids) == 0 {
		return Entry{}, false, nil
	}
	id := s.ids[len(s.ids)-1]
	return Entry{Id: id, Data: s.data[id]}, true, nil
}

func (m *MemoryIndexedStorage) Closest(_ context.Context, _, _, namespace, key string, from uint64) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil {
		return Entry{}, false, nil
	}
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= from })
	if i == len(s.ids) {
		return Entry{}, false, nil
	}
	id := s.ids[i]
	return Entry{Id: id, Data: s.data[id]}, true, nil
}

func (m *MemoryIndexedStorage) Length(_ context.Context, _, _, namespace, key string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil {
		return 0, nil
	}
	return uint64(len(s.ids)), nil
}

func (m *MemoryIndexedStorage) Delete(_ context.Context, _, _, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ns, ok := m.spans[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (m *MemoryIndexedStorage) TruncatePrefix(_ context.Context, _, _, namespace, key string, beforeId uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.streamLocked(namespace, key, false)
	if s == nil {
		return nil
	}
	kept := s.ids[:0]
	for _, id := range s.ids {
		if id < beforeId {
			delete(s.data, id)
			continue
		}
		kept = append(kept, id)
	}
	s.ids = kept
	return nil
}

func (m *MemoryIndexedStorage) DropPrefix(_ context.Context, _, _, namespace, keyPrefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.spans[namespace]
	if !ok {
		return nil
	}
	for k := range ns {
		if strings.HasPrefix(k, keyPrefix) {
			delete(ns, k)
		}
	}
	return nil
}

func (m *MemoryIndexedStorage) Exists(_ context.Context, _, _, namespace, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.streamLocked(namespace, key, false)
	return s != nil && len(s.ids) > 0, nil
}

func (m *MemoryIndexedStorage) Scan(_ context.Context, _, _, namespace, keyPrefix string, cursor ScanCursor, count int) ([]string, ScanCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.spans[namespace]
	if !ok {
		return nil, 0, nil
	}
	var all []string
	for k := range ns {
		if strings.HasPrefix(k, keyPrefix) {
			all = append(all, k)
		}
	}
	sort.Strings(all)
	start := int(cursor)
	if start >= len(all) {
		return nil, 0, nil
	}
	end := start + count
	if count <= 0 || end > len(all) {
		end = len(all)
	}
	next := ScanCursor(end)
	if end >= len(all) {
		next = 0
	}
	return all[start:end], next, nil
}

func (m *MemoryIndexedStorage) WaitForReplicas(context.Context, int, time.Duration) error { return nil }

func (m *MemoryIndexedStorage) Close() error { return nil }
