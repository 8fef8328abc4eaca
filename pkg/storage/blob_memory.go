package storage

import (
	"context"
	"strings"
	"sync"
)

// MemoryBlobStorage is an in-process BlobStorage backend for tests.
type MemoryBlobStorage struct {
	mu   sync.RWMutex
	data map[BlobNamespace]map[string][]byte
}

func NewMemoryBlobStorage() *MemoryBlobStorage {
	return &MemoryBlobStorage{data: make(map[BlobNamespace]map[string][]byte)}
}

func (m *MemoryBlobStorage) Put(_ context.Context, ns BlobNamespace, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.data[ns]
	if !ok {
		bucket = make(map[string][]byte)
		m.data[ns] = bucket
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	bucket[path] = buf
	return nil
}

func (m *MemoryBlobStorage) Get(_ context.Context, ns BlobNamespace, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[ns][path]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *MemoryBlobStorage) Delete(_ context.Context, ns BlobNamespace, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[ns], path)
	return nil
}

func (m *MemoryBlobStorage) DeleteDir(_ context.Context, ns BlobNamespace, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for k := range m.data[ns] {
		if strings.HasPrefix(k, prefix) {
			delete(m.data[ns], k)
		}
	}
	return nil
}

func (m *MemoryBlobStorage) ListDir(_ context.Context, ns BlobNamespace, dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for k := range m.data[ns] {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryBlobStorage) Exists(_ context.Context, ns BlobNamespace, path string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[ns][path]
	return ok, nil
}

func (m *MemoryBlobStorage) CreateDir(context.Context, BlobNamespace, string) error { return nil }

func (m *MemoryBlobStorage) Close() error { return nil }
