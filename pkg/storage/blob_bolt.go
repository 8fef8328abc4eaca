package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// BoltBlobStorage is an embedded BlobStorage backend, one bucket per
// namespace, following the same per-entity-bucket convention the
// cluster state store uses.
type BoltBlobStorage struct {
	db *bolt.DB
}

func NewBoltBlobStorage(dataDir, fileName string) (*BoltBlobStorage, error) {
	db, err := bolt.Open(filepath.Join(dataDir, fileName), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open blob storage db: %w", err)
	}
	return &BoltBlobStorage{db: db}, nil
}

func (b *BoltBlobStorage) Put(_ context.Context, ns BlobNamespace, path string, data []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return err
		}
		return bkt.Put([]byte(path), data)
	})
}

func (b *BoltBlobStorage) Get(_ context.Context, ns BlobNamespace, path string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(ns))
		if bkt == nil {
			return ErrNotFound
		}
		v := bkt.Get([]byte(path))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (b *BoltBlobStorage) Delete(_ context.Context, ns BlobNamespace, path string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(ns))
		if bkt == nil {
			return nil
		}
		return bkt.Delete([]byte(path))
	})
}

func (b *BoltBlobStorage) DeleteDir(_ context.Context, ns BlobNamespace, dir string) error {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(ns))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte{}, k...))
		}
		for _, k := range toDelete {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBlobStorage) ListDir(_ context.Context, ns BlobNamespace, dir string) ([]string, error) {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(ns))
		if bkt == nil {
			return nil
		}
		c := bkt.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && bytes.HasPrefix(k, []byte(prefix)); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	return out, err
}

func (b *BoltBlobStorage) Exists(_ context.Context, ns BlobNamespace, path string) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(ns))
		if bkt == nil {
			return nil
		}
		exists = bkt.Get([]byte(path)) != nil
		return nil
	})
	return exists, err
}

// CreateDir is a no-op: bolt has no directory concept, paths are flat
// keys and ListDir/DeleteDir work by prefix.
func (b *BoltBlobStorage) CreateDir(context.Context, BlobNamespace, string) error { return nil }

func (b *BoltBlobStorage) Close() error { return b.db.Close() }
