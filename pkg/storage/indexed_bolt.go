package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltIndexedStorage is an embedded, single-process IndexedStorage
// backend. Keys within a namespace bucket are "<key>\x00<id big-endian>"
// so a bucket cursor naturally yields entries in id order, the same
// composite-key trick the sqlite backend uses with its (key, id)
// primary key.
type BoltIndexedStorage struct {
	db *bolt.DB
}

func NewBoltIndexedStorage(dataDir, fileName string) (*BoltIndexedStorage, error) {
	db, err := bolt.Open(filepath.Join(dataDir, fileName), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open indexed storage db: %w", err)
	}
	return &BoltIndexedStorage{db: db}, nil
}

func boltKey(key string, id uint64) []byte {
	buf := make([]byte, len(key)+1+8)
	copy(buf, key)
	buf[len(key)] = 0
	binary.BigEndian.PutUint64(buf[len(key)+1:], id)
	return buf
}

func boltKeyPrefix(key string) []byte {
	buf := make([]byte, len(key)+1)
	copy(buf, key)
	buf[len(key)] = 0
	return buf
}

func (s *BoltIndexedStorage) bucket(tx *bolt.Tx, namespace string, create bool) (*bolt.Bucket, error) {
	name := []byte(namespace)
	if create {
		return tx.CreateBucketIfNotExists(name)
	}
	return tx.Bucket(name), nil
}

func (s *BoltIndexedStorage) Append(_ context.Context, _, _, namespace, key string, data []byte) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, true)
		if err != nil {
			return err
		}
		last, err := lastIdLocked(b, key)
		if err != nil {
			return err
		}
		id = last + 1
		return b.Put(boltKey(key, id), data)
	})
	return id, err
}

func lastIdLocked(b *bolt.Bucket, key string) (uint64, error) {
	c := b.Cursor()
	prefix := boltKeyPrefix(key)
	upper := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	var last uint64
	for k, _ := c.Seek(upper); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Prev() {
		last = binary.BigEndian.Uint64(k[len(prefix):])
		break
	}
	return last, nil
}

func (s *BoltIndexedStorage) Read(_ context.Context, _, _, namespace, key string, id uint64) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return ErrNotFound
		}
		v := b.Get(boltKey(key, id))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (s *BoltIndexedStorage) ReadRange(_ context.Context, _, _, namespace, key string, start, end uint64) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		for k, v := c.Seek(boltKey(key, start)); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			id := binary.BigEndian.Uint64(k[len(prefix):])
			if id > end {
				break
			}
			out = append(out, Entry{Id: id, Data: append([]byte{}, v...)})
		}
		return nil
	})
	return out, err
}

func (s *BoltIndexedStorage) First(_ context.Context, _, _, namespace, key string) (Entry, bool, error) {
	var e Entry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		k, v := c.Seek(prefix)
		if k != nil && bytes.HasPrefix(k, prefix) {
			e = Entry{Id: binary.BigEndian.Uint64(k[len(prefix):]), Data: append([]byte{}, v...)}
			found = true
		}
		return nil
	})
	return e, found, err
}

func (s *BoltIndexedStorage) Last(_ context.Context, _, _, namespace, key string) (Entry, bool, error) {
	var e Entry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		upper := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		c := b.Cursor()
		k, v := c.Seek(upper)
		if k == nil {
			k, v = c.Last()
		} else if !bytes.HasPrefix(k, prefix) {
			k, v = c.Prev()
		}
		if k != nil && bytes.HasPrefix(k, prefix) {
			e = Entry{Id: binary.BigEndian.Uint64(k[len(prefix):]), Data: append([]byte{}, v...)}
			found = true
		}
		return nil
	})
	return e, found, err
}

func (s *BoltIndexedStorage) Closest(_ context.Context, _, _, namespace, key string, from uint64) (Entry, bool, error) {
	var e Entry
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		k, v := c.Seek(boltKey(key, from))
		if k != nil && bytes.HasPrefix(k, prefix) {
			e = Entry{Id: binary.BigEndian.Uint64(k[len(prefix):]), Data: append([]byte{}, v...)}
			found = true
		}
		return nil
	})
	return e, found, err
}

func (s *BoltIndexedStorage) Length(_ context.Context, _, _, namespace, key string) (uint64, error) {
	var n uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *BoltIndexedStorage) Delete(_ context.Context, _, _, namespace, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			toDelete = append(toDelete, append([]byte{}, k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltIndexedStorage) TruncatePrefix(_ context.Context, _, _, namespace, key string, beforeId uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		prefix := boltKeyPrefix(key)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			id := binary.BigEndian.Uint64(k[len(prefix):])
			if id >= beforeId {
				break
			}
			toDelete = append(toDelete, append([]byte{}, k...))
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltIndexedStorage) DropPrefix(_ context.Context, _, _, namespace, keyPrefix string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if idx := bytes.IndexByte(k, 0); idx >= 0 && strings.HasPrefix(string(k[:idx]), keyPrefix) {
				toDelete = append(toDelete, append([]byte{}, k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltIndexedStorage) Exists(ctx context.Context, svcName, apiName, namespace, key string) (bool, error) {
	n, err := s.Length(ctx, svcName, apiName, namespace, key)
	return n > 0, err
}

func (s *BoltIndexedStorage) Scan(_ context.Context, _, _, namespace, keyPrefix string, cursor ScanCursor, count int) ([]string, ScanCursor, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := s.bucket(tx, namespace, false)
		if err != nil || b == nil {
			return nil
		}
		seen := make(map[string]struct{})
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			idx := bytes.IndexByte(k, 0)
			if idx < 0 {
				continue
			}
			key := string(k[:idx])
			if strings.HasPrefix(key, keyPrefix) {
				seen[key] = struct{}{}
			}
		}
		for k := range seen {
			keys = append(keys, k)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	start := int(cursor)
	if start >= len(keys) {
		return nil, 0, nil
	}
	end := start + count
	if count <= 0 || end > len(keys) {
		end = len(keys)
	}
	next := ScanCursor(end)
	if end >= len(keys) {
		next = 0
	}
	return keys[start:end], next, nil
}

func (s *BoltIndexedStorage) WaitForReplicas(context.Context, int, time.Duration) error { return nil }

func (s *BoltIndexedStorage) Close() error { return s.db.Close() }
