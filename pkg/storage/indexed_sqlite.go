package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndexedStorage stores every namespace's streams in a single
// table keyed by (namespace, key, id), the composite primary key the
// sqlite backend uses in the original implementation.
type SQLiteIndexedStorage struct {
	db *sql.DB
}

func NewSQLiteIndexedStorage(path string) (*SQLiteIndexedStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite indexed storage: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS indexed_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		id INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (namespace, key, id)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create indexed_entries table: %w", err)
	}
	return &SQLiteIndexedStorage{db: db}, nil
}

func (s *SQLiteIndexedStorage) Append(ctx context.Context, _, _, namespace, key string, data []byte) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var maxId sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(id) FROM indexed_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&maxId); err != nil {
		return 0, err
	}
	id := uint64(1)
	if maxId.Valid {
		id = uint64(maxId.Int64) + 1
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO indexed_entries (namespace, key, id, data) VALUES (?, ?, ?, ?)`, namespace, key, id, data); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *SQLiteIndexedStorage) Read(ctx context.Context, _, _, namespace, key string, id uint64) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM indexed_entries WHERE namespace = ? AND key = ? AND id = ?`, namespace, key, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *SQLiteIndexedStorage) ReadRange(ctx context.Context, _, _, namespace, key string, start, end uint64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM indexed_entries WHERE namespace = ? AND key = ? AND id BETWEEN ? AND ? ORDER BY id`, namespace, key, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Id, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteIndexedStorage) First(ctx context.Context, _, _, namespace, key string) (Entry, bool, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM indexed_entries WHERE namespace = ? AND key = ? ORDER BY id ASC LIMIT 1`, namespace, key).Scan(&e.Id, &e.Data)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	return e, err == nil, err
}

func (s *SQLiteIndexedStorage) Last(ctx context.Context, _, _, namespace, key string) (Entry, bool, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM indexed_entries WHERE namespace = ? AND key = ? ORDER BY id DESC LIMIT 1`, namespace, key).Scan(&e.Id, &e.Data)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	return e, err == nil, err
}

func (s *SQLiteIndexedStorage) Closest(ctx context.Context, _, _, namespace, key string, from uint64) (Entry, bool, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `SELECT id, data FROM indexed_entries WHERE namespace = ? AND key = ? AND id >= ? ORDER BY id ASC LIMIT 1`, namespace, key, from).Scan(&e.Id, &e.Data)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	return e, err == nil, err
}

func (s *SQLiteIndexedStorage) Length(ctx context.Context, _, _, namespace, key string) (uint64, error) {
	var n uint64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_entries WHERE namespace = ? AND key = ?`, namespace, key).Scan(&n)
	return n, err
}

func (s *SQLiteIndexedStorage) Delete(ctx context.Context, _, _, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_entries WHERE namespace = ? AND key = ?`, namespace, key)
	return err
}

func (s *SQLiteIndexedStorage) TruncatePrefix(ctx context.Context, _, _, namespace, key string, beforeId uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_entries WHERE namespace = ? AND key = ? AND id < ?`, namespace, key, beforeId)
	return err
}

func (s *SQLiteIndexedStorage) DropPrefix(ctx context.Context, _, _, namespace, keyPrefix string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexed_entries WHERE namespace = ? AND key LIKE ?`, namespace, escapeLike(keyPrefix)+"%")
	return err
}

func (s *SQLiteIndexedStorage) Exists(ctx context.Context, _, _, namespace, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM indexed_entries WHERE namespace = ? AND key = ? LIMIT 1`, namespace, key).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteIndexedStorage) Scan(ctx context.Context, _, _, namespace, keyPrefix string, cursor ScanCursor, count int) ([]string, ScanCursor, error) {
	if count <= 0 {
		count = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT key FROM indexed_entries WHERE namespace = ? AND key LIKE ? ORDER BY key LIMIT ? OFFSET ?`,
		namespace, escapeLike(keyPrefix)+"%", count+1, int(cursor))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, 0, err
		}
		keys = append(keys, k)
	}
	next := ScanCursor(0)
	if len(keys) > count {
		keys = keys[:count]
		next = cursor + ScanCursor(count)
	}
	return keys, next, rows.Err()
}

func (s *SQLiteIndexedStorage) WaitForReplicas(context.Context, int, time.Duration) error { return nil }

func (s *SQLiteIndexedStorage) Close() error { return s.db.Close() }

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
