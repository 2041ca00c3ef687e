package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

// SQLiteStore implements Store on a local SQLite database file.
// Expiring keys (SetNX) are stored with an absolute expires_at in unix ms
// and treated as absent once it has passed.
type SQLiteStore struct {
	db        *sql.DB
	keyPrefix string
	now       func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path
func NewSQLiteStore(path, keyPrefix string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return &SQLiteStore{db: db, keyPrefix: keyPrefix, now: time.Now}, nil
}

func (s *SQLiteStore) key(k string) string {
	return s.keyPrefix + k
}

func (s *SQLiteStore) nowMs() int64 {
	return s.now().UnixMilli()
}

// Get returns the value at key
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		s.key(key), s.nowMs(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// Set writes value at key, clearing any expiry
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, expires_at) VALUES(?, ?, NULL)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = NULL`,
		s.key(key), value,
	)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *SQLiteStore) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		s.key(key), s.nowMs(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite delete %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Keys lists live keys with the given prefix
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	full := s.key(prefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, ?) = ? AND (expires_at IS NULL OR expires_at > ?) ORDER BY key`,
		len(full), full, s.nowMs(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite keys %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite keys %s: %w", prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(k, s.keyPrefix))
	}
	return keys, rows.Err()
}

// SetAdd adds member to set
func (s *SQLiteStore) SetAdd(ctx context.Context, set, member string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_sets(set_key, member) VALUES(?, ?)`,
		s.key(set), member,
	)
	if err != nil {
		return fmt.Errorf("sqlite set add %s: %w", set, err)
	}
	return nil
}

// SetRemove removes member from set
func (s *SQLiteStore) SetRemove(ctx context.Context, set, member string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_sets WHERE set_key = ? AND member = ?`,
		s.key(set), member,
	)
	if err != nil {
		return fmt.Errorf("sqlite set remove %s: %w", set, err)
	}
	return nil
}

// SetMembers returns all members of set
func (s *SQLiteStore) SetMembers(ctx context.Context, set string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM kv_sets WHERE set_key = ? ORDER BY member`,
		s.key(set),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite set members %s: %w", set, err)
	}
	defer rows.Close()

	members := make([]string, 0)
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("sqlite set members %s: %w", set, err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetNX writes value with a TTL only if key is absent or expired
func (s *SQLiteStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	now := s.nowMs()
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = now + ttl.Milliseconds()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
		s.key(key), now,
	); err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv(key, value, expires_at) VALUES(?, ?, ?)`,
		s.key(key), value, expiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite setnx %s: %w", key, err)
	}
	return n > 0, nil
}

// DeleteIfEqual removes key only while it still holds value
func (s *SQLiteStore) DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key = ? AND value = ? AND (expires_at IS NULL OR expires_at > ?)`,
		s.key(key), value, s.nowMs(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite compare-and-delete %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Ping checks the database handle
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
