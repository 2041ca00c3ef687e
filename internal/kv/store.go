// Package kv provides the key-value persistence used by the schedule engine.
//
// Two backends are available: Redis (the default, shared between the API and
// scheduler processes) and SQLite (single-node deployments). Both namespace
// every key under a configurable prefix such as "hearth:".
package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal key-value API consumed by the engine. Individual
// operations are atomic; nothing is transactional across keys.
type Store interface {
	// Get returns the value at key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value at key without expiry
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key and reports whether it existed
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists keys starting with prefix (store prefix excluded)
	Keys(ctx context.Context, prefix string) ([]string, error)

	// SetAdd adds member to the set stored at set
	SetAdd(ctx context.Context, set, member string) error
	// SetRemove removes member from the set stored at set
	SetRemove(ctx context.Context, set, member string) error
	// SetMembers returns all members of the set stored at set
	SetMembers(ctx context.Context, set string) ([]string, error)

	// SetNX writes value with a TTL only if key is absent
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// DeleteIfEqual removes key only while it still holds value
	DeleteIfEqual(ctx context.Context, key string, value []byte) (bool, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend
type Config struct {
	// Driver is "redis" or "sqlite"
	Driver string
	// RedisURL is used by the redis driver
	RedisURL string
	// SQLitePath is used by the sqlite driver
	SQLitePath string
	// KeyPrefix namespaces all keys (e.g. "hearth:")
	KeyPrefix string
}

// Open connects to the configured backend
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "redis":
		return NewRedisStore(cfg.RedisURL, cfg.KeyPrefix)
	case "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.SQLitePath, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}
}
