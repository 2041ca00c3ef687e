package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock is a best-effort distributed lock held in the key-value store.
// It ensures only one scheduler process runs a given event at a time.
type Lock struct {
	store Store
	key   string
	token string
	ttl   time.Duration
}

// AcquireLock attempts to take the lock at key.
// Returns (nil, nil) if another holder already owns it.
func AcquireLock(ctx context.Context, store Store, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.New().String()

	acquired, err := store.SetNX(ctx, key, []byte(token), ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &Lock{
		store: store,
		key:   key,
		token: token,
		ttl:   ttl,
	}, nil
}

// Release frees the lock if it is still ours. A lock that already expired
// (and possibly was taken by someone else) is left alone.
func (l *Lock) Release(ctx context.Context) error {
	if _, err := l.store.DeleteIfEqual(ctx, l.key, []byte(l.token)); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Key returns the store key for this lock
func (l *Lock) Key() string {
	return l.key
}

// Token returns the lock token
func (l *Lock) Token() string {
	return l.token
}

// TTL returns the lock time-to-live
func (l *Lock) TTL() time.Duration {
	return l.ttl
}
