// Package cache provides the key/value backends skin-relay uses for shared state.
//
// Three backends sit behind the Cache interface:
//   - single (Ristretto): process-local, for one gateway instance
//   - ha (Olric): distributed map shared by every gateway instance
//   - disabled (noop): stores nothing
//
// The rate limiter keeps its buckets here when rate_limit.store is "cache",
// which is how several instances enforce one quota.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-valued key/value store. Implementations are safe for concurrent use.
type Cache interface {
	// Get returns ErrNotFound for a missing or expired key.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores value until ttl elapses.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete is idempotent.
	Delete(ctx context.Context, key string) error

	// Close is idempotent; every later call returns ErrClosed.
	Close() error
}

// Locker is implemented by backends that can serialize read-modify-write
// cycles on a key across processes.
type Locker interface {
	// Lock blocks until the key is held or wait elapses. The lock is
	// released automatically after ttl if unlock is never called.
	Lock(ctx context.Context, key string, wait, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Pinger is implemented by backends with a remote dependency to probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
