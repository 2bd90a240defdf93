package ratelimit

import (
	"context"
	"time"
)

// Store owns bucket state. Consume must be atomic per key: two concurrent
// consumptions of the same key never both see the last point.
// All implementations must be safe for concurrent use.
type Store interface {
	// Consume applies Bucket.Consume to the bucket for key, creating it on first use.
	Consume(ctx context.Context, key string, tier Tier, now time.Time) (Decision, error)

	// Peek returns the stored bucket for key without modifying it.
	// found is false when the key has no live bucket.
	Peek(ctx context.Context, key string) (bucket Bucket, found bool, err error)

	// Close releases resources. Further calls return ErrClosed.
	Close() error
}

// Store backends.
const (
	StoreMemory = "memory"
	StoreCache  = "cache"
	StoreRedis  = "redis"
)

// ttlFor is how long a bucket must outlive now.
func ttlFor(b *Bucket, now time.Time) time.Duration {
	ttl := b.ExpiresAt().Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
