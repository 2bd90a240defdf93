package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/omarluq/skin-relay/internal/cache"
)

const (
	lockStripes = 64

	// DefaultLockWait bounds how long CacheStore waits for a distributed key lock.
	DefaultLockWait = 2 * time.Second

	// DefaultLockTTL releases a distributed lock held by a crashed instance.
	DefaultLockTTL = 5 * time.Second
)

// CacheStore keeps buckets as JSON in a cache.Cache. When the cache
// implements cache.Locker (Olric) each read-modify-write runs under a
// cluster-wide key lock; otherwise striped local mutexes serialize it.
type CacheStore struct {
	c        cache.Cache
	locker   cache.Locker
	lockWait time.Duration
	lockTTL  time.Duration
	stripes  [lockStripes]sync.Mutex
}

// NewCacheStore wraps c. The store takes ownership: Close closes c.
func NewCacheStore(c cache.Cache) *CacheStore {
	s := &CacheStore{c: c, lockWait: DefaultLockWait, lockTTL: DefaultLockTTL}
	if l, ok := c.(cache.Locker); ok {
		s.locker = l
	}
	return s
}

func (s *CacheStore) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

func (s *CacheStore) lock(ctx context.Context, key string) (func(), error) {
	if s.locker == nil {
		mu := s.stripe(key)
		mu.Lock()
		return mu.Unlock, nil
	}

	unlock, err := s.locker.Lock(ctx, key, s.lockWait, s.lockTTL)
	if err != nil {
		return nil, err
	}
	return func() {
		// An unlock failure only delays the next writer until the lock TTL.
		_ = unlock(context.WithoutCancel(ctx))
	}, nil
}

func (s *CacheStore) load(ctx context.Context, key string) (Bucket, bool, error) {
	raw, err := s.c.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return Bucket{}, false, nil
	}
	if err != nil {
		return Bucket{}, false, err
	}
	var b Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bucket{}, false, fmt.Errorf("decode bucket %s: %w", key, err)
	}
	return b, true, nil
}

// Consume implements Store.
func (s *CacheStore) Consume(ctx context.Context, key string, tier Tier, now time.Time) (Decision, error) {
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return Decision{}, s.wrap(err)
	}
	defer unlock()

	b, _, err := s.load(ctx, key)
	if err != nil {
		return Decision{}, s.wrap(err)
	}

	d := b.Consume(tier, now)

	raw, err := json.Marshal(&b)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: encode bucket %s: %w", ErrStoreUnavailable, key, err)
	}
	if err := s.c.SetWithTTL(ctx, key, raw, ttlFor(&b, now)); err != nil {
		return Decision{}, s.wrap(err)
	}
	return d, nil
}

// Peek implements Store.
func (s *CacheStore) Peek(ctx context.Context, key string) (Bucket, bool, error) {
	b, found, err := s.load(ctx, key)
	if err != nil {
		return Bucket{}, false, s.wrap(err)
	}
	return b, found, nil
}

// Close closes the underlying cache.
func (s *CacheStore) Close() error {
	return s.c.Close()
}

func (s *CacheStore) wrap(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, cache.ErrClosed):
		return ErrClosed
	default:
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
}

var _ Store = (*CacheStore)(nil)
