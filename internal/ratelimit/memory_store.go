package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often MemoryStore drops expired buckets.
const DefaultSweepInterval = time.Minute

// MemoryStore keeps buckets in a process-local map.
type MemoryStore struct {
	buckets map[string]*Bucket
	stop    chan struct{}
	done    chan struct{}
	now     func() time.Time
	mu      sync.Mutex
	closed  bool
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*memoryStoreOptions)

type memoryStoreOptions struct {
	now           func() time.Time
	sweepInterval time.Duration
}

// WithSweepInterval sets the janitor interval. Zero or negative disables it.
func WithSweepInterval(d time.Duration) MemoryStoreOption {
	return func(o *memoryStoreOptions) { o.sweepInterval = d }
}

// WithSweepClock sets the clock the janitor uses to decide expiry.
func WithSweepClock(now func() time.Time) MemoryStoreOption {
	return func(o *memoryStoreOptions) { o.now = now }
}

// NewMemoryStore creates a MemoryStore and starts its janitor.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	o := memoryStoreOptions{now: time.Now, sweepInterval: DefaultSweepInterval}
	for _, opt := range opts {
		opt(&o)
	}

	s := &MemoryStore{
		buckets: make(map[string]*Bucket),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		now:     o.now,
	}

	if o.sweepInterval > 0 {
		go s.janitor(o.sweepInterval)
	} else {
		close(s.done)
	}
	return s
}

// Consume implements Store.
func (s *MemoryStore) Consume(ctx context.Context, key string, tier Tier, now time.Time) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Decision{}, ErrClosed
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &Bucket{}
		s.buckets[key] = b
	}
	return b.Consume(tier, now), nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(ctx context.Context, key string) (Bucket, bool, error) {
	if err := ctx.Err(); err != nil {
		return Bucket{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Bucket{}, false, ErrClosed
	}

	b, ok := s.buckets[key]
	if !ok {
		return Bucket{}, false, nil
	}
	return *b, true, nil
}

// Sweep removes buckets that expired before now and returns how many were dropped.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if !now.Before(b.ExpiresAt()) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Close stops the janitor. It is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}

func (s *MemoryStore) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

var _ Store = (*MemoryStore)(nil)
