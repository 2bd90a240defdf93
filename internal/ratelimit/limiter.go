package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Limiter applies the three tiers against a Store.
// All methods are safe for concurrent use; tiers can be swapped at runtime.
type Limiter struct {
	store Store
	tiers atomic.Pointer[Tiers]
	now   func() time.Time
	log   zerolog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used for rejections and store failures.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Limiter) { l.log = log.With().Str("component", "ratelimit").Logger() }
}

// NewLimiter returns a Limiter that owns store.
func NewLimiter(store Store, tiers Tiers, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now, log: zerolog.Nop()}
	l.tiers.Store(&tiers)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tiers returns the quotas in effect.
func (l *Limiter) Tiers() Tiers {
	return *l.tiers.Load()
}

// SetTiers replaces the quotas. Existing buckets keep their current window
// and pick up the new points at their next reset.
func (l *Limiter) SetTiers(tiers Tiers) {
	l.tiers.Store(&tiers)
}

// Consume takes one point from the tier bucket for id.
// It returns *RateLimitError when the quota is exhausted, and an error
// wrapping ErrStoreUnavailable when the store cannot answer.
func (l *Limiter) Consume(ctx context.Context, tierName, id string) error {
	tier, ok := l.Tiers().Get(tierName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}

	key := tier.Key(id)
	now := l.now()

	d, err := l.store.Consume(ctx, key, tier, now)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			l.log.Error().Err(err).Str("key", key).Msg("rate limit store failed")
		}
		return err
	}
	if d.Allowed {
		return nil
	}

	retryAfter := retryAfterSeconds(tier, d.ResetAt, now)
	l.log.Warn().
		Str("tier", tier.Name).
		Str("key", key).
		Int("retry_after", retryAfter).
		Msg("rate limit exceeded")
	return &RateLimitError{Tier: tier.Name, Key: key, RetryAfterSeconds: retryAfter}
}

// CheckRequest consumes the caller tier (user when userID is set, ip
// otherwise) and then the operation tier. Points already taken from the
// caller tier are not returned when the operation tier rejects.
func (l *Limiter) CheckRequest(ctx context.Context, ip, userID, operation string) error {
	if userID != "" {
		if err := l.Consume(ctx, TierUser, userID); err != nil {
			return err
		}
	} else {
		if err := l.Consume(ctx, TierIP, ip); err != nil {
			return err
		}
	}
	return l.Consume(ctx, TierOperation, operation)
}

// Info reports the quota for id in the named tier without consuming.
// A key with no live bucket reports the full quota resetting now.
func (l *Limiter) Info(ctx context.Context, tierName, id string) (Info, error) {
	tier, ok := l.Tiers().Get(tierName)
	if !ok {
		return Info{}, fmt.Errorf("%w: %q", ErrUnknownTier, tierName)
	}

	now := l.now()
	b, found, err := l.store.Peek(ctx, tier.Key(id))
	if err != nil {
		return Info{}, err
	}
	if !found {
		return Info{RemainingPoints: tier.Points, TotalPoints: tier.Points, ResetTime: now}, nil
	}
	return b.Snapshot(tier, now), nil
}

// Close closes the store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
