package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/skin-relay/internal/ratelimit"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, tiers ratelimit.Tiers) (*ratelimit.Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)),
		tiers,
		ratelimit.WithClock(clock.Now),
	)
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func TestLimiterIPTierBlocksAfterQuota(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, ratelimit.DefaultTiers())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Consume(ctx, ratelimit.TierIP, "203.0.113.7"), "consumption %d", i+1)
	}

	err := l.Consume(ctx, ratelimit.TierIP, "203.0.113.7")
	require.Error(t, err)
	assert.ErrorIs(t, err, ratelimit.ErrRateLimitExceeded)

	var rlErr *ratelimit.RateLimitError
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, ratelimit.TierIP, rlErr.Tier)
	assert.Equal(t, "ip:203.0.113.7", rlErr.Key)
	assert.Equal(t, 60, rlErr.RetryAfterSeconds)
	assert.Equal(t, time.Minute, rlErr.RetryAfter())

	// Other callers are unaffected.
	assert.NoError(t, l.Consume(ctx, ratelimit.TierIP, "203.0.113.8"))
}

func TestLimiterBlockExpires(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers.IP.Points = 2
	l, clock := newTestLimiter(t, tiers)
	ctx := context.Background()

	require.NoError(t, l.Consume(ctx, ratelimit.TierIP, "a"))
	require.NoError(t, l.Consume(ctx, ratelimit.TierIP, "a"))
	require.Error(t, l.Consume(ctx, ratelimit.TierIP, "a"))

	clock.Advance(59 * time.Second)
	var rlErr *ratelimit.RateLimitError
	require.ErrorAs(t, l.Consume(ctx, ratelimit.TierIP, "a"), &rlErr)
	assert.Equal(t, 1, rlErr.RetryAfterSeconds)

	clock.Advance(time.Second)
	assert.NoError(t, l.Consume(ctx, ratelimit.TierIP, "a"))
}

func TestLimiterUnknownTier(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(t, ratelimit.DefaultTiers())

	err := l.Consume(context.Background(), "tenant", "a")
	assert.ErrorIs(t, err, ratelimit.ErrUnknownTier)

	_, err = l.Info(context.Background(), "tenant", "a")
	assert.ErrorIs(t, err, ratelimit.ErrUnknownTier)
}

func TestCheckRequestSelectsCallerTier(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers.IP.Points = 1
	tiers.User.Points = 2
	l, _ := newTestLimiter(t, tiers)
	ctx := context.Background()

	// Anonymous: ip tier.
	require.NoError(t, l.CheckRequest(ctx, "198.51.100.1", "", "transform"))
	var rlErr *ratelimit.RateLimitError
	require.ErrorAs(t, l.CheckRequest(ctx, "198.51.100.1", "", "transform"), &rlErr)
	assert.Equal(t, ratelimit.TierIP, rlErr.Tier)

	// Authenticated from the same address: user tier, ip ignored.
	require.NoError(t, l.CheckRequest(ctx, "198.51.100.1", "u1", "transform"))
	require.NoError(t, l.CheckRequest(ctx, "198.51.100.1", "u1", "transform"))
	require.ErrorAs(t, l.CheckRequest(ctx, "198.51.100.1", "u1", "transform"), &rlErr)
	assert.Equal(t, ratelimit.TierUser, rlErr.Tier)

	info, err := l.Info(ctx, ratelimit.TierOperation, "transform")
	require.NoError(t, err)
	assert.Equal(t, 100-3, info.RemainingPoints)
}

func TestCheckRequestOperationTierIsShared(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers.Operation.Points = 2
	l, _ := newTestLimiter(t, tiers)
	ctx := context.Background()

	require.NoError(t, l.CheckRequest(ctx, "10.0.0.1", "", "transform"))
	require.NoError(t, l.CheckRequest(ctx, "10.0.0.2", "", "transform"))

	var rlErr *ratelimit.RateLimitError
	require.ErrorAs(t, l.CheckRequest(ctx, "10.0.0.3", "", "transform"), &rlErr)
	assert.Equal(t, ratelimit.TierOperation, rlErr.Tier)
	assert.Equal(t, 30*60, rlErr.RetryAfterSeconds)

	// The caller tier point taken before the rejection is kept.
	info, err := l.Info(ctx, ratelimit.TierIP, "10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, 99, info.RemainingPoints)

	// A different operation has its own bucket.
	assert.NoError(t, l.CheckRequest(ctx, "10.0.0.3", "", "skins"))
}

func TestInfo(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(t, ratelimit.DefaultTiers())
	ctx := context.Background()
	start := clock.Now()

	info, err := l.Info(ctx, ratelimit.TierUser, "fresh")
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Info{RemainingPoints: 1000, TotalPoints: 1000, ResetTime: start}, info)

	require.NoError(t, l.Consume(ctx, ratelimit.TierUser, "fresh"))
	clock.Advance(time.Hour)

	info, err = l.Info(ctx, ratelimit.TierUser, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 999, info.RemainingPoints)
	assert.Equal(t, 1000, info.TotalPoints)
	assert.Equal(t, start.Add(24*time.Hour), info.ResetTime)

	// Info never consumes.
	info, err = l.Info(ctx, ratelimit.TierUser, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 999, info.RemainingPoints)
}

func TestSetTiersAppliesAtNextWindow(t *testing.T) {
	t.Parallel()

	tiers := ratelimit.DefaultTiers()
	tiers.IP.Points = 1
	l, clock := newTestLimiter(t, tiers)
	ctx := context.Background()

	require.NoError(t, l.Consume(ctx, ratelimit.TierIP, "a"))

	tiers.IP.Points = 3
	l.SetTiers(tiers)
	assert.Equal(t, 3, l.Tiers().IP.Points)

	clock.Advance(2 * time.Minute)
	for range 3 {
		require.NoError(t, l.Consume(ctx, ratelimit.TierIP, "a"))
	}
	assert.Error(t, l.Consume(ctx, ratelimit.TierIP, "a"))
}

func TestLimiterStoreFailure(t *testing.T) {
	t.Parallel()

	store := ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0))
	l := ratelimit.NewLimiter(store, ratelimit.DefaultTiers())
	require.NoError(t, l.Close())

	err := l.CheckRequest(context.Background(), "a", "", "transform")
	assert.ErrorIs(t, err, ratelimit.ErrClosed)
	assert.NotErrorIs(t, err, ratelimit.ErrRateLimitExceeded)
}
