package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/omarluq/skin-relay/internal/ratelimit"
)

func TestLimiter_Properties(t *testing.T) {
	t.Parallel()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Within one window exactly Points consumptions succeed.
	properties.Property("allows exactly points per window", prop.ForAll(
		func(points, attempts int) bool {
			tiers := ratelimit.DefaultTiers()
			tiers.IP.Points = points
			now := time.Unix(1_700_000_000, 0)
			l := ratelimit.NewLimiter(
				ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)),
				tiers,
				ratelimit.WithClock(func() time.Time { return now }),
			)
			defer l.Close()

			allowed := 0
			for range attempts {
				if l.Consume(context.Background(), ratelimit.TierIP, "k") == nil {
					allowed++
				}
			}
			return allowed == min(points, attempts)
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 120),
	))

	// Retry-After is a whole number of seconds, at least one.
	properties.Property("retry after is at least one second", prop.ForAll(
		func(blockMs int) bool {
			tiers := ratelimit.DefaultTiers()
			tiers.Operation.Points = 1
			tiers.Operation.BlockDuration = time.Duration(blockMs) * time.Millisecond
			now := time.Unix(1_700_000_000, 0)
			l := ratelimit.NewLimiter(
				ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)),
				tiers,
				ratelimit.WithClock(func() time.Time { return now }),
			)
			defer l.Close()

			_ = l.Consume(context.Background(), ratelimit.TierOperation, "transform")
			err := l.Consume(context.Background(), ratelimit.TierOperation, "transform")
			rlErr, ok := err.(*ratelimit.RateLimitError)
			if !ok {
				return false
			}
			want := (blockMs + 999) / 1000
			if blockMs == 0 {
				want = 3600
			}
			return rlErr.RetryAfterSeconds == max(want, 1)
		},
		gen.IntRange(0, 120_000),
	))

	// Info never reports more remaining points than the tier grants.
	properties.Property("info remaining within bounds", prop.ForAll(
		func(consumed int) bool {
			l := ratelimit.NewLimiter(ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(0)), ratelimit.DefaultTiers())
			defer l.Close()

			for range consumed {
				_ = l.Consume(context.Background(), ratelimit.TierOperation, "transform")
			}
			info, err := l.Info(context.Background(), ratelimit.TierOperation, "transform")
			return err == nil && info.RemainingPoints >= 0 && info.RemainingPoints <= info.TotalPoints
		},
		gen.IntRange(0, 150),
	))

	properties.TestingRun(t)
}
