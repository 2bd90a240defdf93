// Package ratelimit enforces per-caller and per-operation request quotas for skin-relay.
//
// Quotas are fixed windows with a penalty block: each tier grants Points
// consumptions per Window, and the consumption that finds the window empty
// blocks the key for BlockDuration. Three tiers are configured:
//   - ip: unauthenticated callers, keyed by address
//   - user: authenticated callers, keyed by user ID
//   - op: the gateway operation itself, shared by all callers
//
// Bucket state lives behind the Store interface so a process-local map can
// be swapped for a shared backend (cache-backed or Redis) when the gateway
// runs as several instances.
//
// Basic usage:
//
//	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.DefaultTiers())
//	defer limiter.Close()
//
//	if err := limiter.CheckRequest(ctx, "203.0.113.7", "", "transform"); err != nil {
//		var rlErr *ratelimit.RateLimitError
//		if errors.As(err, &rlErr) {
//			// retry after rlErr.RetryAfterSeconds
//		}
//	}
package ratelimit

import (
	"fmt"
	"time"
)

// Tier names. They double as key prefixes.
const (
	TierIP        = "ip"
	TierUser      = "user"
	TierOperation = "op"
)

// Tier describes one quota.
type Tier struct {
	Name          string
	Points        int
	Window        time.Duration
	BlockDuration time.Duration
}

// Tiers groups the three quotas applied to every request.
type Tiers struct {
	IP        Tier
	User      Tier
	Operation Tier
}

// DefaultTiers returns the built-in quotas.
func DefaultTiers() Tiers {
	return Tiers{
		IP: Tier{
			Name:          TierIP,
			Points:        100,
			Window:        60 * time.Second,
			BlockDuration: 60 * time.Second,
		},
		User: Tier{
			Name:          TierUser,
			Points:        1000,
			Window:        24 * time.Hour,
			BlockDuration: time.Hour,
		},
		Operation: Tier{
			Name:          TierOperation,
			Points:        100,
			Window:        time.Hour,
			BlockDuration: 30 * time.Minute,
		},
	}
}

// Get returns the tier with the given name.
func (t Tiers) Get(name string) (Tier, bool) {
	switch name {
	case TierIP:
		return t.IP, true
	case TierUser:
		return t.User, true
	case TierOperation:
		return t.Operation, true
	default:
		return Tier{}, false
	}
}

// Key builds the bucket key for an identifier in this tier, e.g. "ip:203.0.113.7".
func (t Tier) Key(id string) string {
	return t.Name + ":" + id
}

// Validate reports a misconfigured tier.
func (t Tier) Validate() error {
	if t.Points <= 0 {
		return fmt.Errorf("ratelimit: tier %s: points must be positive (got %d)", t.Name, t.Points)
	}
	if t.Window <= 0 {
		return fmt.Errorf("ratelimit: tier %s: window must be positive (got %s)", t.Name, t.Window)
	}
	if t.BlockDuration < 0 {
		return fmt.Errorf("ratelimit: tier %s: block duration must be >= 0 (got %s)", t.Name, t.BlockDuration)
	}
	return nil
}

// IPKey returns the bucket key for a caller address.
func IPKey(ip string) string { return TierIP + ":" + ip }

// UserKey returns the bucket key for an authenticated user.
func UserKey(userID string) string { return TierUser + ":" + userID }

// OperationKey returns the bucket key for a gateway operation.
func OperationKey(op string) string { return TierOperation + ":" + op }
