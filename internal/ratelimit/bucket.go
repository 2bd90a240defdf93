package ratelimit

import "time"

// Bucket is the quota state for one key.
// Remaining is never negative. A zero BlockUntil means the key is not blocked.
type Bucket struct {
	WindowStart time.Time     `json:"window_start"`
	BlockUntil  time.Time     `json:"block_until"`
	Window      time.Duration `json:"window"`
	Remaining   int           `json:"remaining"`
}

// Decision is the outcome of one consumption.
type Decision struct {
	// ResetAt is when the next point becomes available: the end of the
	// window when allowed, the end of the block when rejected.
	ResetAt   time.Time
	Remaining int
	Allowed   bool
}

// Info is a read-only view of a key's quota.
type Info struct {
	ResetTime       time.Time `json:"reset_time"`
	RemainingPoints int       `json:"remaining_points"`
	TotalPoints     int       `json:"total_points"`
}

// NewBucket returns a full bucket for tier whose window starts at now.
func NewBucket(tier Tier, now time.Time) Bucket {
	return Bucket{
		Remaining:   tier.Points,
		WindowStart: now,
		Window:      tier.Window,
	}
}

// Blocked reports whether the key is serving a penalty at now.
func (b *Bucket) Blocked(now time.Time) bool {
	return !b.BlockUntil.IsZero() && now.Before(b.BlockUntil)
}

// ExpiresAt is when the bucket carries no more information and can be dropped.
func (b *Bucket) ExpiresAt() time.Time {
	end := b.WindowStart.Add(b.Window)
	if b.BlockUntil.After(end) {
		return b.BlockUntil
	}
	return end
}

// Consume takes one point from the bucket at now, starting a new window
// first if the previous one (or a served block) has ended.
func (b *Bucket) Consume(tier Tier, now time.Time) Decision {
	if b.Blocked(now) {
		return Decision{Allowed: false, Remaining: 0, ResetAt: b.BlockUntil}
	}

	windowEnd := b.WindowStart.Add(b.Window)
	if !b.BlockUntil.IsZero() || b.Window <= 0 || !now.Before(windowEnd) {
		*b = NewBucket(tier, now)
		windowEnd = b.WindowStart.Add(b.Window)
	}

	if b.Remaining > 0 {
		b.Remaining--
		return Decision{Allowed: true, Remaining: b.Remaining, ResetAt: windowEnd}
	}

	if tier.BlockDuration > 0 {
		b.BlockUntil = now.Add(tier.BlockDuration)
	} else {
		b.BlockUntil = windowEnd
	}
	return Decision{Allowed: false, Remaining: 0, ResetAt: b.BlockUntil}
}

// Snapshot describes the bucket at now without changing it.
func (b *Bucket) Snapshot(tier Tier, now time.Time) Info {
	switch {
	case b.Blocked(now):
		return Info{RemainingPoints: 0, TotalPoints: tier.Points, ResetTime: b.BlockUntil}
	case !b.BlockUntil.IsZero() || !now.Before(b.WindowStart.Add(b.Window)):
		return Info{RemainingPoints: tier.Points, TotalPoints: tier.Points, ResetTime: now}
	default:
		return Info{
			RemainingPoints: b.Remaining,
			TotalPoints:     tier.Points,
			ResetTime:       b.WindowStart.Add(b.Window),
		}
	}
}

// retryAfterSeconds converts the wait until resetAt into whole seconds,
// rounding up and never less than one. Without a reset time it falls back
// to the tier's block duration.
func retryAfterSeconds(tier Tier, resetAt, now time.Time) int {
	wait := tier.BlockDuration
	if !resetAt.IsZero() {
		wait = resetAt.Sub(now)
	}
	ms := wait.Milliseconds()
	seconds := int((ms + 999) / 1000)
	if seconds < 1 {
		return 1
	}
	return seconds
}
