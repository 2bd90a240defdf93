package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the limiter and its stores.
var (
	// ErrRateLimitExceeded matches any *RateLimitError via errors.Is.
	ErrRateLimitExceeded = errors.New("ratelimit: rate limit exceeded")

	// ErrUnknownTier is returned for a tier name the limiter does not know.
	ErrUnknownTier = errors.New("ratelimit: unknown tier")

	// ErrStoreUnavailable wraps failures of the bucket store.
	ErrStoreUnavailable = errors.New("ratelimit: store unavailable")

	// ErrContextCancelled is returned when the context is canceled while pacing.
	ErrContextCancelled = errors.New("ratelimit: context canceled")

	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("ratelimit: store closed")
)

// RateLimitError reports an exhausted quota.
type RateLimitError struct {
	Tier              string
	Key               string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ratelimit: %s tier exhausted for %s, retry after %ds", e.Tier, e.Key, e.RetryAfterSeconds)
}

// Is lets errors.Is(err, ErrRateLimitExceeded) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// RetryAfter returns the wait as a duration.
func (e *RateLimitError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterSeconds) * time.Second
}
