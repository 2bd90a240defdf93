// Package retry runs an operation until it succeeds, fails permanently, or
// runs out of attempts, sleeping with capped exponential backoff and jitter
// between attempts.
//
// The loop is split in two so each half can be tested alone:
//   - Session is the bookkeeping state machine. Record an Attempt and it
//     answers Succeed, Fail, or Retry after a delay.
//   - Do drives a Session against a real operation, applying the per-attempt
//     timeout and sleeping through an injectable Sleeper.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults.
const (
	DefaultMaxRetries = 3
	DefaultTimeout    = 30 * time.Second
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
	DefaultJitter     = 0.25
)

// Policy bounds a retry session. Zero fields take the defaults.
type Policy struct {
	// MaxRetries is the total number of attempts, the first included.
	MaxRetries int
	// Timeout bounds each attempt.
	Timeout   time.Duration
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter is the fraction of the capped delay added or removed at random.
	Jitter float64
}

// DefaultPolicy returns 3 attempts of 30s each, backing off from 1s up to 30s with ±25% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Timeout:    DefaultTimeout,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		Jitter:     DefaultJitter,
	}
}

// WithDefaults fills zero fields.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Jitter <= 0 {
		p.Jitter = d.Jitter
	}
	return p
}

// Validate rejects policies that cannot be made sensible by defaults.
func (p Policy) Validate() error {
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("retry: jitter must be in [0, 1), got %v", p.Jitter)
	}
	if p.BaseDelay > 0 && p.MaxDelay > 0 && p.BaseDelay > p.MaxDelay {
		return fmt.Errorf("retry: base delay %s exceeds max delay %s", p.BaseDelay, p.MaxDelay)
	}
	return nil
}

// Backoff returns the sleep after the failed attempt with 0-based index k.
func (p Policy) Backoff(k int) time.Duration {
	return p.BackoffAt(k, rand.Float64())
}

// BackoffAt is Backoff with the random draw u in [0, 1) supplied:
// min(base*2^k, max) scaled by 1 + Jitter*(2u-1), floored to the millisecond.
func (p Policy) BackoffAt(k int, u float64) time.Duration {
	if k < 0 {
		k = 0
	}
	base := float64(p.BaseDelay.Milliseconds())
	maxMs := float64(p.MaxDelay.Milliseconds())

	capped := math.Min(base*math.Pow(2, float64(k)), maxMs)
	jittered := capped * (1 + p.Jitter*(2*u-1))
	if jittered < 0 {
		jittered = 0
	}
	return time.Duration(math.Floor(jittered)) * time.Millisecond
}
