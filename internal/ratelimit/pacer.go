package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const unlimitedRPM = 1_000_000

// Pacer smooths outbound calls to the upstream with a token bucket.
//
// Burst equals the per-minute limit so a quiet gateway can spend a full
// minute's capacity at once, then refill gradually. Zero or negative RPM
// means unlimited.
type Pacer struct {
	limiter *rate.Limiter
	rpm     int
	mu      sync.RWMutex
}

// NewPacer creates a pacer allowing rpm calls per minute.
func NewPacer(rpm int) *Pacer {
	p := &Pacer{}
	p.SetRPM(rpm)
	return p
}

func newRateLimiter(rpm int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
}

// Allow reports whether a call may proceed now without waiting.
func (p *Pacer) Allow() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limiter.Allow()
}

// Wait blocks until a call may proceed.
// Returns ErrContextCancelled if ctx ends first.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.RLock()
	limiter := p.limiter
	p.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ErrContextCancelled
		}
		return err
	}
	return nil
}

// SetRPM replaces the rate. Zero or negative means unlimited.
func (p *Pacer) SetRPM(rpm int) {
	if rpm <= 0 {
		rpm = unlimitedRPM
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.limiter = newRateLimiter(rpm)
	p.rpm = rpm
}

// RPM returns the effective limit.
func (p *Pacer) RPM() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rpm
}
