package health

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// State is a breaker state: closed, open or half-open.
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// CircuitBreaker guards one upstream target.
type CircuitBreaker struct {
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
	name string
}

// NewCircuitBreaker creates a breaker for the named target. It opens after
// cfg's failure threshold of consecutive failures, stays open for the open
// duration, then lets the configured number of probes through.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zerolog.Logger) *CircuitBreaker {
	threshold := uint32(cfg.GetFailureThreshold()) //nolint:gosec // getter returns a positive value

	return &CircuitBreaker{
		name: name,
		cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: uint32(cfg.GetHalfOpenProbes()), //nolint:gosec // getter returns a positive value
			Timeout:     cfg.GetOpenDuration(),
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: stateLogger(logger),
			// Caller cancellation says nothing about the upstream.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func stateLogger(logger *zerolog.Logger) func(string, gobreaker.State, gobreaker.State) {
	if logger == nil {
		return nil
	}
	return func(name string, from, to gobreaker.State) {
		level := zerolog.InfoLevel
		if to == gobreaker.StateOpen {
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Str("upstream", name).
			Stringer("from", from).
			Stringer("to", to).
			Msg("circuit breaker state change")
	}
}

// Allow admits one call. The caller must report its outcome through done;
// pass nil for outcomes that say nothing about upstream health.
func (c *CircuitBreaker) Allow() (done func(err error), err error) {
	d, err := c.cb.Allow()
	if err != nil {
		return nil, ErrCircuitOpen
	}
	return d, nil
}

func (c *CircuitBreaker) State() State { return c.cb.State() }

func (c *CircuitBreaker) Name() string { return c.name }

// ShouldCountAsFailure reports whether an attempt outcome says the upstream
// is unhealthy: a transport error other than cancellation, a 5xx, or 429.
func ShouldCountAsFailure(statusCode int, err error) bool {
	switch {
	case err != nil:
		return !errors.Is(err, context.Canceled)
	case statusCode == http.StatusTooManyRequests:
		return true
	default:
		return statusCode >= http.StatusInternalServerError
	}
}
