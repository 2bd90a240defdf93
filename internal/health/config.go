// Package health guards upstream calls with circuit breakers.
//
// Each upstream target gets a breaker (CLOSED -> OPEN -> HALF-OPEN -> CLOSED).
// Consecutive retryable failures open it; while open, calls fail fast
// instead of adding load to an upstream that is already struggling.
package health

import "time"

// Default configuration values.
const (
	DefaultFailureThreshold = 5     // consecutive failures to open circuit
	DefaultOpenDurationMS   = 30000 // 30 seconds before half-open
	DefaultHalfOpenProbes   = 3     // probes allowed in half-open state
	DefaultBreakerEnabled   = true
)

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled turns the breaker on. Default: true
	Enabled *bool `yaml:"enabled" toml:"enabled"`

	// FailureThreshold is the number of consecutive failed attempts before
	// opening the circuit. Default: 5
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// OpenDurationMS is how long the circuit stays open before letting
	// probes through. Default: 30000
	OpenDurationMS int `yaml:"open_duration_ms" toml:"open_duration_ms"`

	// HalfOpenProbes is the number of probe calls allowed in half-open state.
	// If all succeed the circuit closes; any failure reopens it. Default: 3
	HalfOpenProbes int `yaml:"half_open_probes" toml:"half_open_probes"`
}

// IsEnabled reports whether breakers guard upstream calls.
func (c *CircuitBreakerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return DefaultBreakerEnabled
	}
	return *c.Enabled
}

// GetFailureThreshold returns the configured failure threshold or default 5.
func (c *CircuitBreakerConfig) GetFailureThreshold() int {
	if c.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return c.FailureThreshold
}

// GetOpenDuration returns the open duration, 30s when unset.
func (c *CircuitBreakerConfig) GetOpenDuration() time.Duration {
	if c.OpenDurationMS <= 0 {
		return time.Duration(DefaultOpenDurationMS) * time.Millisecond
	}
	return time.Duration(c.OpenDurationMS) * time.Millisecond
}

// GetHalfOpenProbes returns the configured half-open probes or default 3.
func (c *CircuitBreakerConfig) GetHalfOpenProbes() int {
	if c.HalfOpenProbes <= 0 {
		return DefaultHalfOpenProbes
	}
	return c.HalfOpenProbes
}
