package health

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Tracker owns one circuit breaker per upstream target, created on first use.
type Tracker struct {
	circuits map[string]*CircuitBreaker
	logger   *zerolog.Logger
	config   CircuitBreakerConfig
	mu       sync.RWMutex
}

// NewTracker creates a Tracker whose breakers share cfg.
func NewTracker(cfg CircuitBreakerConfig, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		circuits: make(map[string]*CircuitBreaker),
		config:   cfg,
		logger:   logger,
	}
}

// Enabled reports whether callers should consult the breakers at all.
func (t *Tracker) Enabled() bool {
	return t.config.IsEnabled()
}

// Circuit returns the breaker for target, creating it if necessary.
func (t *Tracker) Circuit(target string) *CircuitBreaker {
	t.mu.RLock()
	cb, exists := t.circuits[target]
	t.mu.RUnlock()

	if exists {
		return cb
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, exists = t.circuits[target]; exists {
		return cb
	}

	cb = NewCircuitBreaker(target, t.config, t.logger)
	t.circuits[target] = cb

	if t.logger != nil {
		t.logger.Debug().
			Str("upstream", target).
			Msg("created circuit breaker")
	}

	return cb
}

// State returns the state of target's breaker, CLOSED if it has none yet.
func (t *Tracker) State(target string) State {
	t.mu.RLock()
	cb, exists := t.circuits[target]
	t.mu.RUnlock()

	if !exists {
		return StateClosed
	}
	return cb.State()
}

// Healthy reports whether target's circuit is not open.
func (t *Tracker) Healthy(target string) bool {
	return t.State(target) != StateOpen
}

// TargetState is one entry of Snapshot.
type TargetState struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Snapshot returns every known target's state sorted by name.
func (t *Tracker) Snapshot() []TargetState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make([]TargetState, 0, len(t.circuits))
	for name, cb := range t.circuits {
		states = append(states, TargetState{Name: name, State: cb.State().String()})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states
}
