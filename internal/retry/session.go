package retry

import (
	"time"
)

// Attempt is one try of the operation.
type Attempt struct {
	StartedAt time.Time
	Err       error
	// Number counts from 1.
	Number int
	// StatusCode is the response status, 0 when no response arrived.
	StatusCode int
	Duration   time.Duration
	// Retryable is false for failures that another attempt cannot fix.
	Retryable bool
	// TimedOut is set when the per-attempt timeout aborted the attempt.
	TimedOut bool
}

// Failed reports whether the attempt ended in error.
func (a Attempt) Failed() bool { return a.Err != nil }

// Action is what a Session says to do next.
type Action int

// Session actions.
const (
	ActionSucceed Action = iota
	ActionFail
	ActionRetry
)

func (a Action) String() string {
	switch a {
	case ActionSucceed:
		return "succeed"
	case ActionFail:
		return "fail"
	case ActionRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Decision answers Record.
type Decision struct {
	// Delay is the sleep before the next attempt when Action is ActionRetry.
	Delay  time.Duration
	Action Action
}

// Session tracks the attempts of one logical call. It is not safe for
// concurrent use and must not be reused across calls.
type Session struct {
	rnd      func() float64
	attempts []Attempt
	policy   Policy
	done     bool
}

// NewSession starts a session. rnd draws jitter in [0, 1); nil uses math/rand/v2.
func NewSession(policy Policy, rnd func() float64) *Session {
	return &Session{policy: policy.WithDefaults(), rnd: rnd}
}

// Record files the outcome of the next attempt and decides what follows.
// Once a session has succeeded or failed, every further Record returns the
// same terminal action.
func (s *Session) Record(a Attempt) Decision {
	if s.done {
		return Decision{Action: s.terminal()}
	}

	a.Number = len(s.attempts) + 1
	s.attempts = append(s.attempts, a)

	switch {
	case !a.Failed():
		s.done = true
		return Decision{Action: ActionSucceed}
	case !a.Retryable, len(s.attempts) >= s.policy.MaxRetries:
		s.done = true
		return Decision{Action: ActionFail}
	}

	k := len(s.attempts) - 1
	var delay time.Duration
	if s.rnd != nil {
		delay = s.policy.BackoffAt(k, s.rnd())
	} else {
		delay = s.policy.Backoff(k)
	}
	return Decision{Action: ActionRetry, Delay: delay}
}

func (s *Session) terminal() Action {
	if last, ok := s.Last(); ok && !last.Failed() {
		return ActionSucceed
	}
	return ActionFail
}

// Done reports whether the session reached a terminal action.
func (s *Session) Done() bool { return s.done }

// Policy returns the effective policy.
func (s *Session) Policy() Policy { return s.policy }

// Attempts returns a copy of the recorded attempts.
func (s *Session) Attempts() []Attempt {
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Len returns the number of recorded attempts.
func (s *Session) Len() int { return len(s.attempts) }

// Last returns the most recent attempt.
func (s *Session) Last() (Attempt, bool) {
	if len(s.attempts) == 0 {
		return Attempt{}, false
	}
	return s.attempts[len(s.attempts)-1], true
}

// AllTimedOut reports whether every attempt was aborted by its timeout,
// meaning no response was ever received.
func (s *Session) AllTimedOut() bool {
	if len(s.attempts) == 0 {
		return false
	}
	for _, a := range s.attempts {
		if !a.TimedOut {
			return false
		}
	}
	return true
}
