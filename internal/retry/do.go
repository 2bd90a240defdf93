package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Verdict is a classifier's reading of a failed attempt.
type Verdict struct {
	StatusCode int
	Retryable  bool
}

// Classifier inspects a non-nil attempt error.
type Classifier func(err error) Verdict

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the production Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Error is returned by Do when the session fails. It unwraps to the last
// attempt's error.
type Error struct {
	Attempts []Attempt
	Timeout  time.Duration
}

// Last returns the final attempt.
func (e *Error) Last() Attempt {
	return e.Attempts[len(e.Attempts)-1]
}

// AllTimedOut reports whether no attempt received a response before its timeout.
func (e *Error) AllTimedOut() bool {
	for _, a := range e.Attempts {
		if !a.TimedOut {
			return false
		}
	}
	return len(e.Attempts) > 0
}

func (e *Error) Error() string {
	if e.AllTimedOut() {
		return fmt.Sprintf("timed out after %dms (%d attempts)", e.Timeout.Milliseconds(), len(e.Attempts))
	}
	return fmt.Sprintf("failed after %d attempts: %v", len(e.Attempts), e.Last().Err)
}

func (e *Error) Unwrap() error {
	return e.Last().Err
}

type options struct {
	sleep    Sleeper
	rnd      func() float64
	now      func() time.Time
	classify Classifier
	onRetry  func(Attempt, time.Duration)
}

// Option configures Do.
type Option func(*options)

// WithSleeper replaces the backoff sleep.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithRand sets the jitter source; it must return values in [0, 1).
func WithRand(rnd func() float64) Option {
	return func(o *options) { o.rnd = rnd }
}

// WithClock sets the time source used to stamp attempts.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithClassifier decides which failures are retryable. Without one every
// failure is retryable.
func WithClassifier(c Classifier) Option {
	return func(o *options) { o.classify = c }
}

// OnRetry is called after a failed attempt, before sleeping delay.
func OnRetry(fn func(failed Attempt, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do calls fn until the session ends. Each call gets a context bounded by
// the policy timeout. An attempt that hits that timeout is retryable; if
// the parent ctx ends instead, Do stops and returns ctx's error.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: TimerSleep, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	session := NewSession(policy, o.rnd)
	timeout := session.Policy().Timeout

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		started := o.now()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := fn(attemptCtx)
		timedOut := err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err != nil && !timedOut && ctx.Err() != nil {
			return zero, ctx.Err()
		}

		attempt := Attempt{
			StartedAt: started,
			Duration:  o.now().Sub(started),
			Err:       err,
			TimedOut:  timedOut,
			Retryable: true,
		}
		if err != nil && !timedOut && o.classify != nil {
			v := o.classify(err)
			attempt.StatusCode = v.StatusCode
			attempt.Retryable = v.Retryable
		}

		decision := session.Record(attempt)
		switch decision.Action {
		case ActionSucceed:
			return result, nil
		case ActionFail:
			return zero, &Error{Attempts: session.Attempts(), Timeout: timeout}
		case ActionRetry:
		}

		if o.onRetry != nil {
			last, _ := session.Last()
			o.onRetry(last, decision.Delay)
		}
		if err := o.sleep(ctx, decision.Delay); err != nil {
			return zero, err
		}
	}
}
