package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/retry"
)

// DefaultTarget names the circuit breaker for the completion endpoint.
const DefaultTarget = "chat"

// Completer performs a single completion attempt.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Invoker wraps a Completer with per-attempt timeouts, classified retries,
// an optional circuit breaker and optional outbound pacing. It keeps no
// per-call state, so one Invoker serves every request.
type Invoker struct {
	client  Completer
	tracker *health.Tracker
	pacer   *ratelimit.Pacer
	sleep   retry.Sleeper
	rnd     func() float64
	target  string
	policy  retry.Policy
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithPolicy sets attempts, timeout and backoff.
func WithPolicy(p retry.Policy) InvokerOption {
	return func(inv *Invoker) { inv.policy = p.WithDefaults() }
}

// WithHealthTracker guards attempts with the tracker's breaker for target.
func WithHealthTracker(t *health.Tracker, target string) InvokerOption {
	return func(inv *Invoker) {
		inv.tracker = t
		if target != "" {
			inv.target = target
		}
	}
}

// WithPacer waits on p before every attempt.
func WithPacer(p *ratelimit.Pacer) InvokerOption {
	return func(inv *Invoker) { inv.pacer = p }
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(s retry.Sleeper) InvokerOption {
	return func(inv *Invoker) { inv.sleep = s }
}

// WithRand sets the jitter source.
func WithRand(rnd func() float64) InvokerOption {
	return func(inv *Invoker) { inv.rnd = rnd }
}

// NewInvoker returns an Invoker over client using the default retry policy.
func NewInvoker(client Completer, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		client: client,
		policy: retry.DefaultPolicy(),
		sleep:  retry.TimerSleep,
		target: DefaultTarget,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Policy returns the effective retry policy.
func (inv *Invoker) Policy() retry.Policy { return inv.policy }

// Invoke runs req until it succeeds or the retry policy gives up.
// Failures are returned as *UpstreamLogicError (rejected request, not retried)
// or *UpstreamError (everything else); a canceled ctx returns ctx's error.
func (inv *Invoker) Invoke(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	log := zerolog.Ctx(ctx)

	opts := []retry.Option{
		retry.WithSleeper(inv.sleep),
		retry.WithClassifier(Classify),
		retry.OnRetry(func(a retry.Attempt, delay time.Duration) {
			log.Warn().
				Int("attempt", a.Number).
				Int("max_attempts", inv.policy.MaxRetries).
				Int("status", a.StatusCode).
				Bool("timed_out", a.TimedOut).
				Dur("backoff", delay).
				Err(a.Err).
				Msg("upstream retry")
		}),
	}
	if inv.rnd != nil {
		opts = append(opts, retry.WithRand(inv.rnd))
	}

	resp, err := retry.Do(ctx, inv.policy, inv.attempt(req), opts...)
	if err == nil {
		return resp, nil
	}

	var rErr *retry.Error
	if !errors.As(err, &rErr) {
		return nil, err
	}
	return nil, inv.translate(rErr)
}

func (inv *Invoker) attempt(req ChatRequest) func(context.Context) (*ChatResponse, error) {
	return func(ctx context.Context) (*ChatResponse, error) {
		if inv.pacer != nil {
			if err := inv.pacer.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
		}

		var done func(error)
		if inv.tracker != nil && inv.tracker.Enabled() {
			d, err := inv.tracker.Circuit(inv.target).Allow()
			if err != nil {
				return nil, err
			}
			done = d
		}

		resp, err := inv.client.Complete(ctx, req)

		if done != nil {
			var status int
			var se *StatusError
			if errors.As(err, &se) {
				status = se.StatusCode
			}
			if err != nil && health.ShouldCountAsFailure(status, errorForBreaker(se, err)) {
				done(err)
			} else {
				done(nil)
			}
		}
		return resp, err
	}
}

// errorForBreaker lets ShouldCountAsFailure judge status errors by code
// rather than as transport errors.
func errorForBreaker(se *StatusError, err error) error {
	if se != nil {
		return nil
	}
	return err
}

func (inv *Invoker) translate(rErr *retry.Error) error {
	last := rErr.Last()

	if isLogicStatus(last.StatusCode) {
		var se *StatusError
		msg := last.Err.Error()
		if errors.As(last.Err, &se) && se.Message != "" {
			msg = se.Message
		}
		return &UpstreamLogicError{StatusCode: last.StatusCode, Message: msg, Err: last.Err}
	}

	msg := last.Err.Error()
	if rErr.AllTimedOut() {
		msg = rErr.Error()
	}
	return &UpstreamError{
		Attempts:   len(rErr.Attempts),
		StatusCode: last.StatusCode,
		TimedOut:   rErr.AllTimedOut(),
		Message:    msg,
		Err:        last.Err,
	}
}
