package gateway

import (
	"errors"
	"fmt"

	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/sanitize"
)

// Reason tags a failed transformation. Callers branch on it, not on messages.
type Reason string

// Failure reasons.
const (
	ReasonValidation          Reason = "validation"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonUpstreamUnavailable Reason = "upstream_unavailable"
	ReasonSecurity            Reason = "security"
)

// Error is returned by Transform for every failure. Err keeps the typed error
// of the stage that failed, so errors.As still reaches *sanitize.ValidationError,
// *ratelimit.RateLimitError, *upstream.UpstreamError and the rest.
type Error struct {
	Err    error
	Reason Reason
	Stage  Stage
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s failure while %s: %v", e.Reason, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the failure reason carried by err.
func ReasonOf(err error) (Reason, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Reason, true
	}
	return "", false
}

// classify picks the reason for a stage error.
func classify(err error) Reason {
	var (
		validationErr *sanitize.ValidationError
		securityErr   *sanitize.SecurityError
		rateErr       *ratelimit.RateLimitError
	)
	switch {
	case errors.As(err, &validationErr):
		return ReasonValidation
	case errors.As(err, &securityErr):
		return ReasonSecurity
	case errors.As(err, &rateErr):
		return ReasonRateLimited
	default:
		// Store outages, closed gates, canceled callers and every upstream failure.
		return ReasonUpstreamUnavailable
	}
}
