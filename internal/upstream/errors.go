package upstream

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when a 2xx response carries no completion text.
var ErrEmptyResponse = errors.New("upstream: response has no completion content")

// StatusError is a non-2xx response from one attempt.
type StatusError struct {
	// Message is the provider's error message when the body carried one.
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream: status %d: %s", e.StatusCode, e.Message)
}

// UpstreamError is a retryable failure that persisted through every attempt,
// or a call refused by an open circuit.
//
//nolint:revive // the package qualifier reads as upstream.UpstreamError on purpose
type UpstreamError struct {
	Err     error
	Message string
	// StatusCode is the last response status, 0 when no response arrived.
	StatusCode int
	Attempts   int
	// TimedOut is set when every attempt hit the per-attempt timeout.
	TimedOut bool
}

func (e *UpstreamError) Error() string {
	return "upstream: " + e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UpstreamLogicError is a 4xx (other than 429) the provider will keep
// returning for the same request. It is never retried.
//
//nolint:revive // see UpstreamError
type UpstreamLogicError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *UpstreamLogicError) Error() string {
	return fmt.Sprintf("upstream: request rejected with status %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamLogicError) Unwrap() error { return e.Err }
