package upstream

import (
	"errors"
	"net/http"

	"github.com/omarluq/skin-relay/internal/health"
	"github.com/omarluq/skin-relay/internal/ratelimit"
	"github.com/omarluq/skin-relay/internal/retry"
)

// Classify decides whether a failed attempt is worth repeating.
// 429 and 5xx responses are retryable, other statuses are not. An open
// circuit fails fast. Any other error happened before a response arrived
// (refused or reset connection, DNS failure, truncated body) and is retryable.
func Classify(err error) retry.Verdict {
	var se *StatusError
	if errors.As(err, &se) {
		return retry.Verdict{StatusCode: se.StatusCode, Retryable: retryableStatus(se.StatusCode)}
	}
	switch {
	case errors.Is(err, health.ErrCircuitOpen):
		return retry.Verdict{Retryable: false}
	case errors.Is(err, ratelimit.ErrContextCancelled):
		return retry.Verdict{Retryable: false}
	default:
		return retry.Verdict{Retryable: true}
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func isLogicStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests
}
