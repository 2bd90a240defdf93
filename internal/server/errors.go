package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/omarluq/skin-relay/internal/gateway"
	"github.com/omarluq/skin-relay/internal/ratelimit"
)

// Error types in response bodies.
const (
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAuthentication = "authentication_error"
	ErrTypeRateLimit      = "rate_limit_error"
	ErrTypeUpstream       = "upstream_error"
	ErrTypeTooLarge       = "request_too_large"
)

// Caller-facing messages. They never include request content.
const (
	MsgInvalidInput        = "invalid input"
	MsgTransformFailed     = "transformation failed, please retry"
	msgRateLimitedTemplate = "rate limit exceeded, try again in %d seconds"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error type and message.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, errorType, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Type:  "error",
		Error: ErrorDetail{Type: errorType, Message: message},
	})
}

// WriteRateLimitError writes 429 with a Retry-After header of at least one second.
func WriteRateLimitError(w http.ResponseWriter, retryAfterSeconds int) {
	seconds := max(retryAfterSeconds, 1)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, http.StatusTooManyRequests, ErrTypeRateLimit, fmt.Sprintf(msgRateLimitedTemplate, seconds))
}

// IsBodyTooLargeError checks if an error is from http.MaxBytesReader.
func IsBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// WriteBodyTooLargeError writes a 413 Request Entity Too Large response.
func WriteBodyTooLargeError(w http.ResponseWriter) {
	WriteError(w, http.StatusRequestEntityTooLarge, ErrTypeTooLarge,
		"request body exceeds the maximum allowed size")
}

// WriteGatewayError maps a Transform failure onto a response.
func WriteGatewayError(w http.ResponseWriter, err error) {
	reason, _ := gateway.ReasonOf(err)
	switch reason {
	case gateway.ReasonRateLimited:
		seconds := 0
		var rlErr *ratelimit.RateLimitError
		if errors.As(err, &rlErr) {
			seconds = rlErr.RetryAfterSeconds
		}
		WriteRateLimitError(w, seconds)
	case gateway.ReasonValidation, gateway.ReasonSecurity:
		WriteError(w, http.StatusBadRequest, ErrTypeInvalidRequest, MsgInvalidInput)
	default:
		WriteError(w, http.StatusBadGateway, ErrTypeUpstream, MsgTransformFailed)
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
