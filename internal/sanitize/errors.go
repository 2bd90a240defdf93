// Package sanitize guards both ends of an LLM call: it cleans untrusted
// input before it reaches a prompt, checks style identifiers against an
// allow-list, and screens model output before it is returned to a caller.
package sanitize

import "fmt"

// Validation failure reasons.
const (
	ReasonTooLong     = "too long"
	ReasonEmpty       = "empty"
	ReasonInvalidSkin = "invalid skin"
)

// Security failure reasons.
const (
	ReasonPromptInjection      = "prompt injection"
	ReasonSensitiveInformation = "sensitive information"
)

// ValidationError reports input the caller can fix. It is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sanitize: validation failed: %s", e.Reason)
}

// SecurityError reports content rejected for safety reasons. The offending
// content is deliberately not part of the error.
type SecurityError struct {
	Reason string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("sanitize: security check failed: %s", e.Reason)
}
