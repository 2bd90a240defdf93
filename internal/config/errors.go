// Package config loads, validates and hot-reloads skin-relay configuration.
package config

import (
	"fmt"
	"strings"
)

// ValidationError is every problem Validate found, in field order.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "config: invalid"
	case 1:
		return "config: " + e.Errors[0]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "config: %d errors", len(e.Errors))
	for _, msg := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(msg)
	}
	return b.String()
}

// Add records one problem.
func (e *ValidationError) Add(msg string) {
	e.Errors = append(e.Errors, msg)
}

// Addf records one problem built from a format string.
func (e *ValidationError) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

// ToError returns e, or nil when nothing was recorded.
func (e *ValidationError) ToError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
