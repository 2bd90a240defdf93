package sanitize

import (
	"regexp"
	"unicode/utf8"
)

// MaxOutputLength is the number of runes kept before output is truncated.
const MaxOutputLength = 10000

// truncationMarker is appended to truncated output.
const truncationMarker = "..."

// DefaultLeakPatterns flag model output that looks like it exposes secrets.
var DefaultLeakPatterns = []string{
	`(?i)api[_-]?key`,
	`(?i)secret[_-]?key`,
	`(?i)password`,
	`(?i)token`,
	`(?i)database[_-]?url`,
}

// OutputValidator screens model output. Safe for concurrent use.
type OutputValidator struct {
	patterns  []*regexp.Regexp
	maxLength int
}

// NewOutputValidator compiles the default leak patterns plus any extras.
func NewOutputValidator(extra ...string) (*OutputValidator, error) {
	patterns, err := compileAll(append(append([]string{}, DefaultLeakPatterns...), extra...))
	if err != nil {
		return nil, err
	}
	return &OutputValidator{patterns: patterns, maxLength: MaxOutputLength}, nil
}

// MustNewOutputValidator is like NewOutputValidator but panics on a bad pattern.
func MustNewOutputValidator(extra ...string) *OutputValidator {
	v, err := NewOutputValidator(extra...)
	if err != nil {
		panic(err)
	}
	return v
}

var defaultOutputValidator = MustNewOutputValidator()

// Output validates text with the default leak patterns.
func Output(text string) (string, error) {
	return defaultOutputValidator.Validate(text)
}

// Validate rejects output matching a leak pattern anywhere in the full text,
// then truncates long output to the rune limit plus "...".
func (v *OutputValidator) Validate(text string) (string, error) {
	for _, p := range v.patterns {
		if p.MatchString(text) {
			return "", &SecurityError{Reason: ReasonSensitiveInformation}
		}
	}

	if utf8.RuneCountInString(text) <= v.maxLength {
		return text, nil
	}
	runes := []rune(text)
	return string(runes[:v.maxLength]) + truncationMarker, nil
}
