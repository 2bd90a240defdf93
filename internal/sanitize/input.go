package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// DefaultMaxLength is the input length limit in runes.
const DefaultMaxLength = 10000

// DefaultInjectionPatterns are removed from user text before it is placed in a prompt.
var DefaultInjectionPatterns = []string{
	`(?i)\[\s*(system|assistant|developer)(\s+prompt)?\s*\]`,
	`(?im)^[ \t]*system[ \t]*:`,
	`(?i)ignore\s+(all\s+)?previous\s+instructions`,
	`(?i)forget\s+everything`,
	`(?i)you\s+are\s+now`,
}

var (
	controlChars = regexp.MustCompile(`[\x00-\x09\x0B-\x1F\x7F]`)
	newlineRuns  = regexp.MustCompile(`\n{4,}`)
)

// Sanitizer cleans untrusted text using an ordered list of compiled patterns.
// It holds no mutable state and is safe for concurrent use.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

// NewSanitizer compiles the default injection patterns plus any extras.
func NewSanitizer(extra ...string) (*Sanitizer, error) {
	sources := append(append([]string{}, DefaultInjectionPatterns...), extra...)
	patterns, err := compileAll(sources)
	if err != nil {
		return nil, err
	}
	return &Sanitizer{patterns: patterns}, nil
}

// MustNewSanitizer is like NewSanitizer but panics on a bad pattern.
func MustNewSanitizer(extra ...string) *Sanitizer {
	s, err := NewSanitizer(extra...)
	if err != nil {
		panic(err)
	}
	return s
}

var defaultSanitizer = MustNewSanitizer()

// Input sanitizes text with the default pattern set.
func Input(input string, maxLength int) (string, error) {
	return defaultSanitizer.Sanitize(input, maxLength)
}

// Sanitize validates and cleans input. The result is never longer than the
// input, never empty, and Sanitize(Sanitize(x)) == Sanitize(x).
//
// A maxLength of zero or less means DefaultMaxLength.
func (s *Sanitizer) Sanitize(input string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if utf8.RuneCountInString(input) > maxLength {
		return "", &ValidationError{Reason: ReasonTooLong}
	}

	cleaned := controlChars.ReplaceAllString(input, "")
	if strings.TrimSpace(cleaned) == "" {
		return "", &ValidationError{Reason: ReasonEmpty}
	}

	// Removing one pattern can expose another, and trimming can move a
	// role prefix to the start of a line, so iterate to a fixpoint.
	for {
		next := s.step(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}

	if cleaned == "" {
		return "", &SecurityError{Reason: ReasonPromptInjection}
	}
	return cleaned, nil
}

func (s *Sanitizer) step(text string) string {
	for _, p := range s.patterns {
		text = p.ReplaceAllString(text, "")
	}
	text = newlineRuns.ReplaceAllString(text, "\n\n\n")
	return strings.TrimSpace(text)
}

// Patterns returns the source of every compiled pattern in evaluation order.
func (s *Sanitizer) Patterns() []string {
	return lo.Map(s.patterns, func(p *regexp.Regexp, _ int) string {
		return p.String()
	})
}

func compileAll(sources []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(sources))
	for _, src := range lo.Uniq(sources) {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid pattern %q: %w", src, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}
