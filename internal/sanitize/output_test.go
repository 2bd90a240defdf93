package sanitize_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarluq/skin-relay/internal/sanitize"
)

func TestOutputTruncatesLongText(t *testing.T) {
	t.Parallel()

	got, err := sanitize.Output(strings.Repeat("a", 15000))
	require.NoError(t, err)

	assert.Equal(t, 10003, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, strings.Repeat("a", 10000), strings.TrimSuffix(got, "..."))
}

func TestOutputTruncatesByRunes(t *testing.T) {
	t.Parallel()

	got, err := sanitize.Output(strings.Repeat("や", 10001))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("や", 10000)+"...", got)
}

func TestOutputPassesShortText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "こんにちはやで", strings.Repeat("b", 10000)} {
		got, err := sanitize.Output(text)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestOutputRejectsLeaks(t *testing.T) {
	t.Parallel()

	leaks := []string{
		"here is my API_KEY",
		"the apikey is 123",
		"Secret-Key: abc",
		"your PASSWORD please",
		"bearer token follows",
		"DATABASE_URL=postgres://",
	}
	for _, text := range leaks {
		_, err := sanitize.Output(text)

		var sErr *sanitize.SecurityError
		if !errors.As(err, &sErr) {
			t.Errorf("Output(%q): expected SecurityError, got %v", text, err)
			continue
		}
		if sErr.Reason != sanitize.ReasonSensitiveInformation {
			t.Errorf("Output(%q): reason = %q", text, sErr.Reason)
		}
	}
}

func TestOutputChecksBeyondTruncationPoint(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 12000) + " password"
	_, err := sanitize.Output(text)

	var sErr *sanitize.SecurityError
	assert.True(t, errors.As(err, &sErr))
}

func TestOutputValidatorExtraPatterns(t *testing.T) {
	t.Parallel()

	v, err := sanitize.NewOutputValidator(`(?i)ssn`)
	require.NoError(t, err)

	_, err = v.Validate("my SSN is")
	require.Error(t, err)

	_, err = sanitize.NewOutputValidator(`[`)
	require.Error(t, err)
}
