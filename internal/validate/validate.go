// Package validate checks and sanitizes user-supplied query text before it
// reaches the answer pipeline. Validation failures never trigger a network
// call.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Question length bounds in characters, measured after trimming.
const (
	MinQuestionLength = 3
	MaxQuestionLength = 1000
)

// MaxSanitizedLength caps sanitized output.
const MaxSanitizedLength = 2000

// Sentinel errors checked with errors.Is().
var (
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrQuestionTooLong = errors.New("question too long")
	ErrHarmfulContent  = errors.New("question contains disallowed content")
	ErrInvalidTicker   = errors.New("invalid ticker symbol")
)

// harmfulPatterns are markup fragments that have no place in a financial
// question and usually indicate an injection attempt.
var harmfulPatterns = []string{
	"<script",
	"javascript:",
	"<iframe",
	"<object",
	"<embed",
}

var (
	tickerRe     = regexp.MustCompile(`^[A-Z]{1,5}$`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Question validates a user question. The empty-after-trim and too-short
// cases both map to ErrEmptyQuestion so callers show one message.
func Question(q string) error {
	trimmed := strings.TrimSpace(q)
	if len(trimmed) < MinQuestionLength {
		return fmt.Errorf("%w: need at least %d characters", ErrEmptyQuestion, MinQuestionLength)
	}
	if len(trimmed) > MaxQuestionLength {
		return fmt.Errorf("%w: %d characters exceeds limit of %d",
			ErrQuestionTooLong, len(trimmed), MaxQuestionLength)
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range harmfulPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("%w: %q", ErrHarmfulContent, pattern)
		}
	}
	return nil
}

// Ticker reports whether s is a plausible US equity symbol:
// one to five uppercase letters, nothing else.
func Ticker(s string) error {
	if !tickerRe.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, s)
	}
	return nil
}

// Sanitize strips markup, collapses whitespace, and caps the result.
// Applied to user text before it is embedded in a prompt.
func Sanitize(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > MaxSanitizedLength {
		s = s[:MaxSanitizedLength]
	}
	return s
}
