// Package match decides which object keys are visible.
//
// Rules are written either as RE2 regular expressions (the default) or, with
// a "glob:" prefix, as doublestar globs. A Set is a disjunction of rules and
// is immutable once built, so it can be shared across goroutines.
package match

import (
	"errors"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobPrefix marks a rule written as a doublestar glob instead of a regex.
const GlobPrefix = "glob:"

// ErrInvalidPattern is returned when a rule cannot be compiled.
var ErrInvalidPattern = errors.New("invalid pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Rule is a single compiled pattern.
type Rule struct {
	raw  string
	re   *regexp.Regexp
	glob string
}

// Compile parses a rule. Regex rules match anywhere in the key unless
// anchored; glob rules must match the whole key.
func Compile(pattern string) (Rule, error) {
	if glob, ok := strings.CutPrefix(pattern, GlobPrefix); ok {
		if glob == "" || !doublestar.ValidatePattern(glob) {
			return Rule{}, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
		}
		return Rule{raw: pattern, glob: glob}, nil
	}
	if pattern == "" {
		return Rule{}, &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, &PatternError{Pattern: pattern, Err: errors.Join(ErrInvalidPattern, err)}
	}
	return Rule{raw: pattern, re: re}, nil
}

// Match reports whether key satisfies the rule.
func (r Rule) Match(key string) bool {
	if r.re != nil {
		return r.re.MatchString(key)
	}
	if r.glob == "" {
		return false
	}
	ok, err := doublestar.Match(r.glob, key)
	return err == nil && ok
}

// String returns the pattern the rule was compiled from.
func (r Rule) String() string {
	return r.raw
}

// AnchoredLiteral returns a regex rule source that matches keys starting
// with the literal prefix.
func AnchoredLiteral(prefix string) string {
	return "^" + regexp.QuoteMeta(prefix)
}
