package match

import "slices"

// Set is an ordered, duplicate-free collection of rules. A key matches the
// set when it matches any rule. The zero value matches nothing.
type Set struct {
	rules []Rule
}

// NewSet compiles patterns into a Set. Duplicate patterns are kept once.
func NewSet(patterns ...string) (*Set, error) {
	s := &Set{}
	for _, p := range patterns {
		if s.has(p) {
			continue
		}
		r, err := Compile(p)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// With returns a new Set that also contains pattern. The receiver is not
// modified. If pattern is already present the receiver is returned as is.
func (s *Set) With(pattern string) (*Set, error) {
	if s == nil {
		return NewSet(pattern)
	}
	if s.has(pattern) {
		return s, nil
	}
	r, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &Set{rules: append(slices.Clip(s.rules), r)}, nil
}

// Match reports whether key matches at least one rule.
func (s *Set) Match(key string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.rules {
		if r.Match(key) {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Patterns returns the rule sources in insertion order.
func (s *Set) Patterns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.raw
	}
	return out
}

func (s *Set) has(pattern string) bool {
	for _, r := range s.rules {
		if r.raw == pattern {
			return true
		}
	}
	return false
}
