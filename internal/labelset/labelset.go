// Package labelset parses raw multi-label responses into sets of label
// tokens and provides the set arithmetic the MASI metric is built on.
package labelset

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrMissing is returned when a missing response is asked for its label
// set. Missing is not the same as an empty set and must be filtered out
// before parsing.
var ErrMissing = errors.New("missing response has no label set")

// DefaultSeparator matches the "l1, l2" style used by most annotation exports.
const DefaultSeparator = ", "

// Set is an unordered collection of distinct label tokens.
type Set map[string]struct{}

// Of builds a Set from the given tokens.
func Of(tokens ...string) Set {
	s := make(Set, len(tokens))
	for _, tok := range tokens {
		s[tok] = struct{}{}
	}
	return s
}

// Parse splits raw on separator. Tokens are kept verbatim; duplicate
// tokens collapse. An empty raw string yields an empty set.
func Parse(raw, separator string) Set {
	if raw == "" {
		return Set{}
	}
	if separator == "" {
		return Of(raw)
	}
	return Of(strings.Split(raw, separator)...)
}

// ParseTrimmed is like Parse but trims whitespace around each token and
// drops tokens that end up empty.
func ParseTrimmed(raw, separator string) Set {
	s := Set{}
	for tok := range Parse(raw, separator) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		s[tok] = struct{}{}
	}
	return s
}

// Len returns the number of labels in the set.
func (s Set) Len() int { return len(s) }

// Contains reports whether label is in the set.
func (s Set) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

// Difference returns the labels in s that are not in other.
func (s Set) Difference(other Set) Set {
	out := Set{}
	for k := range s {
		if !other.Contains(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Intersection returns the labels present in both sets.
func (s Set) Intersection(other Set) Set {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := Set{}
	for k := range small {
		if large.Contains(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the labels in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// String renders the set as a sorted, comma separated list in braces.
func (s Set) String() string {
	return "{" + strings.Join(s.Sorted(), ",") + "}"
}
