// Package topic compiles dot-delimited topic patterns and matches published
// topics against them. A `*` segment matches exactly one segment and `**`
// matches zero or more whole segments; every other segment is literal.
package topic

import (
	"fmt"
	"strings"

	"eventhub/pkg/errors"
)

const (
	Separator      = "."
	SingleWildcard = "*"
	MultiWildcard  = "**"
)

type Matcher struct {
	pattern  string
	segments []string
	literal  bool
}

// Compile validates pattern and returns a reusable matcher.
func Compile(pattern string) (*Matcher, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, invalid("topic", pattern, "pattern cannot be empty")
	}

	segments := strings.Split(pattern, Separator)
	literal := true
	for i, segment := range segments {
		switch {
		case segment == "":
			return nil, invalid("topic", pattern, fmt.Sprintf("empty segment at position %d", i))
		case segment == SingleWildcard || segment == MultiWildcard:
			literal = false
		case strings.Contains(segment, SingleWildcard):
			return nil, invalid("topic", pattern, fmt.Sprintf("wildcard must be a whole segment, got %q", segment))
		}
	}

	return &Matcher{
		pattern:  pattern,
		segments: segments,
		literal:  literal,
	}, nil
}

// MustCompile is Compile for patterns known at build time.
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) Pattern() string {
	return m.pattern
}

func (m *Matcher) IsLiteral() bool {
	return m.literal
}

// Match reports whether topic is fully matched by the pattern.
func (m *Matcher) Match(topic string) bool {
	if m.literal {
		return topic == m.pattern
	}
	return matchSegments(m.segments, strings.Split(topic, Separator))
}

// matchSegments is a segment-level glob match. On a mismatch it backtracks to
// the most recent `**` and lets it swallow one more topic segment.
func matchSegments(pattern, topic []string) bool {
	p, t := 0, 0
	starP, starT := -1, 0

	for t < len(topic) {
		if p < len(pattern) && pattern[p] == MultiWildcard {
			starP, starT = p, t
			p++
			continue
		}
		if p < len(pattern) && (pattern[p] == SingleWildcard || pattern[p] == topic[t]) {
			p++
			t++
			continue
		}
		if starP >= 0 {
			starT++
			p, t = starP+1, starT
			continue
		}
		return false
	}

	for p < len(pattern) && pattern[p] == MultiWildcard {
		p++
	}
	return p == len(pattern)
}

// ValidateTopic checks a concrete, publishable topic.
func ValidateTopic(topic string) error {
	if strings.TrimSpace(topic) == "" {
		return invalid("topic", topic, "topic cannot be empty")
	}
	for i, segment := range strings.Split(topic, Separator) {
		if segment == "" {
			return invalid("topic", topic, fmt.Sprintf("empty segment at position %d", i))
		}
		if strings.Contains(segment, SingleWildcard) {
			return invalid("topic", topic, "published topics cannot contain wildcards")
		}
	}
	return nil
}

func invalid(field, value, message string) error {
	return errors.ErrValidation.
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("message", message)
}
