// Package filter evaluates field-level predicate lists against event payloads.
package filter

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Set is a compiled predicate list. Regex patterns are compiled on first use
// and cached for the lifetime of the set.
type Set struct {
	predicates []*compiled
}

type compiled struct {
	Predicate
	path []string

	reOnce sync.Once
	re     *regexp.Regexp
}

func NewSet(predicates []Predicate) *Set {
	set := &Set{predicates: make([]*compiled, len(predicates))}
	for i, p := range predicates {
		set.predicates[i] = &compiled{Predicate: p, path: splitPath(p.Field)}
	}
	return set
}

// Evaluate is the one-shot form of Set.Evaluate.
func Evaluate(payload map[string]interface{}, predicates []Predicate) bool {
	return NewSet(predicates).Evaluate(payload)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.predicates)
}

// Evaluate folds predicates left to right. Each predicate after the first is
// joined to the running result by its own logical operator; OR never groups.
func (s *Set) Evaluate(payload map[string]interface{}) bool {
	if s == nil || len(s.predicates) == 0 {
		return true
	}

	result := s.predicates[0].eval(payload)
	for _, p := range s.predicates[1:] {
		if p.joinsWithOr() {
			result = result || p.eval(payload)
		} else {
			result = result && p.eval(payload)
		}
	}
	return result
}

func (p *compiled) eval(payload map[string]interface{}) bool {
	actual := lookup(payload, p.path)

	switch p.Operator {
	case OpIsNull:
		return isAbsent(actual) || actual == nil
	case OpIsNotNull:
		return !isAbsent(actual) && actual != nil
	}

	if isAbsent(actual) {
		return false
	}

	switch p.Operator {
	case OpEq:
		return looseEqual(actual, p.Value)
	case OpNe:
		return !looseEqual(actual, p.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, okA := toNumber(actual)
		b, okB := toNumber(p.Value)
		if !okA || !okB {
			return false
		}
		return compareNumbers(p.Operator, a, b)
	case OpBetween:
		bounds, ok := toSlice(p.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		a, okA := toNumber(actual)
		lo, okLo := toNumber(bounds[0])
		hi, okHi := toNumber(bounds[1])
		if !okA || !okLo || !okHi {
			return false
		}
		return a >= lo && a <= hi
	case OpIn:
		return inList(actual, p.Value)
	case OpNotIn:
		if _, ok := toSlice(p.Value); !ok {
			return false
		}
		return !inList(actual, p.Value)
	case OpContains:
		return contains(actual, p.Value)
	case OpStartsWith:
		s, okS := actual.(string)
		prefix, okP := p.Value.(string)
		return okS && okP && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, okS := actual.(string)
		suffix, okP := p.Value.(string)
		return okS && okP && strings.HasSuffix(s, suffix)
	case OpRegex:
		re := p.regex()
		if re == nil {
			return false
		}
		s, ok := scalarString(actual)
		return ok && re.MatchString(s)
	default:
		return false
	}
}

func (p *compiled) regex() *regexp.Regexp {
	p.reOnce.Do(func() {
		pattern, ok := p.Value.(string)
		if !ok {
			return
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		p.re = re
	})
	return p.re
}

func compareNumbers(op Operator, a, b float64) bool {
	switch op {
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	}
	return false
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isNumeric(v interface{}) bool {
	if _, ok := v.(string); ok {
		return false
	}
	_, ok := toNumber(v)
	return ok
}

// looseEqual treats numbers of different Go types as equal by value, and a
// numeric string equal to a number when the other side is numeric.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumeric(a) || isNumeric(b) {
		fa, okA := toNumber(a)
		fb, okB := toNumber(b)
		if okA && okB {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func inList(actual, list interface{}) bool {
	items, ok := toSlice(list)
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}

func contains(actual, needle interface{}) bool {
	switch a := actual.(type) {
	case string:
		s, ok := needle.(string)
		if !ok {
			s = fmt.Sprint(needle)
		}
		return strings.Contains(a, s)
	case map[string]interface{}:
		key, ok := needle.(string)
		if !ok {
			return false
		}
		_, exists := a[key]
		return exists
	default:
		return inList(needle, actual)
	}
}

func scalarString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	default:
		if n, ok := toNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64), true
		}
		return "", false
	}
}
