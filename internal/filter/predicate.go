package filter

import (
	"fmt"
	"reflect"
	"strings"

	"eventhub/pkg/errors"
)

type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpBetween    Operator = "between"
	OpIsNull     Operator = "is_null"
	OpIsNotNull  Operator = "is_not_null"
	OpRegex      Operator = "regex"
)

type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Predicate is a single field condition. LogicalOperator joins it to the
// result accumulated from the predicates before it.
type Predicate struct {
	Field           string          `json:"field"`
	Operator        Operator        `json:"operator"`
	Value           interface{}     `json:"value,omitempty"`
	LogicalOperator LogicalOperator `json:"logicalOperator,omitempty"`
}

func (p Predicate) joinsWithOr() bool {
	return strings.EqualFold(string(p.LogicalOperator), string(LogicalOr))
}

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpContains: true, OpStartsWith: true, OpEndsWith: true,
	OpBetween: true, OpIsNull: true, OpIsNotNull: true, OpRegex: true,
}

// Validate rejects predicates that can never evaluate meaningfully.
func Validate(predicates []Predicate) error {
	for i, p := range predicates {
		field := fmt.Sprintf("filters[%d]", i)

		if strings.TrimSpace(p.Field) == "" {
			return invalid(field+".field", "field is required")
		}
		if !knownOperators[p.Operator] {
			return invalid(field+".operator", fmt.Sprintf("unknown operator %q", p.Operator))
		}
		if p.LogicalOperator != "" &&
			!strings.EqualFold(string(p.LogicalOperator), string(LogicalAnd)) &&
			!p.joinsWithOr() {
			return invalid(field+".logicalOperator", fmt.Sprintf("unknown logical operator %q (valid: AND, OR)", p.LogicalOperator))
		}

		switch p.Operator {
		case OpBetween:
			bounds, ok := toSlice(p.Value)
			if !ok || len(bounds) != 2 {
				return invalid(field+".value", "between requires a two element [min, max] array")
			}
		case OpIn, OpNotIn:
			if _, ok := toSlice(p.Value); !ok {
				return invalid(field+".value", fmt.Sprintf("%s requires an array value", p.Operator))
			}
		case OpRegex, OpStartsWith, OpEndsWith:
			if _, ok := p.Value.(string); !ok {
				return invalid(field+".value", fmt.Sprintf("%s requires a string value", p.Operator))
			}
		}
	}
	return nil
}

func invalid(field, message string) error {
	return errors.ErrValidation.
		WithDetail("field", field).
		WithDetail("message", message)
}

func toSlice(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]interface{}); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
