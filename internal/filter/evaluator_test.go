package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/pkg/errors"
)

func samplePayload() map[string]interface{} {
	return map[string]interface{}{
		"equipmentId": "EQ1",
		"status":      "error",
		"load":        42.5,
		"count":       float64(7),
		"textNumber":  "15",
		"notNumber":   "abc",
		"nothing":     nil,
		"tags":        []interface{}{"crane", "north"},
		"location": map[string]interface{}{
			"berth": "B2",
			"zone":  map[string]interface{}{"id": float64(3)},
		},
		"readings": []interface{}{
			map[string]interface{}{"value": float64(1)},
			map[string]interface{}{"value": float64(2)},
		},
	}
}

func TestOperators(t *testing.T) {
	payload := samplePayload()

	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq string", Predicate{Field: "status", Operator: OpEq, Value: "error"}, true},
		{"eq mismatch", Predicate{Field: "status", Operator: OpEq, Value: "ok"}, false},
		{"eq int vs float", Predicate{Field: "count", Operator: OpEq, Value: 7}, true},
		{"eq numeric string", Predicate{Field: "textNumber", Operator: OpEq, Value: 15}, true},
		{"ne", Predicate{Field: "status", Operator: OpNe, Value: "ok"}, true},
		{"ne absent is false", Predicate{Field: "missing", Operator: OpNe, Value: "ok"}, false},
		{"gt", Predicate{Field: "load", Operator: OpGt, Value: 40}, true},
		{"gte equal", Predicate{Field: "count", Operator: OpGte, Value: 7}, true},
		{"lt", Predicate{Field: "load", Operator: OpLt, Value: 40}, false},
		{"lte", Predicate{Field: "count", Operator: OpLte, Value: "7"}, true},
		{"gt coerces string field", Predicate{Field: "textNumber", Operator: OpGt, Value: 10}, true},
		{"gt failed coercion", Predicate{Field: "notNumber", Operator: OpGt, Value: 10}, false},
		{"gt absent", Predicate{Field: "data.value", Operator: OpGt, Value: 10}, false},
		{"between inclusive", Predicate{Field: "count", Operator: OpBetween, Value: []interface{}{7, 10}}, true},
		{"between outside", Predicate{Field: "load", Operator: OpBetween, Value: []interface{}{0, 10}}, false},
		{"between malformed", Predicate{Field: "load", Operator: OpBetween, Value: []interface{}{0}}, false},
		{"in", Predicate{Field: "status", Operator: OpIn, Value: []interface{}{"error", "warning"}}, true},
		{"in typed slice", Predicate{Field: "status", Operator: OpIn, Value: []string{"ok"}}, false},
		{"not_in", Predicate{Field: "status", Operator: OpNotIn, Value: []interface{}{"ok"}}, true},
		{"not_in absent", Predicate{Field: "missing", Operator: OpNotIn, Value: []interface{}{"ok"}}, false},
		{"contains substring", Predicate{Field: "equipmentId", Operator: OpContains, Value: "Q1"}, true},
		{"contains array", Predicate{Field: "tags", Operator: OpContains, Value: "north"}, true},
		{"contains array miss", Predicate{Field: "tags", Operator: OpContains, Value: "south"}, false},
		{"starts_with", Predicate{Field: "equipmentId", Operator: OpStartsWith, Value: "EQ"}, true},
		{"ends_with", Predicate{Field: "equipmentId", Operator: OpEndsWith, Value: "2"}, false},
		{"is_null explicit", Predicate{Field: "nothing", Operator: OpIsNull}, true},
		{"is_null absent", Predicate{Field: "missing", Operator: OpIsNull}, true},
		{"is_null present", Predicate{Field: "status", Operator: OpIsNull}, false},
		{"is_not_null present", Predicate{Field: "status", Operator: OpIsNotNull}, true},
		{"is_not_null absent", Predicate{Field: "missing", Operator: OpIsNotNull}, false},
		{"is_not_null explicit null", Predicate{Field: "nothing", Operator: OpIsNotNull}, false},
		{"regex", Predicate{Field: "equipmentId", Operator: OpRegex, Value: "^EQ[0-9]+$"}, true},
		{"regex number", Predicate{Field: "count", Operator: OpRegex, Value: "^7$"}, true},
		{"regex invalid pattern", Predicate{Field: "equipmentId", Operator: OpRegex, Value: "("}, false},
		{"nested path", Predicate{Field: "location.zone.id", Operator: OpEq, Value: 3}, true},
		{"array index path", Predicate{Field: "readings.1.value", Operator: OpEq, Value: 2}, true},
		{"array index out of range", Predicate{Field: "readings.5.value", Operator: OpIsNull}, true},
		{"unknown operator", Predicate{Field: "status", Operator: "like", Value: "e"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(payload, []Predicate{tt.pred}))
		})
	}
}

func TestLeftToRightCombination(t *testing.T) {
	payload := map[string]interface{}{"a": float64(1), "b": float64(2)}

	isA1 := Predicate{Field: "a", Operator: OpEq, Value: 1}
	isA2 := Predicate{Field: "a", Operator: OpEq, Value: 2}
	isB2 := Predicate{Field: "b", Operator: OpEq, Value: 2}
	isB3 := Predicate{Field: "b", Operator: OpEq, Value: 3}

	or := func(p Predicate) Predicate {
		p.LogicalOperator = LogicalOr
		return p
	}

	assert.True(t, Evaluate(payload, nil))
	assert.True(t, Evaluate(payload, []Predicate{isA1, isB2}))
	assert.False(t, Evaluate(payload, []Predicate{isA1, isB3}))
	assert.True(t, Evaluate(payload, []Predicate{isA2, or(isB2)}))

	// (false OR true) AND false, not false OR (true AND false) grouped differently
	assert.False(t, Evaluate(payload, []Predicate{isA2, or(isB2), isB3}))
	// (true AND false) OR true
	assert.True(t, Evaluate(payload, []Predicate{isA1, isB3, or(isB2)}))

	lower := or(isB2)
	lower.LogicalOperator = "or"
	assert.True(t, Evaluate(payload, []Predicate{isA2, lower}))
}

func TestRegexCachedPerSet(t *testing.T) {
	set := NewSet([]Predicate{{Field: "id", Operator: OpRegex, Value: "^x-\\d+$"}})

	assert.True(t, set.Evaluate(map[string]interface{}{"id": "x-12"}))
	first := set.predicates[0].re
	require.NotNil(t, first)

	assert.False(t, set.Evaluate(map[string]interface{}{"id": "y-12"}))
	assert.Same(t, first, set.predicates[0].re)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		preds     []Predicate
		wantError bool
	}{
		{name: "empty", preds: nil},
		{name: "valid", preds: []Predicate{{Field: "status", Operator: OpEq, Value: "x"}, {Field: "n", Operator: OpGt, Value: 1, LogicalOperator: LogicalOr}}},
		{name: "missing field", preds: []Predicate{{Operator: OpEq}}, wantError: true},
		{name: "unknown operator", preds: []Predicate{{Field: "a", Operator: "like"}}, wantError: true},
		{name: "bad logical", preds: []Predicate{{Field: "a", Operator: OpEq, LogicalOperator: "XOR"}}, wantError: true},
		{name: "between scalar", preds: []Predicate{{Field: "a", Operator: OpBetween, Value: 3}}, wantError: true},
		{name: "in scalar", preds: []Predicate{{Field: "a", Operator: OpIn, Value: "x"}}, wantError: true},
		{name: "regex non string", preds: []Predicate{{Field: "a", Operator: OpRegex, Value: 3}}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.preds)
			if tt.wantError {
				assert.True(t, errors.IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	v, ok := Lookup(samplePayload(), "location.berth")
	assert.True(t, ok)
	assert.Equal(t, "B2", v)

	v, ok = Lookup(samplePayload(), "nothing")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = Lookup(samplePayload(), "status.deeper")
	assert.False(t, ok)
}
