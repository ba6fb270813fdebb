package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/pkg/models"
)

func testEvent() models.Event {
	return models.Event{
		ID:        "evt-1",
		Type:      "equipment.status",
		Topic:     "terminal.equipment.status",
		Timestamp: time.Now(),
		Source:    models.Source{Type: "service", ID: "equipment-svc"},
		Payload: map[string]interface{}{
			"equipmentId": "EQ1",
			"status":      "error",
			"load":        87.5,
			"operator":    "ops@example.com",
		},
		Metadata: models.Metadata{Priority: models.PriorityHigh, Category: models.CategoryEquipment},
	}
}

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name:      "valid simple expression",
			expr:      `data.status == "error"`,
			wantError: false,
		},
		{
			name:      "valid numeric comparison",
			expr:      `data.load > 50.0`,
			wantError: false,
		},
		{
			name:      "envelope field",
			expr:      `topic.startsWith("terminal.")`,
			wantError: false,
		},
		{
			name:      "event type",
			expr:      `event_type == "equipment.status"`,
			wantError: false,
		},
		{
			name:      "invalid expression",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload.status == "test"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilterExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	assert.NoError(t, eval.ValidateFilterExpression(`data.status == "error"`))
	assert.NoError(t, eval.ValidateFilterExpression(`metadata.priority in ["high", "critical"]`))
	assert.Error(t, eval.ValidateFilterExpression(`data.load`))
	assert.Error(t, eval.ValidateFilterExpression(`id + 1`))
}

func TestEvaluateFilter(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	ctx := context.Background()
	event := testEvent()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"equality true", `data.status == "error"`, true},
		{"equality false", `data.status == "ok"`, false},
		{"numeric comparison", `data.load > 80.0`, true},
		{"contains", `data.operator.contains("@example.com")`, true},
		{"metadata priority", `metadata.priority == "high"`, true},
		{"source id", `source.id == "equipment-svc"`, true},
		{"event type", `event_type.startsWith("equipment.")`, true},
		{"missing key guarded", `has(data.missing) && data.missing == 1`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eval.EvaluateFilter(ctx, tt.expr, event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result)
		})
	}
}

func TestEvaluateProgramMissingKeyErrors(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	program, err := eval.CompileFilter(`data.missing == 1`)
	require.NoError(t, err)

	_, err = EvaluateProgram(context.Background(), program, testEvent())
	assert.Error(t, err)
}

func TestEvaluateValue(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"string concatenation", `data.equipmentId + ":" + data.status`, "EQ1:error"},
		{"math", `data.load * 2.0`, 175.0},
		{"conditional", `data.status == "error" ? "red" : "green"`, "red"},
		{"size", `data.equipmentId.size()`, int64(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program, err := eval.CompileExpression(tt.expr)
			require.NoError(t, err)

			got, err := EvaluateValue(context.Background(), program, testEvent())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
