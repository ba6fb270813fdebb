package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"eventhub/pkg/models"
)

// Evaluator compiles CEL expressions over an event. Expressions see the
// variables id, event_type, topic, timestamp, source, data and metadata.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("topic", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
		cel.Variable("source", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.CompileFilter(expression)
	return err
}

// CompileFilter compiles an expression that must evaluate to bool.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return program, nil
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, event models.Event) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return EvaluateProgram(ctx, program, event)
}

// EvaluateProgram runs a compiled filter program against event.
func EvaluateProgram(ctx context.Context, program cel.Program, event models.Event) (bool, error) {
	value, err := EvaluateValue(ctx, program, event)
	if err != nil {
		return false, err
	}

	boolVal, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", value)
	}

	return boolVal, nil
}

// EvaluateValue runs a compiled program and returns its native result.
func EvaluateValue(ctx context.Context, program cel.Program, event models.Event) (interface{}, error) {
	result, _, err := program.ContextEval(ctx, activation(event))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}
	return result.Value(), nil
}

func activation(event models.Event) map[string]interface{} {
	doc := event.AsMap()
	data := event.Payload
	if data == nil {
		data = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":         event.ID,
		"event_type": event.Type,
		"topic":      event.Topic,
		"timestamp":  event.Timestamp,
		"source":     doc["source"],
		"data":       data,
		"metadata":   doc["metadata"],
	}
}
