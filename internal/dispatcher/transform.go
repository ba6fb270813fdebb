package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	celgo "github.com/google/cel-go/cel"

	"eventhub/internal/filter"
	"eventhub/internal/subscription"
	"eventhub/pkg/cel"
	"eventhub/pkg/models"
)

// transformer is one compiled transform step. keep == false drops the event
// without counting an error.
type transformer func(ctx context.Context, event models.Event) (out models.Event, keep bool, err error)

func compileTransforms(evaluator *cel.Evaluator, transforms []subscription.Transform) ([]transformer, error) {
	steps := make([]transformer, 0, len(transforms))
	for i, t := range transforms {
		step, err := compileTransform(evaluator, t)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i, t.Type, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func compileTransform(evaluator *cel.Evaluator, t subscription.Transform) (transformer, error) {
	switch t.Type {
	case subscription.TransformMap:
		var program celgo.Program
		if t.Expression != "" {
			p, err := evaluator.CompileExpression(t.Expression)
			if err != nil {
				return nil, err
			}
			program = p
		}
		return mapTransform(t, program), nil

	case subscription.TransformFilter:
		set := filter.NewSet(t.Filters)
		var program celgo.Program
		if t.Expression != "" {
			p, err := evaluator.CompileFilter(t.Expression)
			if err != nil {
				return nil, err
			}
			program = p
		}
		return func(ctx context.Context, e models.Event) (models.Event, bool, error) {
			if !set.Evaluate(e.Payload) {
				return e, false, nil
			}
			if program != nil {
				ok, err := cel.EvaluateProgram(ctx, program, e)
				if err != nil {
					return e, false, err
				}
				return e, ok, nil
			}
			return e, true, nil
		}, nil

	case subscription.TransformReduce:
		return reduceTransform(t), nil
	case subscription.TransformSort:
		return sortTransform(t), nil
	case subscription.TransformGroup:
		return groupTransform(t), nil
	}
	return nil, fmt.Errorf("unknown transform type %q", t.Type)
}

// mapTransform renames fields (Mapping is target -> source), then writes the
// expression result to Target, then applies Set and Remove.
func mapTransform(t subscription.Transform, program celgo.Program) transformer {
	return func(ctx context.Context, e models.Event) (models.Event, bool, error) {
		targets := make([]string, 0, len(t.Mapping))
		for target := range t.Mapping {
			targets = append(targets, target)
		}
		sort.Strings(targets)

		values := make(map[string]interface{}, len(targets))
		for _, target := range targets {
			if v, ok := filter.Lookup(e.Payload, t.Mapping[target]); ok {
				values[target] = v
			}
		}
		for _, target := range targets {
			source := t.Mapping[target]
			if _, stillTarget := t.Mapping[source]; !stillTarget && source != target {
				deletePath(e.Payload, source)
			}
		}
		for _, target := range targets {
			if v, ok := values[target]; ok {
				setPath(e.Payload, target, v)
			}
		}

		if program != nil {
			v, err := cel.EvaluateValue(ctx, program, e)
			if err != nil {
				return e, false, err
			}
			target := t.Target
			if target == "" {
				target = "result"
			}
			setPath(e.Payload, target, v)
		}

		keys := make([]string, 0, len(t.Set))
		for k := range t.Set {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			setPath(e.Payload, k, t.Set[k])
		}
		for _, k := range t.Remove {
			deletePath(e.Payload, k)
		}
		return e, true, nil
	}
}

func reduceTransform(t subscription.Transform) transformer {
	return func(_ context.Context, e models.Event) (models.Event, bool, error) {
		items, err := arrayField(e, t.Field)
		if err != nil {
			return e, false, err
		}
		acc := newAccumulator(t.Reducer)
		for _, item := range items {
			v := item
			if t.Key != "" {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				found, ok := filter.Lookup(obj, t.Key)
				if !ok {
					continue
				}
				v = found
			}
			acc.add(v)
		}
		target := t.Target
		if target == "" {
			target = t.Field + "_" + string(t.Reducer)
		}
		setPath(e.Payload, target, acc.result())
		return e, true, nil
	}
}

func sortTransform(t subscription.Transform) transformer {
	desc := strings.EqualFold(t.Order, "desc")
	return func(_ context.Context, e models.Event) (models.Event, bool, error) {
		items, err := arrayField(e, t.Field)
		if err != nil {
			return e, false, err
		}
		sorted := append([]interface{}(nil), items...)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sortKey(sorted[i], t.Key), sortKey(sorted[j], t.Key)
			if desc {
				return lessValue(b, a)
			}
			return lessValue(a, b)
		})
		target := t.Target
		if target == "" {
			target = t.Field
		}
		setPath(e.Payload, target, sorted)
		return e, true, nil
	}
}

func groupTransform(t subscription.Transform) transformer {
	return func(_ context.Context, e models.Event) (models.Event, bool, error) {
		items, err := arrayField(e, t.Field)
		if err != nil {
			return e, false, err
		}
		groups := make(map[string]interface{})
		for _, item := range items {
			key := fmt.Sprint(sortKey(item, t.Key))
			list, _ := groups[key].([]interface{})
			groups[key] = append(list, item)
		}
		target := t.Target
		if target == "" {
			target = t.Field
		}
		setPath(e.Payload, target, groups)
		return e, true, nil
	}
}

func arrayField(e models.Event, field string) ([]interface{}, error) {
	v, ok := filter.Lookup(e.Payload, field)
	if !ok {
		return nil, fmt.Errorf("field %q not found", field)
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q is not an array", field)
	}
	return items, nil
}

func sortKey(item interface{}, key string) interface{} {
	if key == "" {
		return item
	}
	obj, ok := item.(map[string]interface{})
	if !ok {
		return nil
	}
	v, _ := filter.Lookup(obj, key)
	return v
}

// lessValue orders numbers before strings before everything else.
func lessValue(a, b interface{}) bool {
	an, aNum := filter.ToNumber(a)
	bn, bNum := filter.ToNumber(b)
	if _, isStr := a.(string); isStr {
		aNum = false
	}
	if _, isStr := b.(string); isStr {
		bNum = false
	}
	switch {
	case aNum && bNum:
		return an < bn
	case aNum != bNum:
		return aNum
	}
	as, aStr := a.(string)
	bs, bStr := b.(string)
	switch {
	case aStr && bStr:
		return as < bs
	case aStr != bStr:
		return aStr
	}
	return false
}

func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func deletePath(doc map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
