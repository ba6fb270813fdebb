package subscription

import (
	"fmt"

	"eventhub/internal/filter"
)

var queueTypes = map[string]bool{
	"fifo": true, "priority": true, "broadcast": true, "topic": true, "fanout": true,
}

var transformTypes = map[TransformType]bool{
	TransformMap: true, TransformFilter: true, TransformReduce: true, TransformSort: true, TransformGroup: true,
}

func (s *Store) validateConfig(cfg Config) error {
	if cfg.BufferSize < 0 {
		return invalid("config.bufferSize", "must not be negative")
	}
	if cfg.RefreshInterval < 0 {
		return invalid("config.refreshInterval", "must not be negative")
	}

	if t := cfg.Throttle; t != nil {
		switch t.Strategy {
		case ThrottleDrop, ThrottleBuffer, ThrottleDebounce:
		default:
			return invalid("config.throttle.strategy", fmt.Sprintf("unknown strategy %q (valid: drop, buffer, debounce)", t.Strategy))
		}
		if t.MaxUpdatesPerSecond <= 0 && !(t.Strategy == ThrottleDebounce && t.DebounceMs > 0) {
			return invalid("config.throttle.maxUpdatesPerSecond", "must be greater than 0")
		}
		if t.BufferSize < 0 || t.DebounceMs < 0 {
			return invalid("config.throttle", "bufferSize and debounceMs must not be negative")
		}
	}

	if a := cfg.Aggregation; a != nil {
		if a.WindowMs <= 0 {
			return invalid("config.aggregation.windowMs", "must be greater than 0")
		}
		if len(a.Fields) == 0 {
			return invalid("config.aggregation.fields", "at least one field is required")
		}
		for field, fn := range a.Fields {
			if !fn.Valid() {
				return invalid("config.aggregation.fields."+field, fmt.Sprintf("unknown function %q", fn))
			}
		}
	}

	for i, t := range cfg.Transforms {
		if err := s.validateTransform(i, t); err != nil {
			return err
		}
	}

	if p := cfg.Persistence; p != nil && p.Enabled {
		if p.QueueType != "" && !queueTypes[p.QueueType] {
			return invalid("config.persistence.queueType", fmt.Sprintf("unknown queue type %q", p.QueueType))
		}
		if p.MaxSize < 0 || p.TTLSeconds < 0 || p.MaxAttempts < 0 {
			return invalid("config.persistence", "maxSize, ttlSeconds and maxAttempts must not be negative")
		}
		if p.Dedup != nil && p.Dedup.WindowSeconds <= 0 {
			return invalid("config.persistence.dedup.windowSeconds", "must be greater than 0")
		}
	}
	return nil
}

func (s *Store) validateTransform(i int, t Transform) error {
	field := fmt.Sprintf("config.transforms[%d]", i)
	if !transformTypes[t.Type] {
		return invalid(field+".type", fmt.Sprintf("unknown transform %q", t.Type))
	}

	switch t.Type {
	case TransformMap:
		if t.Expression != "" {
			if t.Target == "" {
				return invalid(field+".target", "expression requires a target field")
			}
			if err := s.evaluator.ValidateExpression(t.Expression); err != nil {
				return invalid(field+".expression", err.Error())
			}
		}
	case TransformFilter:
		if err := filter.Validate(t.Filters); err != nil {
			return err
		}
		if t.Expression != "" {
			if err := s.evaluator.ValidateFilterExpression(t.Expression); err != nil {
				return invalid(field+".expression", err.Error())
			}
		}
	case TransformReduce:
		if t.Field == "" || t.Target == "" {
			return invalid(field, "reduce requires field and target")
		}
		if !t.Reducer.Valid() {
			return invalid(field+".reducer", fmt.Sprintf("unknown reducer %q", t.Reducer))
		}
	case TransformSort:
		if t.Field == "" {
			return invalid(field+".field", "sort requires an array field")
		}
		if t.Order != "" && t.Order != "asc" && t.Order != "desc" {
			return invalid(field+".order", "order must be asc or desc")
		}
	case TransformGroup:
		if t.Field == "" || t.Key == "" {
			return invalid(field, "group requires field and key")
		}
	}
	return nil
}
