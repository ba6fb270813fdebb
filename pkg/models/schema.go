package models

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateEvent checks the envelope fields a producer must supply.
func ValidateEvent(e *Event) error {
	if e == nil {
		return &ValidationError{
			Field:   "event",
			Message: "event cannot be nil",
		}
	}

	if strings.TrimSpace(e.Type) == "" {
		return &ValidationError{
			Field:   "type",
			Message: "event type is required",
		}
	}

	if strings.TrimSpace(e.Topic) == "" {
		return &ValidationError{
			Field:   "topic",
			Message: "event topic is required",
		}
	}

	if e.Metadata.Priority != "" && !e.Metadata.Priority.Valid() {
		return &ValidationError{
			Field:   "metadata.priority",
			Message: fmt.Sprintf("unknown priority %q (valid: critical, high, normal, low)", e.Metadata.Priority),
		}
	}

	return nil
}


func (e *Event) SetPayloadField(name string, value interface{}) {
	if e.Payload == nil {
		e.Payload = make(map[string]interface{})
	}

	e.Payload[name] = value
}
