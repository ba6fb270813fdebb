package models

import (
	"strings"
	"time"
)

// Event is the unit of distribution. Payload is passed through untouched;
// only the envelope fields are interpreted by the hub.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Topic     string                 `json:"topic"`
	Timestamp time.Time              `json:"timestamp"`
	Source    Source                 `json:"source"`
	Payload   map[string]interface{} `json:"data"`
	Metadata  Metadata               `json:"metadata"`
}

type Source struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
}

type Metadata struct {
	Priority      Priority `json:"priority"`
	Category      Category `json:"category"`
	Tags          []string `json:"tags,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	CausationID   string   `json:"causationId,omitempty"`
	Version       string   `json:"version,omitempty"`
	TraceID       string   `json:"traceId,omitempty"`
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Weight maps a priority onto the queue ordering scale.
func (p Priority) Weight() int {
	switch p {
	case PriorityCritical:
		return 10
	case PriorityHigh:
		return 7
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type Category string

const (
	CategoryEquipment   Category = "equipment"
	CategoryOrder       Category = "order"
	CategoryMaintenance Category = "maintenance"
	CategoryVessel      Category = "vessel"
	CategorySystem      Category = "system"
	CategoryAlert       Category = "alert"
	CategoryCustom      Category = "custom"
)

var knownCategories = map[string]Category{
	"equipment":   CategoryEquipment,
	"order":       CategoryOrder,
	"orders":      CategoryOrder,
	"maintenance": CategoryMaintenance,
	"vessel":      CategoryVessel,
	"vessels":     CategoryVessel,
	"system":      CategorySystem,
	"alert":       CategoryAlert,
	"alerts":      CategoryAlert,
}

// CategoryForTopic picks the category from the first topic segment that names
// a known category, falling back to custom.
func CategoryForTopic(topic string) Category {
	for _, segment := range strings.Split(topic, ".") {
		if c, ok := knownCategories[strings.ToLower(segment)]; ok {
			return c
		}
	}
	return CategoryCustom
}

// Normalize fills the defaults every published event carries.
func (e *Event) Normalize(now time.Time, newID func() string) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if !e.Metadata.Priority.Valid() {
		e.Metadata.Priority = PriorityNormal
	}
	if e.Metadata.Category == "" {
		e.Metadata.Category = CategoryForTopic(e.Topic)
	}
	if e.Payload == nil {
		e.Payload = make(map[string]interface{})
	}
}

// Clone returns a copy whose payload can be modified without touching e.
func (e Event) Clone() Event {
	c := e
	c.Payload = deepCopyMap(e.Payload)
	if e.Metadata.Tags != nil {
		c.Metadata.Tags = append([]string(nil), e.Metadata.Tags...)
	}
	return c
}

// AsMap exposes the envelope and payload as a generic document, used for
// dedup keys and CEL evaluation.
func (e Event) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"id":        e.ID,
		"type":      e.Type,
		"topic":     e.Topic,
		"timestamp": e.Timestamp,
		"source": map[string]interface{}{
			"type":     e.Source.Type,
			"id":       e.Source.ID,
			"name":     e.Source.Name,
			"location": e.Source.Location,
		},
		"data": e.Payload,
		"metadata": map[string]interface{}{
			"priority":      string(e.Metadata.Priority),
			"category":      string(e.Metadata.Category),
			"tags":          e.Metadata.Tags,
			"correlationId": e.Metadata.CorrelationID,
			"causationId":   e.Metadata.CausationID,
			"version":       e.Metadata.Version,
		},
	}
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
