package models

import "time"

type EventBuilder struct {
	event *Event
}

func NewEventBuilder() *EventBuilder {
	return &EventBuilder{
		event: &Event{
			Payload:  make(map[string]interface{}),
			Metadata: Metadata{Priority: PriorityNormal},
		},
	}
}

func (b *EventBuilder) WithID(id string) *EventBuilder {
	b.event.ID = id
	return b
}

func (b *EventBuilder) WithType(eventType string) *EventBuilder {
	b.event.Type = eventType
	return b
}

func (b *EventBuilder) WithTopic(topic string) *EventBuilder {
	b.event.Topic = topic
	return b
}

func (b *EventBuilder) WithSource(source Source) *EventBuilder {
	b.event.Source = source
	return b
}

func (b *EventBuilder) WithTimestamp(timestamp time.Time) *EventBuilder {
	b.event.Timestamp = timestamp
	return b
}

func (b *EventBuilder) WithPayload(payload map[string]interface{}) *EventBuilder {
	b.event.Payload = payload
	return b
}

func (b *EventBuilder) WithField(name string, value interface{}) *EventBuilder {
	b.event.SetPayloadField(name, value)
	return b
}

func (b *EventBuilder) WithPriority(priority Priority) *EventBuilder {
	b.event.Metadata.Priority = priority
	return b
}

func (b *EventBuilder) WithMetadata(metadata Metadata) *EventBuilder {
	b.event.Metadata = metadata
	return b
}


func (b *EventBuilder) Build() Event {
	if b.event.Timestamp.IsZero() {
		b.event.Timestamp = time.Now()
	}
	return *b.event
}
