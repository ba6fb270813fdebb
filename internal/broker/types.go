package broker

import (
	"context"

	"eventhub/pkg/models"
)

// Producer writes JSON-encoded values to a broker topic.
type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, event models.Event) error

// DeadLetter is written to the DLQ topic when an ingested event keeps failing.
type DeadLetter struct {
	Event       models.Event `json:"event"`
	Reason      string       `json:"reason"`
	SourceTopic string       `json:"source_topic"`
	FailedAt    string       `json:"failed_at"`
}
