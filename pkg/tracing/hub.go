package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"eventhub/pkg/models"
)

func StartPublishSpan(ctx context.Context, event models.Event) (context.Context, trace.Span) {
	return GetTracer("eventhub-dispatcher").Start(ctx, "hub.publish",
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.type", event.Type),
			attribute.String("event.topic", event.Topic),
			attribute.String("event.priority", string(event.Metadata.Priority)),
		),
	)
}
