package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey        = "trace_id"
	EventIDKey        = "event_id"
	SubscriptionIDKey = "subscription_id"
	ConnectionIDKey   = "connection_id"
	ServiceNameKey    = "service_name"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, ctxKey(EventIDKey), eventID)
}

func WithSubscriptionID(ctx context.Context, subscriptionID string) context.Context {
	return context.WithValue(ctx, ctxKey(SubscriptionIDKey), subscriptionID)
}

func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, ctxKey(ConnectionIDKey), connectionID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}




func GetConnectionID(ctx context.Context) string {
	return getString(ctx, ConnectionIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func getString(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

// GetLogFields returns the key/value pairs stored in ctx in a stable order.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	for _, key := range []string{TraceIDKey, EventIDKey, SubscriptionIDKey, ConnectionIDKey, ServiceNameKey} {
		if v := getString(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}

	return fields
}
