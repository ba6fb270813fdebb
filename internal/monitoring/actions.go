package monitoring

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"eventhub/internal/broker"
	"eventhub/internal/channel"
	"eventhub/internal/constants"
	"eventhub/internal/logger"
	"eventhub/internal/notify"
	"eventhub/pkg/models"
)

// Publisher feeds alert events back into the hub.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) (models.Event, error)
}

// Deliverer sends alert events to external notification channels.
type Deliverer interface {
	Deliver(ctx context.Context, d channel.Delivery) error
}

func actionsOf(e models.AlertEvent, actionType string) []models.AlertAction {
	var out []models.AlertAction
	for _, a := range e.Actions {
		if a.Type == actionType {
			out = append(out, a)
		}
	}
	return out
}

// AlertTopic is the hub topic alert events are published on.
func AlertTopic(severity string) string {
	return constants.AlertTopicPrefix + "." + severity
}

var severityPriority = map[string]models.Priority{
	SeverityCritical: models.PriorityCritical,
	SeverityError:    models.PriorityHigh,
	SeverityWarning:  models.PriorityNormal,
	SeverityInfo:     models.PriorityLow,
}

// AlertToEvent renders an alert transition as a hub event.
func AlertToEvent(e models.AlertEvent) models.Event {
	priority, ok := severityPriority[e.Severity]
	if !ok {
		priority = models.PriorityNormal
	}

	return models.NewEventBuilder().
		WithID(uuid.New().String()).
		WithType("alert." + e.Kind).
		WithTopic(AlertTopic(e.Severity)).
		WithTimestamp(e.Timestamp).
		WithSource(models.Source{Type: "system", ID: "monitoring", Name: constants.ServiceName}).
		WithPayload(map[string]interface{}{
			"kind":        e.Kind,
			"ruleId":      e.RuleID,
			"ruleName":    e.RuleName,
			"severity":    e.Severity,
			"metricPath":  e.MetricPath,
			"operator":    e.Operator,
			"threshold":   e.Threshold,
			"value":       e.Value,
			"since":       e.Since,
			"description": e.Description,
		}).
		WithMetadata(models.Metadata{
			Priority: priority,
			Category: models.CategoryAlert,
			Tags:     []string{e.Kind, e.Severity},
		}).
		Build()
}

// LogSink logs transitions of rules with a log action, or with no actions.
func LogSink(log logger.Logger) notify.Sink[models.AlertEvent] {
	return notify.SinkFunc("log", func(ctx context.Context, e models.AlertEvent) error {
		if len(e.Actions) > 0 && len(actionsOf(e, ActionLog)) == 0 {
			return nil
		}
		fields := []interface{}{
			"kind", e.Kind,
			"rule_id", e.RuleID,
			"rule_name", e.RuleName,
			"severity", e.Severity,
			"metric_path", e.MetricPath,
			"value", e.Value,
			"threshold", e.Threshold,
		}
		if e.Kind == models.AlertKindResolved {
			log.Infow("Alert resolved", fields...)
			return nil
		}
		log.Warnw("Alert "+e.Kind, fields...)
		return nil
	})
}

// PublishSink publishes alert events into the hub on system.alerts.<severity>.
func PublishSink(publisher Publisher) notify.Sink[models.AlertEvent] {
	return notify.SinkFunc("publish", func(ctx context.Context, e models.AlertEvent) error {
		if publisher == nil || len(actionsOf(e, ActionPublish)) == 0 {
			return nil
		}
		if _, err := publisher.Publish(ctx, AlertToEvent(e)); err != nil {
			return fmt.Errorf("failed to publish alert event: %w", err)
		}
		return nil
	})
}

// KafkaSink writes alert events to the alert topic, keyed by rule.
func KafkaSink(producer broker.Producer, topic string) notify.Sink[models.AlertEvent] {
	return notify.SinkFunc("kafka", func(ctx context.Context, e models.AlertEvent) error {
		if producer == nil || topic == "" || len(actionsOf(e, ActionKafka)) == 0 {
			return nil
		}
		if err := producer.Publish(ctx, topic, e.RuleID, e); err != nil {
			return fmt.Errorf("failed to write alert event: %w", err)
		}
		return nil
	})
}

// ChannelSink delivers alert events to every channel action of the rule.
func ChannelSink(deliverer Deliverer) notify.Sink[models.AlertEvent] {
	return notify.SinkFunc("channel", func(ctx context.Context, e models.AlertEvent) error {
		actions := actionsOf(e, ActionChannel)
		if deliverer == nil || len(actions) == 0 {
			return nil
		}
		event := AlertToEvent(e)
		var firstErr error
		for _, a := range actions {
			err := deliverer.Deliver(ctx, channel.Delivery{
				Event:   event,
				Channel: channel.Name(a.Channel),
				Target:  a.Target,
			})
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to deliver alert to %s: %w", a.Channel, err)
			}
		}
		return firstErr
	})
}
