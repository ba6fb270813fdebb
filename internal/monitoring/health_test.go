package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/channel"
	"eventhub/internal/logger"
	"eventhub/pkg/models"
)

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name   string
		snap   Snapshot
		score  float64
		status string
	}{
		{
			name:   "empty hub",
			snap:   Snapshot{},
			score:  100,
			status: HealthHealthy,
		},
		{
			name:   "error rate",
			snap:   Snapshot{ErrorRate: 20},
			score:  60,
			status: HealthDegraded,
		},
		{
			name:   "error rate is capped",
			snap:   Snapshot{ErrorRate: 90},
			score:  60,
			status: HealthDegraded,
		},
		{
			name: "idle connections and hot cpu",
			snap: Snapshot{
				ErrorRate:   25,
				Connections: ConnectionMetrics{Total: 4, Idle: 4},
				Resources:   ResourceMetrics{CPUPercent: 95, MemoryPercent: 80},
			},
			score:  30,
			status: HealthUnhealthy,
		},
		{
			name: "subscription errors and queue failures",
			snap: Snapshot{
				Subscriptions: SubscriptionMetrics{Total: 10, Error: 5},
				Queues:        QueueMetrics{RecentFailures: 3, TotalSize: 1000},
			},
			score:  85,
			status: HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := HealthScore(tt.snap)
			assert.Equal(t, tt.score, h.Score)
			assert.Equal(t, tt.status, h.Status)
			assert.Equal(t, h, HealthScore(tt.snap))
		})
	}
}

func TestRing(t *testing.T) {
	r := NewRing[int](3)
	_, ok := r.Latest()
	assert.False(t, ok)
	assert.Nil(t, r.Last(2))

	for i := 1; i <= 5; i++ {
		r.Add(i)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, r.All())
	assert.Equal(t, []int{4, 5}, r.Last(2))
	assert.Equal(t, []int{3, 4, 5}, r.Last(10))
	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, latest)
}

func TestMetricPaths(t *testing.T) {
	paths := MetricPaths()
	assert.Contains(t, paths, "connections.active")
	assert.Contains(t, paths, "dispatcher.events_per_second")
	assert.True(t, KnownPath("error_rate"))
	assert.False(t, KnownPath("error"))

	paths[0] = "mutated"
	assert.NotEqual(t, "mutated", MetricPaths()[0])
}

type fakeDeliverer struct {
	deliveries []channel.Delivery
	err        error
}

func (f *fakeDeliverer) Deliver(_ context.Context, d channel.Delivery) error {
	f.deliveries = append(f.deliveries, d)
	return f.err
}

type fakePublisher struct {
	events []models.Event
}

func (f *fakePublisher) Publish(_ context.Context, e models.Event) (models.Event, error) {
	f.events = append(f.events, e)
	return e, nil
}

func alertFixture(actions ...models.AlertAction) models.AlertEvent {
	return models.AlertEvent{
		Kind:       models.AlertKindEscalated,
		RuleID:     "rule-1",
		RuleName:   "queue backlog",
		Severity:   SeverityCritical,
		MetricPath: "queues.total_size",
		Operator:   OperatorGT,
		Threshold:  1000,
		Value:      1500,
		Since:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Timestamp:  time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC),
		Actions:    actions,
	}
}

func TestAlertToEvent(t *testing.T) {
	e := AlertToEvent(alertFixture())

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "alert.escalated", e.Type)
	assert.Equal(t, "system.alerts.critical", e.Topic)
	assert.Equal(t, models.PriorityCritical, e.Metadata.Priority)
	assert.Equal(t, models.CategoryAlert, e.Metadata.Category)
	assert.Equal(t, "queues.total_size", e.Payload["metricPath"])
	assert.Equal(t, 1500.0, e.Payload["value"])
	assert.NoError(t, models.ValidateEvent(&e))
}

func TestAlertSinks(t *testing.T) {
	ctx := context.Background()

	t.Run("publish only with publish action", func(t *testing.T) {
		pub := &fakePublisher{}
		sink := PublishSink(pub)

		require.NoError(t, sink.Handle(ctx, alertFixture(models.AlertAction{Type: ActionLog})))
		assert.Empty(t, pub.events)

		require.NoError(t, sink.Handle(ctx, alertFixture(models.AlertAction{Type: ActionPublish})))
		require.Len(t, pub.events, 1)
		assert.Equal(t, "system.alerts.critical", pub.events[0].Topic)
	})

	t.Run("channel delivers every channel action", func(t *testing.T) {
		d := &fakeDeliverer{}
		sink := ChannelSink(d)

		err := sink.Handle(ctx, alertFixture(
			models.AlertAction{Type: ActionChannel, Channel: "email", Target: "ops@example.com"},
			models.AlertAction{Type: ActionChannel, Channel: "sms", Target: "+100"},
			models.AlertAction{Type: ActionPublish},
		))
		require.NoError(t, err)
		require.Len(t, d.deliveries, 2)
		assert.Equal(t, channel.Email, d.deliveries[0].Channel)
		assert.Equal(t, "ops@example.com", d.deliveries[0].Target)
		assert.Equal(t, channel.SMS, d.deliveries[1].Channel)
		assert.Equal(t, "alert.escalated", d.deliveries[1].Event.Type)
	})

	t.Run("channel failure is reported", func(t *testing.T) {
		d := &fakeDeliverer{err: errors.New("smtp down")}
		err := ChannelSink(d).Handle(ctx, alertFixture(
			models.AlertAction{Type: ActionChannel, Channel: "email", Target: "ops@example.com"},
		))
		assert.ErrorContains(t, err, "smtp down")
	})

	t.Run("kafka without producer is a no-op", func(t *testing.T) {
		assert.NoError(t, KafkaSink(nil, "hub.alerts").Handle(ctx, alertFixture(models.AlertAction{Type: ActionKafka})))
	})

	t.Run("log", func(t *testing.T) {
		assert.NoError(t, LogSink(logger.NopLogger()).Handle(ctx, alertFixture()))
	})
}
