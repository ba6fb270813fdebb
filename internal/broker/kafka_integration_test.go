//go:build integration

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/internal/testinfra"
	"eventhub/pkg/models"
)

func TestKafkaRoundTrip(t *testing.T) {
	brokers := testinfra.Kafka(t)
	cfg := config.KafkaConfig{Brokers: brokers, GroupID: "eventhub-it"}

	producer := NewKafkaProducer(cfg, logger.NopLogger())
	defer producer.Close()

	event := models.NewEventBuilder().
		WithID("evt-it-1").
		WithType("equipment.status").
		WithTopic("terminal.equipment.status").
		WithField("status", "error").
		Build()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.Eventually(t, func() bool {
		return producer.Publish(ctx, "hub.events.it", event.ID, event) == nil
	}, 30*time.Second, time.Second)

	consumer := NewKafkaConsumer(cfg, logger.NopLogger())
	received := make(chan models.Event, 1)

	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = consumer.Consume(consumeCtx, "hub.events.it", func(ctx context.Context, e models.Event) error {
			select {
			case received <- e:
			default:
			}
			return nil
		})
	}()

	select {
	case got := <-received:
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, "error", got.Payload["status"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}

	stop()
	assert.NoError(t, consumer.Close())
}
