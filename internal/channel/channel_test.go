package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/connection"
	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type nopTransport struct{}

func (nopTransport) WriteFrame([]byte) error { return nil }
func (nopTransport) Ping() error             { return nil }
func (nopTransport) Close() error            { return nil }

func testEvent() models.Event {
	return models.NewEventBuilder().
		WithID("evt-1").
		WithType("alarm").
		WithTopic("equipment.crane-1.alarm").
		Build()
}

func TestDeliverer_Transport(t *testing.T) {
	reg := connection.NewRegistry(config.ConnectionConfig{OutboundBufferSize: 1}, logger.NopLogger())
	conn := connection.NewConnection(connection.Options{ID: "c1", OwnerID: "o1", SessionID: "s1", BufferSize: 1}, nopTransport{})
	require.NoError(t, reg.Register(conn))

	d := NewFromConfig(config.ChannelsConfig{}, config.CircuitBreakerConfig{}, reg, logger.NopLogger())

	err := d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Transport, Target: "c1", SubscriptionID: "sub-1"})
	require.NoError(t, err)

	err = d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Transport, Target: "c1"})
	assert.ErrorIs(t, err, connection.ErrBackpressure)

	err = d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Transport, Target: "missing"})
	assert.True(t, errors.IsNotFound(err))
}

func TestDeliverer_UnknownChannel(t *testing.T) {
	d := NewDeliverer(logger.NopLogger())

	err := d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: "pigeon"})
	assert.True(t, errors.IsValidation(err))

	err = d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Email})
	assert.True(t, errors.IsDeliveryFailure(err))
}

func TestWebhookChannel(t *testing.T) {
	var received atomic.Int32
	var lastBody Delivery
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		received.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	d := NewFromConfig(config.ChannelsConfig{
		Webhooks: map[string]string{"email": server.URL},
		Timeout:  time.Second,
	}, config.CircuitBreakerConfig{Enabled: true}, nil, logger.NopLogger())

	err := d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Email, Target: "ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "ops@example.com", lastBody.Target)
	assert.Equal(t, "evt-1", lastBody.Event.ID)

	// sms has no webhook, so it is logged only
	require.NoError(t, d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: SMS, Target: "+100"}))
	assert.Equal(t, int32(1), received.Load())
}

func TestWebhookChannel_FailureOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := NewWebhookChannel(Push, server.URL, time.Second, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})
	d := NewDeliverer(logger.NopLogger(), ch)

	for i := 0; i < 4; i++ {
		err := d.Deliver(context.Background(), Delivery{Event: testEvent(), Channel: Push})
		assert.True(t, errors.IsDeliveryFailure(err))
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.True(t, ch.breaker.IsOpen())
}
