package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/connection"
	"eventhub/internal/constants"
	"eventhub/internal/logger"
	"eventhub/internal/monitoring"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type recorder struct {
	mu     sync.Mutex
	frames []connection.Frame
}

func (r *recorder) WriteFrame(data []byte) error {
	f, err := connection.Decode(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Ping() error  { return nil }
func (r *recorder) Close() error { return nil }

func (r *recorder) ofType(frameType string) []connection.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []connection.Frame
	for _, f := range r.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Hub: config.HubConfig{
			SubscriptionLimit:      50,
			NotificationBufferSize: 64,
		},
		Connection: config.ConnectionConfig{
			OutboundBufferSize: 64,
			IdleTimeout:        time.Minute,
		},
		Queue: config.QueueConfig{
			MaxSize:     100,
			TTLSeconds:  3600,
			MaxAttempts: 3,
		},
		Monitoring: config.MonitoringConfig{
			TickInterval:    time.Hour,
			HistoryCapacity: 10,
		},
	}
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h, err := New(testConfig(), Options{}, logger.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { h.Stop() })
	return h
}

type client struct {
	conn *connection.Connection
	rec  *recorder
}

func connect(t *testing.T, h *Hub, owner, session string) (client, connection.Welcome) {
	t.Helper()
	rec := &recorder{}
	c, welcome, err := h.Connect(context.Background(), ConnectRequest{OwnerID: owner, SessionID: session}, rec)
	require.NoError(t, err)
	go c.WritePump(time.Hour)
	return client{conn: c, rec: rec}, welcome
}

func (c client) send(t *testing.T, h *Hub, frame map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, h.HandleFrame(context.Background(), c.conn.ID(), data))
}

func (c client) waitFor(t *testing.T, frameType string, n int) []connection.Frame {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.rec.ofType(frameType)) >= n
	}, time.Second, 5*time.Millisecond, "waiting for %d %s frames", n, frameType)
	return c.rec.ofType(frameType)
}

// flush waits until every frame sent before it has been written.
func (c client) flush(t *testing.T, h *Hub) {
	t.Helper()
	before := len(c.rec.ofType(constants.FrameTypePong))
	c.send(t, h, map[string]interface{}{"type": "ping"})
	c.waitFor(t, constants.FrameTypePong, before+1)
}

func decodeEvent(t *testing.T, f connection.Frame) models.Event {
	t.Helper()
	var e models.Event
	require.NoError(t, json.Unmarshal(f.Data, &e))
	return e
}

func TestEquipmentStatusScenario(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	c, welcome := connect(t, h, "owner-1", "")
	assert.NotEmpty(t, welcome.SessionID)
	c.waitFor(t, constants.FrameTypeWelcome, 1)

	c.send(t, h, map[string]interface{}{
		"type":      "subscribe",
		"requestId": "r1",
		"data": map[string]interface{}{
			"topic":   "terminal.equipment.*",
			"filters": []map[string]interface{}{{"field": "status", "operator": "eq", "value": "error"}},
		},
	})
	acks := c.waitFor(t, constants.FrameTypeAck, 1)
	assert.Equal(t, "r1", acks[0].RequestID)
	subID := acks[0].SubscriptionID
	require.NotEmpty(t, subID)

	_, err := h.Publish(ctx, models.Event{
		Type:    "equipment.status",
		Topic:   "terminal.equipment.status",
		Payload: map[string]interface{}{"equipmentId": "EQ1", "status": "error"},
	})
	require.NoError(t, err)
	_, err = h.Publish(ctx, models.Event{
		Type:    "equipment.status",
		Topic:   "terminal.equipment.status",
		Payload: map[string]interface{}{"equipmentId": "EQ2", "status": "ok"},
	})
	require.NoError(t, err)
	_, err = h.Publish(ctx, models.Event{
		Type:    "equipment.status",
		Topic:   "terminal.equipment.crane01.status",
		Payload: map[string]interface{}{"equipmentId": "EQ3", "status": "error"},
	})
	require.NoError(t, err)

	c.flush(t, h)
	events := c.rec.ofType(constants.FrameTypeEvent)
	require.Len(t, events, 1)
	assert.Equal(t, subID, events[0].SubscriptionID)
	assert.Equal(t, "EQ1", decodeEvent(t, events[0]).Payload["equipmentId"])

	info, err := h.Registry.Get(c.conn.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{"terminal.equipment.*"}, info.SubscribedTopics)
}

func TestControlFrames(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	c, _ := connect(t, h, "owner-1", "session-1")

	c.send(t, h, map[string]interface{}{"type": "ping", "requestId": "p1"})
	pongs := c.waitFor(t, constants.FrameTypePong, 1)
	assert.Equal(t, "p1", pongs[0].RequestID)
	assert.NotEmpty(t, pongs[0].Timestamp)

	c.send(t, h, map[string]interface{}{"type": "subscribe", "requestId": "bad", "data": map[string]interface{}{"topic": "a..b"}})
	errs := c.waitFor(t, constants.FrameTypeError, 1)
	assert.Equal(t, "bad", errs[0].RequestID)
	assert.Equal(t, errors.ErrValidation.Code, errs[0].Code)

	c.send(t, h, map[string]interface{}{"type": "teleport", "requestId": "x"})
	errs = c.waitFor(t, constants.FrameTypeError, 2)
	assert.Equal(t, "UNSUPPORTED_FRAME", errs[1].Code)

	require.NoError(t, h.HandleFrame(ctx, c.conn.ID(), []byte(`{not json`)))
	errs = c.waitFor(t, constants.FrameTypeError, 3)
	assert.Equal(t, "INVALID_FRAME", errs[2].Code)

	assert.True(t, errors.IsNotFound(h.HandleFrame(ctx, "missing", []byte(`{"type":"ping"}`))))
}

func TestSubscribeTwiceOnConnectionReturnsSameSubscription(t *testing.T) {
	h := newTestHub(t)
	c, _ := connect(t, h, "owner-1", "session-1")

	frame := map[string]interface{}{"type": "subscribe", "data": map[string]interface{}{"topic": "orders.*"}}
	c.send(t, h, frame)
	c.send(t, h, frame)

	acks := c.waitFor(t, constants.FrameTypeAck, 2)
	assert.Equal(t, acks[0].SubscriptionID, acks[1].SubscriptionID)
	assert.Equal(t, 1, h.Store.Len())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	c, _ := connect(t, h, "owner-1", "session-1")

	c.send(t, h, map[string]interface{}{"type": "subscribe", "data": map[string]interface{}{"topic": "orders.**"}})
	c.waitFor(t, constants.FrameTypeAck, 1)

	c.send(t, h, map[string]interface{}{"type": "unsubscribe", "requestId": "u1", "data": map[string]interface{}{"topic": "orders.**"}})
	acks := c.waitFor(t, constants.FrameTypeAck, 2)
	assert.Equal(t, "u1", acks[1].RequestID)
	assert.Equal(t, 0, h.Store.Len())

	_, err := h.Publish(ctx, models.Event{Type: "order.created", Topic: "orders.created"})
	require.NoError(t, err)
	c.flush(t, h)
	assert.Empty(t, c.rec.ofType(constants.FrameTypeEvent))

	c.send(t, h, map[string]interface{}{"type": "unsubscribe", "data": map[string]interface{}{"topic": "orders.**"}})
	errs := c.waitFor(t, constants.FrameTypeError, 1)
	assert.Equal(t, errors.ErrNotFound.Code, errs[0].Code)
}

func TestDisconnectTerminatesNonPersistentSubscriptions(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	c, _ := connect(t, h, "owner-1", "session-1")

	c.send(t, h, map[string]interface{}{"type": "subscribe", "data": map[string]interface{}{"topic": "orders.*"}})
	c.waitFor(t, constants.FrameTypeAck, 1)

	require.NoError(t, h.Disconnect(ctx, c.conn.ID()))
	assert.Equal(t, 0, h.Store.Len())
	assert.Equal(t, 0, h.Registry.Len())
	assert.True(t, errors.IsNotFound(h.Disconnect(ctx, c.conn.ID())))
}

func TestSessionResumeDeliversQueuedEvents(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	first, _ := connect(t, h, "owner-1", "session-1")

	first.send(t, h, map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{
			"topic":  "orders.*",
			"config": map[string]interface{}{"persistence": map[string]interface{}{"enabled": true, "ttlSeconds": 600}},
		},
	})
	subID := first.waitFor(t, constants.FrameTypeAck, 1)[0].SubscriptionID

	require.NoError(t, h.Disconnect(ctx, first.conn.ID()))
	sub, err := h.Store.Get(subID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusDisconnected, sub.Status)

	_, err = h.Publish(ctx, models.Event{Type: "order.created", Topic: "orders.created", Payload: map[string]interface{}{"orderId": "o-1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Queues.Stats().TotalSize)

	second, welcome := connect(t, h, "owner-1", "session-1")
	assert.Equal(t, []string{subID}, welcome.Resumed)
	info, err := h.Registry.Get(second.conn.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, info.Metrics.Reconnections)

	assert.Equal(t, 1, h.Queues.ProcessOnce(ctx))
	events := second.waitFor(t, constants.FrameTypeEvent, 1)
	assert.Equal(t, subID, events[0].SubscriptionID)
	assert.Equal(t, "o-1", decodeEvent(t, events[0]).Payload["orderId"])
	assert.Equal(t, 0, h.Queues.Stats().TotalSize)
}

func TestAlertPublishedIntoHub(t *testing.T) {
	h := newTestHub(t)
	ctx := context.Background()
	require.NoError(t, h.Start(ctx))
	assert.True(t, errors.IsConflict(h.Start(ctx)))

	c, _ := connect(t, h, "ops", "ops-session")
	c.send(t, h, map[string]interface{}{"type": "subscribe", "data": map[string]interface{}{"topic": "system.alerts.*"}})
	c.waitFor(t, constants.FrameTypeAck, 1)

	_, err := h.Monitor.CreateRule(ctx, monitoring.RuleRequest{
		Name:       "any connection",
		MetricPath: "connections.total",
		Operator:   monitoring.OperatorGT,
		Threshold:  0,
		Severity:   monitoring.SeverityWarning,
		Actions:    []models.AlertAction{{Type: monitoring.ActionPublish}},
	})
	require.NoError(t, err)

	h.Monitor.Tick(ctx)

	events := c.waitFor(t, constants.FrameTypeEvent, 1)
	alert := decodeEvent(t, events[0])
	assert.Equal(t, "system.alerts.warning", alert.Topic)
	assert.Equal(t, "alert.triggered", alert.Type)
	assert.Len(t, h.Monitor.ActiveAlerts(ctx), 1)

	require.NoError(t, h.Stop())
}
