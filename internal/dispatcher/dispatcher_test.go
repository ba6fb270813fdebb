package dispatcher

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
	"eventhub/internal/filter"
	"eventhub/internal/logger"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type sentFrame struct {
	connectionID string
	frame        connection.Frame
}

type fakeSender struct {
	mu     sync.Mutex
	frames []sentFrame
	err    error
}

func (s *fakeSender) Send(connectionID string, f connection.Frame) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.frames = append(s.frames, sentFrame{connectionID: connectionID, frame: f})
	return len(f.Data), nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSender) events(t *testing.T) []models.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, 0, len(s.frames))
	for _, f := range s.frames {
		var e models.Event
		require.NoError(t, json.Unmarshal(f.frame.Data, &e))
		out = append(out, e)
	}
	return out
}

type fakeFallback struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *fakeFallback) EnqueueFor(_ context.Context, _ subscription.Subscription, event models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeFallback) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *subscription.Store, *fakeSender) {
	t.Helper()
	store, err := subscription.NewStore(config.HubConfig{SubscriptionLimit: 50}, nil, logger.NopLogger())
	require.NoError(t, err)
	sender := &fakeSender{}
	d := New(store, Options{Sender: sender}, logger.NopLogger())
	t.Cleanup(d.Stop)
	return d, store, sender
}

func subscribe(t *testing.T, store *subscription.Store, req subscription.CreateRequest) subscription.Subscription {
	t.Helper()
	if req.OwnerID == "" {
		req.OwnerID = "owner-1"
	}
	if req.SessionID == "" {
		req.SessionID = "session-1"
	}
	if req.ConnectionID == "" {
		req.ConnectionID = "conn-1"
	}
	sub, _, err := store.Create(context.Background(), req)
	require.NoError(t, err)
	return sub
}

func event(topic string, payload map[string]interface{}) models.Event {
	return models.NewEventBuilder().
		WithType("update").
		WithTopic(topic).
		WithPayload(payload).
		Build()
}

func TestPublish_Validation(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		event models.Event
	}{
		{name: "missing type", event: models.Event{Topic: "a.b"}},
		{name: "missing topic", event: models.Event{Type: "x"}},
		{name: "wildcard topic", event: models.Event{Type: "x", Topic: "a.*"}},
		{name: "empty segment", event: models.Event{Type: "x", Topic: "a..b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Publish(ctx, tt.event)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestPublish_NormalizesEvent(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	out, err := d.Publish(context.Background(), models.Event{Type: "status", Topic: "vessel.v1.position"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.False(t, out.Timestamp.IsZero())
	assert.Equal(t, models.PriorityNormal, out.Metadata.Priority)
	assert.Equal(t, models.CategoryVessel, out.Metadata.Category)
}

func TestPublish_EquipmentStatusScenario(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	sub := subscribe(t, store, subscription.CreateRequest{
		Topic: "terminal.equipment.*",
		Filters: []filter.Predicate{
			{Field: "status", Operator: filter.OpEq, Value: "error"},
		},
	})

	_, err := d.Publish(context.Background(), event("terminal.equipment.status", map[string]interface{}{
		"equipmentId": "EQ1",
		"status":      "error",
	}))
	require.NoError(t, err)

	_, err = d.Publish(context.Background(), event("terminal.equipment.status", map[string]interface{}{
		"equipmentId": "EQ2",
		"status":      "ok",
	}))
	require.NoError(t, err)

	require.Equal(t, 1, sender.count())
	assert.Equal(t, sub.ID, sender.frames[0].frame.SubscriptionID)
	assert.Equal(t, "conn-1", sender.frames[0].connectionID)
	assert.Equal(t, "EQ1", sender.events(t)[0].Payload["equipmentId"])

	got, err := store.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Metrics.TotalMessages)
}

func TestPublish_SkipsPausedSubscription(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	sub := subscribe(t, store, subscription.CreateRequest{Topic: "order.**"})

	_, err := store.Pause(context.Background(), sub.ID)
	require.NoError(t, err)

	_, err = d.Publish(context.Background(), event("order.o1.created", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, sender.count())

	_, err = store.Resume(context.Background(), sub.ID)
	require.NoError(t, err)
	_, err = d.Publish(context.Background(), event("order.o1.created", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, sender.count())
}

func TestPublish_DropThrottle(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic: "terminal.crane01.status",
		Config: subscription.Config{
			Throttle: &subscription.ThrottleConfig{
				Strategy:            subscription.ThrottleDrop,
				MaxUpdatesPerSecond: 5,
			},
		},
	})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var i int
	d.now = func() time.Time { return base.Add(time.Duration(i) * 40 * time.Millisecond) }

	for i = 0; i < 20; i++ {
		_, err := d.Publish(context.Background(), event("terminal.crane01.status", map[string]interface{}{"seq": i}))
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, sender.count(), 5)
	assert.Equal(t, 5, sender.count())
}

func TestPublish_DropThrottleBurstAcrossWindowEdge(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic: "terminal.crane01.status",
		Config: subscription.Config{
			Throttle: &subscription.ThrottleConfig{
				Strategy:            subscription.ThrottleDrop,
				MaxUpdatesPerSecond: 5,
			},
		},
	})

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := base
	d.now = func() time.Time { return at }

	_, err := d.Publish(context.Background(), event("terminal.crane01.status", map[string]interface{}{"seq": -1}))
	require.NoError(t, err)
	require.Equal(t, 1, sender.count())

	for i := 0; i < 20; i++ {
		at = base.Add(900*time.Millisecond + time.Duration(i)*10*time.Millisecond)
		_, err := d.Publish(context.Background(), event("terminal.crane01.status", map[string]interface{}{"seq": i}))
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, sender.count()-1, 5, "burst within one second")
	assert.LessOrEqual(t, sender.count(), 6)
}

func TestDropThrottleRates(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		rate    float64
		spacing time.Duration
		events  int
		want    int
	}{
		{"half per second", 0.5, 1100 * time.Millisecond, 3, 2},
		{"half per second slow input", 0.5, 2 * time.Second, 3, 3},
		{"fractional above one", 2.5, 100 * time.Millisecond, 8, 2},
		{"five per second steady", 5, 200 * time.Millisecond, 10, 10},
		{"five per second burst", 5, 10 * time.Millisecond, 20, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := newDropThrottle(tt.rate)
			passed := 0
			for i := 0; i < tt.events; i++ {
				if th.offer(item{}, base.Add(time.Duration(i)*tt.spacing)) {
					passed++
				}
			}
			assert.Equal(t, tt.want, passed)
		})
	}
}

func TestDropThrottleNeverExceedsRateInAnyWindow(t *testing.T) {
	th := newDropThrottle(5)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var passed []time.Time
	now := base
	for i := 0; i < 300; i++ {
		now = now.Add(time.Duration(i*37%113) * time.Millisecond)
		if th.offer(item{}, now) {
			passed = append(passed, now)
		}
	}

	for i := range passed {
		inWindow := 0
		for j := i; j < len(passed) && passed[j].Sub(passed[i]) < time.Second; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, 5)
	}
}

func TestPipelineForOlderHandleKeepsNewerPipeline(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	cfg := subscription.Config{
		Throttle: &subscription.ThrottleConfig{
			Strategy:            subscription.ThrottleBuffer,
			MaxUpdatesPerSecond: 0.001,
		},
	}
	sub := subscribe(t, store, subscription.CreateRequest{Topic: "berth.*.status", Config: cfg})

	old, ok := store.Handle(sub.ID)
	require.True(t, ok)
	_, err := store.Update(context.Background(), sub.ID, subscription.UpdateRequest{Config: &cfg})
	require.NoError(t, err)

	_, err = d.Publish(context.Background(), event("berth.b1.status", map[string]interface{}{"seq": 1}))
	require.NoError(t, err)

	d.mu.Lock()
	current := d.pipelines[sub.ID]
	d.mu.Unlock()
	require.NotNil(t, current)
	assert.Greater(t, current.handle.Generation, old.Generation)

	assert.Nil(t, d.pipelineFor(old))

	d.mu.Lock()
	assert.Same(t, current, d.pipelines[sub.ID])
	d.mu.Unlock()

	held := current.thr.(*bufferThrottle)
	held.mu.Lock()
	assert.Len(t, held.pending, 1)
	held.mu.Unlock()
	assert.Equal(t, 0, sender.count())
}

func TestPublish_DebounceThrottle(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic: "vessel.*.position",
		Config: subscription.Config{
			Throttle: &subscription.ThrottleConfig{
				Strategy:            subscription.ThrottleDebounce,
				MaxUpdatesPerSecond: 1,
				DebounceMs:          30,
			},
		},
	})

	for i := 0; i < 5; i++ {
		_, err := d.Publish(context.Background(), event("vessel.v1.position", map[string]interface{}{"seq": i}))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, sender.count())
	assert.EqualValues(t, 4, sender.events(t)[0].Payload["seq"])
}

func TestPublish_BufferThrottle(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic: "alert.**",
		Config: subscription.Config{
			Throttle: &subscription.ThrottleConfig{
				Strategy:            subscription.ThrottleBuffer,
				MaxUpdatesPerSecond: 100,
				BufferSize:          3,
			},
		},
	})

	for i := 0; i < 5; i++ {
		_, err := d.Publish(context.Background(), event("alert.high", map[string]interface{}{"seq": i}))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, sender.count())

	require.Eventually(t, func() bool { return sender.count() == 3 }, time.Second, 5*time.Millisecond)
	events := sender.events(t)
	assert.EqualValues(t, 2, events[0].Payload["seq"])
	assert.EqualValues(t, 4, events[2].Payload["seq"])
}

func TestPublish_Aggregation(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic: "equipment.*.telemetry",
		Config: subscription.Config{
			Aggregation: &subscription.AggregationConfig{
				WindowMs: 40,
				GroupBy:  "equipmentId",
				Fields: map[string]subscription.AggregateFunc{
					"load": subscription.AggAvg,
					"temp": subscription.AggMax,
				},
			},
		},
	})

	for _, p := range []map[string]interface{}{
		{"equipmentId": "EQ1", "load": 10, "temp": 50},
		{"equipmentId": "EQ1", "load": 30, "temp": 70},
		{"equipmentId": "EQ2", "load": 5, "temp": 40},
	} {
		_, err := d.Publish(context.Background(), event("equipment.crane.telemetry", p))
		require.NoError(t, err)
	}
	assert.Equal(t, 0, sender.count())

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
	events := sender.events(t)
	assert.Equal(t, "EQ1", events[0].Payload["equipmentId"])
	assert.EqualValues(t, 20, events[0].Payload["load"])
	assert.EqualValues(t, 70, events[0].Payload["temp"])
	assert.Equal(t, "EQ2", events[1].Payload["equipmentId"])
}

func TestPublish_TransformsApplyToCopy(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		OwnerID: "owner-a",
		Topic:   "order.*.updated",
		Config: subscription.Config{
			Transforms: []subscription.Transform{
				{Type: subscription.TransformMap, Mapping: map[string]string{"orderId": "id"}, Remove: []string{"secret"}},
				{Type: subscription.TransformReduce, Field: "lines", Key: "qty", Reducer: subscription.AggSum, Target: "totalQty"},
				{Type: subscription.TransformSort, Field: "lines", Key: "qty", Order: "desc"},
			},
		},
	})
	subscribe(t, store, subscription.CreateRequest{OwnerID: "owner-b", ConnectionID: "conn-2", Topic: "order.*.updated"})

	_, err := d.Publish(context.Background(), event("order.o1.updated", map[string]interface{}{
		"id":     "o1",
		"secret": "x",
		"lines": []interface{}{
			map[string]interface{}{"sku": "a", "qty": 1},
			map[string]interface{}{"sku": "b", "qty": 3},
		},
	}))
	require.NoError(t, err)

	require.Equal(t, 2, sender.count())
	byConn := map[string]models.Event{}
	for i, e := range sender.events(t) {
		byConn[sender.frames[i].connectionID] = e
	}

	transformed := byConn["conn-1"]
	assert.Equal(t, "o1", transformed.Payload["orderId"])
	assert.NotContains(t, transformed.Payload, "id")
	assert.NotContains(t, transformed.Payload, "secret")
	assert.EqualValues(t, 4, transformed.Payload["totalQty"])
	lines := transformed.Payload["lines"].([]interface{})
	assert.Equal(t, "b", lines[0].(map[string]interface{})["sku"])

	untouched := byConn["conn-2"]
	assert.Equal(t, "o1", untouched.Payload["id"])
	assert.Equal(t, "x", untouched.Payload["secret"])
}

func TestPublish_TransformFailureCountsError(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	sub := subscribe(t, store, subscription.CreateRequest{
		Topic: "order.**",
		Config: subscription.Config{
			Transforms: []subscription.Transform{
				{Type: subscription.TransformSort, Field: "missing"},
			},
		},
	})

	_, err := d.Publish(context.Background(), event("order.o1", map[string]interface{}{}))
	require.NoError(t, err)
	assert.Equal(t, 0, sender.count())

	got, err := store.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Metrics.Errors)
}

func TestPublish_PersistentFallback(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	fallback := &fakeFallback{}
	d.SetFallback(fallback)

	subscribe(t, store, subscription.CreateRequest{
		Topic:  "maintenance.**",
		Config: subscription.Config{Persistence: &subscription.PersistenceConfig{Enabled: true}},
	})
	other := subscribe(t, store, subscription.CreateRequest{OwnerID: "owner-2", Topic: "maintenance.**"})

	sender.err = connection.ErrBackpressure
	_, err := d.Publish(context.Background(), event("maintenance.m1.scheduled", nil))
	require.NoError(t, err)

	assert.Equal(t, 1, fallback.count())
	got, err := store.Get(other.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Metrics.Errors)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Queued)
	assert.Equal(t, uint64(1), stats.Failed)
}

func TestPublish_DeletedSubscriptionStopsHeldEvents(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	sub := subscribe(t, store, subscription.CreateRequest{
		Topic: "system.**",
		Config: subscription.Config{
			Throttle: &subscription.ThrottleConfig{
				Strategy:            subscription.ThrottleDebounce,
				MaxUpdatesPerSecond: 1,
				DebounceMs:          20,
			},
		},
	})

	_, err := d.Publish(context.Background(), event("system.heartbeat", nil))
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), sub.ID))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, sender.count())
	assert.Equal(t, 0, d.Stats().Pipelines)
}

func TestPublish_CELExpression(t *testing.T) {
	d, store, sender := newTestDispatcher(t)
	subscribe(t, store, subscription.CreateRequest{
		Topic:      "order.**",
		Expression: `data.total > 100.0`,
	})

	_, err := d.Publish(context.Background(), event("order.o1", map[string]interface{}{"total": 50.0}))
	require.NoError(t, err)
	_, err = d.Publish(context.Background(), event("order.o2", map[string]interface{}{"total": 150.0}))
	require.NoError(t, err)

	assert.Equal(t, 1, sender.count())
}
