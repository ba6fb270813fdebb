package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, cfg config.QueueConfig) (*Manager, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(cfg, nil, logger.NopLogger())
	m.now = c.Now
	var n int
	m.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return m, c
}

func testEvent(topic string, seq int, priority models.Priority) models.Event {
	return models.NewEventBuilder().
		WithID(fmt.Sprintf("evt-%d", seq)).
		WithType("update").
		WithTopic(topic).
		WithField("seq", seq).
		WithPriority(priority).
		Build()
}

func TestEnqueue_FIFOEvictsOldest(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()
	opts := Options{Type: TypeFIFO, MaxSize: 3}

	var first EnqueueResult
	for i := 0; i < 3; i++ {
		res, err := m.Enqueue(ctx, "sub-1", testEvent("order.o1", i, models.PriorityNormal), opts)
		require.NoError(t, err)
		if i == 0 {
			first = res
		}
		c.Advance(time.Millisecond)
	}

	res, err := m.Enqueue(ctx, "sub-1", testEvent("order.o1", 3, models.PriorityNormal), opts)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, first.MessageID, res.Evicted)

	info, err := m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Metrics.Size)
	assert.Equal(t, uint64(1), info.Metrics.Evicted)

	msgs, err := m.Messages(res.QueueID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "evt-1", msgs[0].Event.ID)
	assert.Equal(t, "evt-3", msgs[2].Event.ID)
}

func TestEnqueue_SizeNeverExceedsMax(t *testing.T) {
	m, _ := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()

	var queueID string
	for i := 0; i < 50; i++ {
		res, err := m.Enqueue(ctx, "sub-1", testEvent("a.b", i, models.PriorityNormal), Options{Type: TypeFIFO, MaxSize: 7})
		require.NoError(t, err)
		queueID = res.QueueID

		info, err := m.Get(queueID)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Metrics.Size, 7)
	}
}

func TestEnqueue_PriorityEvictsLowest(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()
	opts := Options{Type: TypePriority, MaxSize: 3}

	_, err := m.Enqueue(ctx, "sub-1", testEvent("t", 0, models.PriorityLow), opts)
	require.NoError(t, err)
	c.Advance(time.Millisecond)
	_, err = m.Enqueue(ctx, "sub-1", testEvent("t", 1, models.PriorityCritical), opts)
	require.NoError(t, err)
	c.Advance(time.Millisecond)
	_, err = m.Enqueue(ctx, "sub-1", testEvent("t", 2, models.PriorityLow), opts)
	require.NoError(t, err)
	c.Advance(time.Millisecond)

	res, err := m.Enqueue(ctx, "sub-1", testEvent("t", 3, models.PriorityHigh), opts)
	require.NoError(t, err)
	assert.Equal(t, "id-2", res.Evicted)

	msgs, err := m.Messages(res.QueueID)
	require.NoError(t, err)
	ids := []string{msgs[0].Event.ID, msgs[1].Event.ID, msgs[2].Event.ID}
	assert.Equal(t, []string{"evt-1", "evt-3", "evt-2"}, ids)
}

func TestEnqueue_OtherTypesReject(t *testing.T) {
	for _, typ := range []Type{TypeBroadcast, TypeTopic, TypeFanout} {
		t.Run(string(typ), func(t *testing.T) {
			m, _ := newTestManager(t, config.QueueConfig{})
			ctx := context.Background()
			opts := Options{Type: typ, MaxSize: 1}

			_, err := m.Enqueue(ctx, "sub-1", testEvent("x.y", 0, models.PriorityNormal), opts)
			require.NoError(t, err)

			res, err := m.Enqueue(ctx, "sub-1", testEvent("x.y", 1, models.PriorityNormal), opts)
			require.Error(t, err)
			assert.True(t, errors.IsQueueReject(err))
			assert.False(t, res.Accepted)

			info, err := m.Get(res.QueueID)
			require.NoError(t, err)
			assert.Equal(t, 1, info.Metrics.Size)
			assert.Equal(t, uint64(1), info.Metrics.Rejected)
		})
	}
}

func TestEnqueue_Dedup(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{})
	md := NewMemoryDeduper()
	md.now = c.Now
	m.deduper = md
	ctx := context.Background()
	opts := Options{Dedup: &DedupConfig{KeyFields: []string{"data.orderId"}, WindowSeconds: 10}}

	e := func(id string) models.Event {
		return models.NewEventBuilder().WithType("u").WithTopic("order.x").WithField("orderId", id).Build()
	}

	res, err := m.Enqueue(ctx, "sub-1", e("o1"), opts)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	res, err = m.Enqueue(ctx, "sub-1", e("o1"), opts)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.False(t, res.Accepted)

	res, err = m.Enqueue(ctx, "sub-2", e("o1"), opts)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	c.Advance(11 * time.Second)
	res, err = m.Enqueue(ctx, "sub-1", e("o1"), opts)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	info, err := m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Metrics.Size)
	assert.Equal(t, uint64(1), info.Metrics.Duplicates)
}

func TestProcessOnce_DeliversInPriorityOrder(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()

	var delivered []string
	m.SetDelivery(func(_ context.Context, _ string, e models.Event, _ time.Time) error {
		delivered = append(delivered, e.ID)
		return nil
	}, func(string) bool { return true })

	for i, p := range []models.Priority{models.PriorityLow, models.PriorityNormal, models.PriorityCritical, models.PriorityNormal} {
		_, err := m.Enqueue(ctx, "sub-1", testEvent("q", i, p), Options{Type: TypePriority})
		require.NoError(t, err)
		c.Advance(time.Millisecond)
	}

	assert.Equal(t, 4, m.ProcessOnce(ctx))
	assert.Equal(t, []string{"evt-2", "evt-1", "evt-3", "evt-0"}, delivered)
	assert.Equal(t, uint64(4), m.Stats().Processed)
	assert.Equal(t, 0, m.Stats().TotalSize)
}

func TestProcessOnce_RetriesThenFails(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{
		Retry: config.RetryConfig{InitialInterval: time.Second, Multiplier: 2, MaxInterval: time.Minute},
	})
	ctx := context.Background()

	var attempts int
	m.SetDelivery(func(context.Context, string, models.Event, time.Time) error {
		attempts++
		return fmt.Errorf("connection gone")
	}, func(string) bool { return true })

	var failed []Message
	m.OnTerminal(func(msg Message) { failed = append(failed, msg) })

	res, err := m.Enqueue(ctx, "sub-1", testEvent("q", 0, models.PriorityNormal), Options{MaxAttempts: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, m.ProcessOnce(ctx))
	assert.Equal(t, 0, m.ProcessOnce(ctx), "retry is not due yet")

	c.Advance(time.Second)
	assert.Equal(t, 1, m.ProcessOnce(ctx))
	c.Advance(time.Second)
	assert.Equal(t, 0, m.ProcessOnce(ctx), "second backoff is two seconds")
	c.Advance(time.Second)
	assert.Equal(t, 1, m.ProcessOnce(ctx))

	assert.Equal(t, 3, attempts)
	require.Len(t, failed, 1)
	assert.Equal(t, MessageFailed, failed[0].Status)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, "connection gone", failed[0].LastError)

	info, err := m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Metrics.Size)
	assert.Equal(t, uint64(1), info.Metrics.Failed)
	assert.Equal(t, uint64(3), info.Metrics.Errors)
}

func TestPausedSubscriptionMessagesExpire(t *testing.T) {
	m, c := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()

	var delivered int
	paused := true
	m.SetDelivery(func(context.Context, string, models.Event, time.Time) error {
		delivered++
		return nil
	}, func(string) bool { return !paused })

	var expired []Message
	m.OnTerminal(func(msg Message) { expired = append(expired, msg) })

	res, err := m.Enqueue(ctx, "sub-1", testEvent("terminal.t1.status", 0, models.PriorityNormal), Options{TTLSeconds: 60})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, m.ProcessOnce(ctx))
		c.Advance(10 * time.Second)
	}

	msgs, err := m.Messages(res.QueueID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessagePending, msgs[0].Status)

	n, _ := m.Sweep(c.Now())
	assert.Equal(t, 0, n)

	paused = false
	c.Advance(11 * time.Second)
	n, removed := m.Sweep(c.Now())
	assert.Equal(t, 1, n)
	require.Len(t, expired, 1)
	assert.Equal(t, MessageExpired, expired[0].Status)
	assert.Equal(t, 0, expired[0].Attempts)

	assert.Equal(t, 0, m.ProcessOnce(ctx))
	assert.Equal(t, 0, delivered)

	// sub-1 still references the queue, so it stays with its counters
	assert.Equal(t, 0, removed)
	info, err := m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Metrics.Expired)

	m.ReleaseSubscription("sub-1")
	c.Advance(61 * time.Second)
	_, removed = m.Sweep(c.Now())
	assert.Equal(t, 1, removed)
	_, err = m.Get(res.QueueID)
	assert.True(t, errors.IsNotFound(err))
}

func TestQueueStatusTransitions(t *testing.T) {
	m, _ := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()

	var delivered int
	m.SetDelivery(func(context.Context, string, models.Event, time.Time) error {
		delivered++
		return nil
	}, func(string) bool { return true })

	res, err := m.Enqueue(ctx, "sub-1", testEvent("s.t", 0, models.PriorityNormal), Options{})
	require.NoError(t, err)

	info, err := m.Pause(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, info.Status)
	assert.Equal(t, 0, m.ProcessOnce(ctx))

	_, err = m.Enqueue(ctx, "sub-1", testEvent("s.t", 1, models.PriorityNormal), Options{})
	require.NoError(t, err)

	_, err = m.Drain(res.QueueID)
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "sub-1", testEvent("s.t", 2, models.PriorityNormal), Options{})
	assert.True(t, errors.IsQueueReject(err))

	assert.Equal(t, 2, m.ProcessOnce(ctx))
	info, err = m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, StatusDisabled, info.Status)

	_, err = m.Pause(res.QueueID)
	assert.True(t, errors.IsConflict(err))

	info, err = m.Resume(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, info.Status)

	_, err = m.Pause("missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestReleaseSubscription(t *testing.T) {
	m, _ := newTestManager(t, config.QueueConfig{})
	ctx := context.Background()

	res, err := m.Enqueue(ctx, "sub-1", testEvent("r.s", 0, models.PriorityNormal), Options{})
	require.NoError(t, err)
	_, err = m.Enqueue(ctx, "sub-2", testEvent("r.s", 1, models.PriorityNormal), Options{})
	require.NoError(t, err)

	m.ReleaseSubscription("sub-1")

	msgs, err := m.Messages(res.QueueID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "sub-2", msgs[0].SubscriptionID)

	info, err := m.Get(res.QueueID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Subscriptions)
	assert.Equal(t, uint64(1), info.Metrics.Expired)
}
