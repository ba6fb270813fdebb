package queue

import (
	"container/heap"
	"context"
	"time"

	"eventhub/pkg/metrics"
	"eventhub/pkg/retry"
)

// Run delivers queued messages every poll interval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Infow("Queue consumer started", "poll_interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			m.logger.Infow("Queue consumer stopped")
			return nil
		case <-ticker.C:
			m.ProcessOnce(ctx)
		}
	}
}

// RunSweeper expires old messages and removes idle queues every sweep
// interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context) error {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// ProcessOnce attempts delivery of every ready message whose subscription is
// active and returns the number of attempts made.
func (m *Manager) ProcessOnce(ctx context.Context) int {
	m.mu.Lock()
	deliver := m.deliver
	ids := make([]string, 0, len(m.queues))
	for id, q := range m.queues {
		if q.status == StatusActive || q.status == StatusDraining {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	if deliver == nil {
		return 0
	}

	attempts := 0
	for _, id := range ids {
		for n := 0; n < defaultBatchSize; n++ {
			if ctx.Err() != nil {
				return attempts
			}
			msg := m.next(id, m.now())
			if msg == nil {
				break
			}
			attempts++

			start := time.Now()
			err := deliver(withQueue(ctx, msg), msg.SubscriptionID, msg.Event, msg.EnqueuedAt)
			m.complete(id, msg, err, time.Since(start))
		}
		m.finishDrain(id)
	}
	return attempts
}

// next pops the best message that is due and whose subscription is active.
// Skipped messages stay pending.
func (m *Manager) next(queueID string, now time.Time) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[queueID]
	if !ok || (q.status != StatusActive && q.status != StatusDraining) {
		return nil
	}

	var skipped []*Message
	var found *Message
	for q.items.Len() > 0 {
		msg := heap.Pop(&q.items).(*Message)
		if msg.NextAttemptAt.After(now) || (m.active != nil && !m.active(msg.SubscriptionID)) {
			skipped = append(skipped, msg)
			continue
		}
		found = msg
		break
	}
	for _, msg := range skipped {
		heap.Push(&q.items, msg)
	}
	if found == nil {
		return nil
	}

	found.Status = MessageProcessing
	found.Attempts++
	q.inflight++
	return found
}

func (m *Manager) complete(queueID string, msg *Message, err error, took time.Duration) {
	metrics.ObserveQueueProcessing(took)

	m.mu.Lock()
	q, ok := m.queues[queueID]
	if !ok {
		m.mu.Unlock()
		return
	}
	q.inflight--

	if err == nil {
		msg.Status = MessageCompleted
		q.metrics.TotalProcessed++
		q.processedSinceTick++
		ms := float64(took.Microseconds()) / 1000
		if q.metrics.AvgProcessingTimeMs == 0 {
			q.metrics.AvgProcessingTimeMs = ms
		} else {
			q.metrics.AvgProcessingTimeMs = 0.9*q.metrics.AvgProcessingTimeMs + 0.1*ms
		}
		depth, topic := q.size(), q.topic
		m.mu.Unlock()
		metrics.SetQueueDepth(topic, depth)
		metrics.IncQueueMessage("delivered")
		return
	}

	q.metrics.Errors++
	msg.LastError = err.Error()
	if msg.Attempts >= msg.MaxAttempts {
		msg.Status = MessageFailed
		q.metrics.Failed++
		failed := *msg
		depth, topic := q.size(), q.topic
		m.mu.Unlock()

		metrics.SetQueueDepth(topic, depth)
		m.logger.Warnw("Queued message failed after max attempts",
			"queue_id", queueID,
			"message_id", msg.ID,
			"subscription_id", msg.SubscriptionID,
			"attempts", msg.Attempts,
			"error", err,
		)
		m.report([]Message{failed}, "failed")
		return
	}

	msg.Status = MessagePending
	msg.NextAttemptAt = m.now().Add(m.backoff(msg.Attempts))
	heap.Push(&q.items, msg)
	topic := q.topic
	m.mu.Unlock()
	metrics.RetryAttemptsTotal.WithLabelValues("queue", topic).Inc()
}

func (m *Manager) backoff(attempt int) time.Duration {
	r := m.cfg.Retry
	return retry.Policy{
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
	}.Delay(attempt)
}

func (m *Manager) finishDrain(queueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queueID]
	if ok && q.status == StatusDraining && q.size() == 0 {
		q.status = StatusDisabled
		m.logger.Infow("Queue drained", "queue_id", queueID)
	}
}

// Sweep marks messages older than the queue TTL as expired, without a
// delivery attempt, and removes queues that are empty, referenced by no
// subscription and untouched for a TTL.
func (m *Manager) Sweep(now time.Time) (expired, removed int) {
	var dropped []Message
	var removedTopics []string

	m.mu.Lock()
	for id, q := range m.queues {
		ttl := time.Duration(q.cfg.TTLSeconds) * time.Second
		if ttl <= 0 {
			continue
		}

		kept := q.items[:0]
		for _, msg := range q.items {
			if now.Sub(msg.EnqueuedAt) > ttl {
				msg.Status = MessageExpired
				q.metrics.Expired++
				dropped = append(dropped, *msg)
				continue
			}
			kept = append(kept, msg)
		}
		if len(kept) != len(q.items) {
			for i := len(kept); i < len(q.items); i++ {
				q.items[i] = nil
			}
			q.items = kept
			for i, msg := range q.items {
				msg.index = i
			}
			heap.Init(&q.items)
		}

		if q.size() == 0 && len(q.subs) == 0 && now.Sub(q.lastTouched) >= ttl {
			delete(m.queues, id)
			delete(m.byTopic, q.topic)
			removedTopics = append(removedTopics, q.topic)
		}
	}
	m.mu.Unlock()

	for _, topic := range removedTopics {
		metrics.DeleteQueueDepth(topic)
	}
	m.report(dropped, "expired")

	if len(dropped) > 0 || len(removedTopics) > 0 {
		m.logger.Infow("Queue sweep finished", "expired", len(dropped), "queues_removed", len(removedTopics))
	}
	return len(dropped), len(removedTopics)
}
