// Package queue holds events for persistent subscriptions whose synchronous
// delivery failed and redelivers them with retries.
package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/logging"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

const (
	defaultMaxSize     = 1000
	defaultMaxAttempts = 3
	defaultBatchSize   = 100
)

// DeliverFunc attempts one delivery of a queued event.
type DeliverFunc func(ctx context.Context, subscriptionID string, event models.Event, enqueuedAt time.Time) error

// ActiveFunc reports whether a subscription currently accepts deliveries.
type ActiveFunc func(subscriptionID string) bool

// TerminalHook observes messages that leave a queue undelivered.
type TerminalHook func(m Message)

type queueState struct {
	id          string
	topic       string
	typ         Type
	cfg         Config
	status      Status
	createdAt   time.Time
	lastEnqueue time.Time
	lastTouched time.Time

	items    messageHeap
	inflight int
	subs     map[string]struct{}
	metrics  Metrics

	processedSinceTick uint64
}

func (q *queueState) size() int {
	return len(q.items) + q.inflight
}

func (q *queueState) info() Info {
	m := q.metrics
	m.Size = q.size()
	return Info{
		ID:            q.id,
		Topic:         q.topic,
		Type:          q.typ,
		Config:        q.cfg,
		Metrics:       m,
		Status:        q.status,
		CreatedAt:     q.createdAt,
		LastEnqueueAt: q.lastEnqueue,
		Subscriptions: len(q.subs),
	}
}

type Manager struct {
	mu      sync.Mutex
	queues  map[string]*queueState
	byTopic map[string]string
	seq     uint64

	cfg     config.QueueConfig
	deduper Deduper
	hasher  *Hasher
	deliver DeliverFunc
	active  ActiveFunc
	logger  logger.Logger

	hooksMu sync.RWMutex
	hooks   []TerminalHook

	now   func() time.Time
	newID func() string
}

func NewManager(cfg config.QueueConfig, deduper Deduper, log logger.Logger) *Manager {
	if deduper == nil {
		deduper = NewMemoryDeduper()
	}
	return &Manager{
		queues:  make(map[string]*queueState),
		byTopic: make(map[string]string),
		cfg:     cfg,
		deduper: deduper,
		hasher:  NewHasher(cfg.Dedup.HashAlgorithm),
		logger:  logger.Named(log, "queues"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetDelivery wires the consumer to the dispatcher and subscription store.
func (m *Manager) SetDelivery(deliver DeliverFunc, active ActiveFunc) {
	m.mu.Lock()
	m.deliver = deliver
	m.active = active
	m.mu.Unlock()
}

func (m *Manager) OnTerminal(fn TerminalHook) {
	m.hooksMu.Lock()
	m.hooks = append(m.hooks, fn)
	m.hooksMu.Unlock()
}

// EnqueueFor queues an event for a persistent subscription using its
// persistence settings. Duplicates are accepted silently.
func (m *Manager) EnqueueFor(ctx context.Context, sub subscription.Subscription, event models.Event) error {
	opts := Options{Persistent: true}
	if p := sub.Config.Persistence; p != nil {
		opts.Type = Type(p.QueueType)
		opts.MaxSize = p.MaxSize
		opts.TTLSeconds = p.TTLSeconds
		opts.MaxAttempts = p.MaxAttempts
		if p.Dedup != nil {
			opts.Dedup = &DedupConfig{KeyFields: p.Dedup.KeyFields, WindowSeconds: p.Dedup.WindowSeconds}
		}
	}
	_, err := m.Enqueue(ctx, sub.ID, event, opts)
	return err
}

func (m *Manager) resolve(opts Options) (Type, Config) {
	typ := opts.Type
	if !typ.Valid() {
		typ = Type(m.cfg.Type)
	}
	if !typ.Valid() {
		typ = TypeFIFO
	}

	cfg := Config{
		MaxSize:     firstPositive(opts.MaxSize, m.cfg.MaxSize, defaultMaxSize),
		TTLSeconds:  firstPositive(opts.TTLSeconds, m.cfg.TTLSeconds, 0),
		MaxAttempts: firstPositive(opts.MaxAttempts, m.cfg.MaxAttempts, defaultMaxAttempts),
		Persistent:  opts.Persistent,
		Dedup:       opts.Dedup,
	}
	if cfg.Dedup == nil && len(m.cfg.Dedup.KeyFields) > 0 && m.cfg.Dedup.WindowSeconds > 0 {
		cfg.Dedup = &DedupConfig{KeyFields: m.cfg.Dedup.KeyFields, WindowSeconds: m.cfg.Dedup.WindowSeconds}
	}
	return typ, cfg
}

// Enqueue adds event for subscriptionID to the queue of its topic, creating
// the queue on first use. A full queue evicts (fifo, priority) or rejects.
func (m *Manager) Enqueue(ctx context.Context, subscriptionID string, event models.Event, opts Options) (EnqueueResult, error) {
	typ, cfg := m.resolve(opts)

	m.mu.Lock()
	q := m.queueFor(event.Topic, typ, cfg)
	queueID, status, dedup := q.id, q.status, q.cfg.Dedup
	m.mu.Unlock()

	result := EnqueueResult{QueueID: queueID}
	if status == StatusDraining || status == StatusDisabled || status == StatusError {
		return result, m.reject(queueID, fmt.Sprintf("queue is %s", status))
	}

	if dedup != nil && len(dedup.KeyFields) > 0 && dedup.WindowSeconds > 0 {
		hash, err := m.hasher.ComputeHash(event, dedup.KeyFields)
		if err != nil {
			return result, errors.Wrap(err, errors.ErrInternal)
		}
		dup, err := m.deduper.Seen(ctx, queueID+":"+subscriptionID+":"+hash, time.Duration(dedup.WindowSeconds)*time.Second)
		if err != nil {
			return result, m.reject(queueID, err.Error())
		}
		if dup {
			m.mu.Lock()
			if q, ok := m.queues[queueID]; ok {
				q.metrics.Duplicates++
			}
			m.mu.Unlock()
			metrics.IncQueueMessage("duplicate")
			result.Duplicate = true
			return result, nil
		}
	}

	now := m.now()
	msg := &Message{
		ID:             m.newID(),
		QueueID:        queueID,
		SubscriptionID: subscriptionID,
		Event:          event,
		Priority:       event.Metadata.Priority.Weight(),
		EnqueuedAt:     now,
		MaxAttempts:    cfg.MaxAttempts,
		NextAttemptAt:  now,
		Status:         MessagePending,
	}

	m.mu.Lock()
	q, ok := m.queues[queueID]
	if !ok {
		q = m.queueFor(event.Topic, typ, cfg)
		msg.QueueID = q.id
		result.QueueID = q.id
	}

	var evicted *Message
	if q.size() >= q.cfg.MaxSize {
		if !q.typ.evicts() || len(q.items) == 0 {
			q.metrics.Rejected++
			m.mu.Unlock()
			metrics.IncQueueMessage("rejected")
			return result, errors.ErrQueueReject.
				WithDetail("queue_id", q.id).
				WithDetail("message", fmt.Sprintf("%s queue %s is full (%d)", q.typ, q.id, q.cfg.MaxSize))
		}
		evicted = q.items.victim(q.typ)
		q.items.remove(evicted)
		q.metrics.Evicted++
		result.Evicted = evicted.ID
	}

	m.seq++
	msg.seq = m.seq
	heap.Push(&q.items, msg)
	q.subs[subscriptionID] = struct{}{}
	q.lastEnqueue = now
	q.lastTouched = now
	depth := q.size()
	topic := q.topic
	m.mu.Unlock()

	metrics.SetQueueDepth(topic, depth)
	metrics.IncQueueMessage("enqueued")
	if evicted != nil {
		metrics.IncQueueMessage("evicted")
		m.logger.DebugwCtx(ctx, "Queue full, evicted message",
			"queue_id", queueID,
			"evicted_id", evicted.ID,
		)
	}

	result.MessageID = msg.ID
	result.Accepted = true
	return result, nil
}

func (m *Manager) reject(queueID, reason string) error {
	m.mu.Lock()
	if q, ok := m.queues[queueID]; ok {
		q.metrics.Rejected++
	}
	m.mu.Unlock()
	metrics.IncQueueMessage("rejected")
	return errors.ErrQueueReject.
		WithDetail("queue_id", queueID).
		WithDetail("message", reason)
}

// queueFor returns the queue of topic, creating it. Callers hold m.mu.
func (m *Manager) queueFor(topic string, typ Type, cfg Config) *queueState {
	if id, ok := m.byTopic[topic]; ok {
		return m.queues[id]
	}
	now := m.now()
	q := &queueState{
		id:          m.newID(),
		topic:       topic,
		typ:         typ,
		cfg:         cfg,
		status:      StatusActive,
		createdAt:   now,
		lastTouched: now,
		subs:        make(map[string]struct{}),
	}
	m.queues[q.id] = q
	m.byTopic[topic] = q.id
	m.logger.Infow("Queue created", "queue_id", q.id, "topic", topic, "type", string(typ), "max_size", cfg.MaxSize)
	return q
}

// ReleaseSubscription drops everything queued for a removed subscription.
// The dropped messages are reported as expired.
func (m *Manager) ReleaseSubscription(subscriptionID string) {
	now := m.now()
	var dropped []Message

	m.mu.Lock()
	for _, q := range m.queues {
		if _, ok := q.subs[subscriptionID]; !ok {
			continue
		}
		delete(q.subs, subscriptionID)
		q.lastTouched = now
		kept := q.items[:0]
		for _, msg := range q.items {
			if msg.SubscriptionID == subscriptionID {
				msg.Status = MessageExpired
				q.metrics.Expired++
				dropped = append(dropped, *msg)
				continue
			}
			kept = append(kept, msg)
		}
		q.items = kept
		for i, msg := range q.items {
			msg.index = i
		}
		heap.Init(&q.items)
	}
	m.mu.Unlock()

	m.report(dropped, "expired")
}

func (m *Manager) report(msgs []Message, outcome string) {
	if len(msgs) == 0 {
		return
	}
	m.hooksMu.RLock()
	hooks := m.hooks
	m.hooksMu.RUnlock()

	for _, msg := range msgs {
		metrics.IncQueueMessage(outcome)
		for _, fn := range hooks {
			fn(msg)
		}
	}
}

func (m *Manager) get(id string) (*queueState, error) {
	q, ok := m.queues[id]
	if !ok {
		return nil, errors.ErrNotFound.
			WithDetail("queue_id", id).
			WithDetail("message", fmt.Sprintf("queue %s not found", id))
	}
	return q, nil
}

func (m *Manager) setStatus(id string, allowed func(Status) bool, next Status) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	if !allowed(q.status) {
		return Info{}, errors.ErrConflict.
			WithDetail("queue_id", id).
			WithDetail("message", fmt.Sprintf("cannot move queue from %s to %s", q.status, next))
	}
	q.status = next
	m.logger.Infow("Queue status changed", "queue_id", id, "status", string(next))
	return q.info(), nil
}

// Pause stops the consumer for a queue; enqueues are still accepted.
func (m *Manager) Pause(id string) (Info, error) {
	return m.setStatus(id, func(s Status) bool { return s == StatusActive || s == StatusPaused }, StatusPaused)
}

func (m *Manager) Resume(id string) (Info, error) {
	return m.setStatus(id, func(Status) bool { return true }, StatusActive)
}

// Drain refuses new messages and keeps delivering until the queue is empty,
// after which it is disabled.
func (m *Manager) Drain(id string) (Info, error) {
	return m.setStatus(id, func(s Status) bool { return s != StatusDisabled }, StatusDraining)
}

func (m *Manager) Get(id string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	return q.info(), nil
}

// Messages returns the pending messages of a queue in delivery order.
func (m *Manager) Messages(id string) ([]Message, error) {
	m.mu.Lock()
	q, err := m.get(id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	out := make([]Message, 0, len(q.items))
	for _, msg := range q.items {
		out = append(out, *msg)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].seq < out[j].seq
	})
	return out, nil
}

func (m *Manager) List() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.queues))
	for _, q := range m.queues {
		out = append(out, q.info())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

func (m *Manager) QueueForTopic(topic string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byTopic[topic]
	if !ok {
		return Info{}, false
	}
	return m.queues[id].info(), true
}

// TickRates refreshes per-queue throughput over the elapsed interval.
func (m *Manager) TickRates(elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queues {
		q.metrics.ThroughputPerSecond = float64(q.processedSinceTick) / elapsed.Seconds()
		q.processedSinceTick = 0
	}
}

func (m *Manager) Stats() Stats {
	infos := m.List()
	stats := Stats{Queues: len(infos), ByStatus: make(map[Status]int)}
	for _, info := range infos {
		stats.ByStatus[info.Status]++
		stats.TotalSize += info.Metrics.Size
		stats.Processed += info.Metrics.TotalProcessed
		stats.Errors += info.Metrics.Errors
		stats.Failed += info.Metrics.Failed
		stats.Expired += info.Metrics.Expired
		stats.Evicted += info.Metrics.Evicted
		stats.Rejected += info.Metrics.Rejected
		stats.Duplicates += info.Metrics.Duplicates
		stats.Throughput += info.Metrics.ThroughputPerSecond
	}
	return stats
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func withQueue(ctx context.Context, msg *Message) context.Context {
	ctx = logging.WithEventID(ctx, msg.Event.ID)
	return logging.WithSubscriptionID(ctx, msg.SubscriptionID)
}
