// Package dispatcher fans published events out to matching subscriptions,
// running each through its transform, aggregation and throttle pipeline.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"eventhub/internal/connection"
	"eventhub/internal/logger"
	"eventhub/internal/subscription"
	"eventhub/internal/topic"
	"eventhub/pkg/errors"
	"eventhub/pkg/logging"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
	"eventhub/pkg/tracing"
)

// Sender pushes a frame into a connection's outbound buffer without blocking.
type Sender interface {
	Send(connectionID string, f connection.Frame) (int, error)
}

// Fallback takes events for persistent subscriptions that could not be
// delivered synchronously.
type Fallback interface {
	EnqueueFor(ctx context.Context, sub subscription.Subscription, event models.Event) error
}

// ConnectionResolver finds the live connection for a subscription that was
// created without one.
type ConnectionResolver func(sub subscription.Subscription) (string, bool)

type Options struct {
	Sender   Sender
	Fallback Fallback
	Resolve  ConnectionResolver
}

type Stats struct {
	Published    uint64  `json:"published"`
	Matched      uint64  `json:"matched"`
	Delivered    uint64  `json:"delivered"`
	Failed       uint64  `json:"failed"`
	Queued       uint64  `json:"queued"`
	Filtered     uint64  `json:"filtered"`
	Cancelled    uint64  `json:"cancelled"`
	Errors       uint64  `json:"errors"`
	Pipelines    int     `json:"pipelines"`
	AvgPublishMs float64 `json:"avgPublishMs"`
}

// item is an event travelling through a pipeline together with the time the
// hub accepted it.
type item struct {
	event      models.Event
	receivedAt time.Time
}

type Dispatcher struct {
	store    *subscription.Store
	sender   Sender
	fallback Fallback
	resolve  ConnectionResolver
	logger   logger.Logger

	mu        sync.Mutex
	pipelines map[string]*pipeline
	stopped   bool

	published    atomic.Uint64
	matched      atomic.Uint64
	delivered    atomic.Uint64
	failed       atomic.Uint64
	queued       atomic.Uint64
	filtered     atomic.Uint64
	cancelled    atomic.Uint64
	errCount     atomic.Uint64
	publishNanos atomic.Int64

	now   func() time.Time
	newID func() string
}

func New(store *subscription.Store, opts Options, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		sender:    opts.Sender,
		fallback:  opts.Fallback,
		resolve:   opts.Resolve,
		logger:    logger.Named(log, "dispatcher"),
		pipelines: make(map[string]*pipeline),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	store.OnRemove(d.Remove)
	return d
}

// SetFallback wires the queue after construction, since the queue consumer
// delivers back through the dispatcher.
func (d *Dispatcher) SetFallback(f Fallback) {
	d.mu.Lock()
	d.fallback = f
	d.mu.Unlock()
}

// Publish validates and normalizes event, then hands a copy to every matching
// active subscription. Subscriber-side failures are recorded, never returned.
func (d *Dispatcher) Publish(ctx context.Context, event models.Event) (models.Event, error) {
	start := d.now()

	if err := validate(&event); err != nil {
		metrics.IncPublished("rejected")
		return models.Event{}, err
	}
	event.Normalize(start, d.newID)

	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		metrics.IncPublished("rejected")
		return models.Event{}, errors.ErrServiceUnavailable.WithDetail("message", "dispatcher is stopped")
	}

	ctx, span := tracing.StartPublishSpan(ctx, event)
	defer span.End()
	ctx = logging.WithEventID(ctx, event.ID)

	matched := 0
	for _, id := range d.store.Candidates(event.Topic) {
		h, ok := d.store.Handle(id)
		if !ok {
			continue
		}
		switch {
		case h.Status == subscription.StatusActive:
		case h.Status == subscription.StatusDisconnected && h.Config.Persistent():
		default:
			continue
		}
		if !h.Matches(ctx, event) {
			d.filtered.Add(1)
			continue
		}
		matched++
		d.dispatchTo(ctx, h, item{event: event.Clone(), receivedAt: start})
	}

	span.SetAttributes(attribute.Int("hub.matched", matched))
	d.published.Add(1)
	d.matched.Add(uint64(matched))
	elapsed := d.now().Sub(start)
	d.publishNanos.Add(int64(elapsed))
	metrics.IncPublished("accepted")
	metrics.ObservePublishDuration(elapsed)

	d.logger.DebugwCtx(ctx, "Event published",
		"topic", event.Topic,
		"type", event.Type,
		"matched", matched,
	)
	return event, nil
}

func validate(event *models.Event) error {
	if err := models.ValidateEvent(event); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return errors.ErrValidation.
				WithDetail("field", ve.Field).
				WithDetail("message", ve.Message)
		}
		return errors.Wrap(err, errors.ErrValidation)
	}
	return topic.ValidateTopic(event.Topic)
}

// dispatchTo runs one subscription's pipeline. A panic there is contained to
// that subscription.
func (d *Dispatcher) dispatchTo(ctx context.Context, h *subscription.Handle, it item) {
	ctx = logging.WithSubscriptionID(ctx, h.ID)
	defer func() {
		if r := recover(); r != nil {
			d.errCount.Add(1)
			d.store.RecordError(h.ID)
			metrics.IncDelivery("panic")
			d.logger.ErrorwCtx(ctx, "Subscription pipeline panicked", "error", errors.RecoverPanic(r))
		}
	}()

	if h.Status == subscription.StatusDisconnected {
		d.enqueue(ctx, h, it.event, "disconnected")
		return
	}
	p := d.pipelineFor(h)
	if p == nil {
		d.cancelled.Add(1)
		metrics.IncDelivery("cancelled")
		return
	}
	p.process(ctx, it)
}

// pipelineFor returns the pipeline of h's generation. A handle older than the
// running pipeline gets nil and leaves the newer pipeline and its held events
// alone.
func (d *Dispatcher) pipelineFor(h *subscription.Handle) *pipeline {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pipelines[h.ID]; ok {
		switch {
		case p.handle.Generation == h.Generation:
			return p
		case p.handle.Generation > h.Generation:
			return nil
		}
		p.stop()
	}
	p := newPipeline(d, h)
	d.pipelines[h.ID] = p
	return p
}

// deliver re-checks the subscription right before sending, so deletes and
// pauses apply to everything still held in a pipeline.
func (d *Dispatcher) deliver(ctx context.Context, h *subscription.Handle, it item) {
	if !d.store.Deliverable(h.ID, h.Generation) {
		current, ok := d.store.Handle(h.ID)
		if ok && current.Status == subscription.StatusDisconnected && current.Config.Persistent() {
			d.enqueue(ctx, current, it.event, "disconnected")
			return
		}
		d.cancelled.Add(1)
		metrics.IncDelivery("cancelled")
		return
	}

	err := d.send(h, it)
	if err == nil {
		return
	}

	if h.Config.Persistent() {
		d.enqueue(ctx, h, it.event, errors.Code(err))
		return
	}

	d.failed.Add(1)
	d.store.RecordError(h.ID)
	metrics.IncDelivery("failed")
	d.logger.DebugwCtx(ctx, "Delivery failed", "error", err)
}

func (d *Dispatcher) send(h *subscription.Handle, it item) error {
	connID, ok := d.connectionFor(h.Subscription)
	if !ok {
		return errors.ErrDeliveryFailure.
			WithDetail("subscription_id", h.ID).
			WithDetail("message", "no live connection for subscription")
	}

	frame, err := connection.EventFrame(h.ID, it.event)
	if err != nil {
		return errors.Wrap(err, errors.ErrDeliveryFailure)
	}
	n, err := d.sender.Send(connID, frame)
	if err != nil {
		return err
	}

	latency := d.now().Sub(it.receivedAt)
	d.store.RecordDelivery(h.ID, n, latency)
	d.delivered.Add(1)
	metrics.IncDelivery("delivered")
	metrics.ObserveDeliveryLatency("direct", latency)
	return nil
}

func (d *Dispatcher) enqueue(ctx context.Context, h *subscription.Handle, event models.Event, reason string) {
	d.mu.Lock()
	fallback := d.fallback
	d.mu.Unlock()

	if fallback == nil {
		d.failed.Add(1)
		d.store.RecordError(h.ID)
		metrics.IncDelivery("failed")
		return
	}
	if err := fallback.EnqueueFor(ctx, h.Subscription, event); err != nil {
		d.failed.Add(1)
		d.store.RecordError(h.ID)
		metrics.IncDelivery("queue_rejected")
		d.logger.WarnwCtx(ctx, "Queue fallback refused event", "reason", reason, "error", err)
		return
	}
	d.queued.Add(1)
	metrics.IncDelivery("queued")
}

func (d *Dispatcher) connectionFor(sub subscription.Subscription) (string, bool) {
	if sub.ConnectionID != "" {
		return sub.ConnectionID, true
	}
	if d.resolve != nil {
		return d.resolve(sub)
	}
	return "", false
}

// DeliverQueued sends an event taken from a queue. Errors are returned so the
// queue can schedule a retry.
func (d *Dispatcher) DeliverQueued(ctx context.Context, subscriptionID string, event models.Event, enqueuedAt time.Time) error {
	h, ok := d.store.Handle(subscriptionID)
	if !ok {
		return errors.ErrNotFound.WithDetail("subscription_id", subscriptionID)
	}
	if h.Status != subscription.StatusActive {
		return errors.ErrDeliveryFailure.
			WithDetail("subscription_id", subscriptionID).
			WithDetail("message", fmt.Sprintf("subscription is %s", h.Status))
	}

	connID, ok := d.connectionFor(h.Subscription)
	if !ok {
		return errors.ErrDeliveryFailure.
			WithDetail("subscription_id", subscriptionID).
			WithDetail("message", "no live connection for subscription")
	}
	frame, err := connection.EventFrame(h.ID, event)
	if err != nil {
		return err
	}
	n, err := d.sender.Send(connID, frame)
	if err != nil {
		d.store.RecordError(h.ID)
		return err
	}

	latency := d.now().Sub(enqueuedAt)
	d.store.RecordDelivery(h.ID, n, latency)
	d.delivered.Add(1)
	metrics.IncDelivery("delivered")
	metrics.ObserveDeliveryLatency("queued", latency)
	d.logger.DebugwCtx(ctx, "Queued event delivered", "subscription_id", subscriptionID, "event_id", event.ID)
	return nil
}

// Remove stops the pipeline of a subscription, dropping anything it holds.
func (d *Dispatcher) Remove(subscriptionID string) {
	d.mu.Lock()
	p, ok := d.pipelines[subscriptionID]
	delete(d.pipelines, subscriptionID)
	d.mu.Unlock()
	if ok {
		p.stop()
	}
}

// Stop halts every pipeline timer. Publish fails afterwards.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	pipelines := d.pipelines
	d.pipelines = make(map[string]*pipeline)
	d.stopped = true
	d.mu.Unlock()

	for _, p := range pipelines {
		p.stop()
	}
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	n := len(d.pipelines)
	d.mu.Unlock()

	published := d.published.Load()
	stats := Stats{
		Published: published,
		Matched:   d.matched.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Queued:    d.queued.Load(),
		Filtered:  d.filtered.Load(),
		Cancelled: d.cancelled.Load(),
		Errors:    d.errCount.Load(),
		Pipelines: n,
	}
	if published > 0 {
		stats.AvgPublishMs = float64(d.publishNanos.Load()) / float64(published) / float64(time.Millisecond)
	}
	return stats
}
