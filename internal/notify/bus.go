// Package notify is a bounded, typed message bus that decouples side effects
// (audit, logging, alert actions) from the components that emit them.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/metrics"
)

const sinkTimeout = 5 * time.Second

type Sink[T any] interface {
	Name() string
	Handle(ctx context.Context, msg T) error
}

type sinkFunc[T any] struct {
	name string
	fn   func(ctx context.Context, msg T) error
}

func (s sinkFunc[T]) Name() string { return s.name }

func (s sinkFunc[T]) Handle(ctx context.Context, msg T) error { return s.fn(ctx, msg) }

// SinkFunc adapts a function into a Sink.
func SinkFunc[T any](name string, fn func(ctx context.Context, msg T) error) Sink[T] {
	return sinkFunc[T]{name: name, fn: fn}
}

// Bus fans each published message out to every sink on a single worker.
// Publish never blocks: when the buffer is full the message is dropped.
type Bus[T any] struct {
	name    string
	ch      chan T
	logger  logger.Logger
	mu      sync.RWMutex
	sinks   []Sink[T]
	dropped atomic.Uint64
}

func NewBus[T any](name string, size int, log logger.Logger, sinks ...Sink[T]) *Bus[T] {
	if size <= 0 {
		size = 1
	}
	return &Bus[T]{
		name:   name,
		ch:     make(chan T, size),
		logger: log,
		sinks:  sinks,
	}
}

func (b *Bus[T]) AddSink(s Sink[T]) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

func (b *Bus[T]) Publish(msg T) bool {
	select {
	case b.ch <- msg:
		return true
	default:
		b.dropped.Add(1)
		metrics.IncNotificationDropped(b.name)
		return false
	}
}

func (b *Bus[T]) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus[T]) Pending() int {
	return len(b.ch)
}

// Run delivers messages until ctx is cancelled, then flushes what is
// already buffered.
func (b *Bus[T]) Run(ctx context.Context) error {
	for {
		select {
		case msg := <-b.ch:
			b.dispatch(context.WithoutCancel(ctx), msg)
		case <-ctx.Done():
			b.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (b *Bus[T]) flush(ctx context.Context) {
	for {
		select {
		case msg := <-b.ch:
			b.dispatch(ctx, msg)
		default:
			return
		}
	}
}

func (b *Bus[T]) dispatch(ctx context.Context, msg T) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		b.handle(ctx, s, msg)
	}
}

func (b *Bus[T]) handle(ctx context.Context, s Sink[T], msg T) {
	ctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorw("Notification sink panicked",
				"bus", b.name,
				"sink", s.Name(),
				"error", errors.RecoverPanic(r),
			)
		}
	}()

	if err := s.Handle(ctx, msg); err != nil {
		b.logger.Warnw("Notification sink failed",
			"bus", b.name,
			"sink", s.Name(),
			"error", err,
		)
	}
}
