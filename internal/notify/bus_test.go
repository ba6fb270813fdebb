package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/logger"
)

type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) sink(name string) Sink[string] {
	return SinkFunc(name, func(ctx context.Context, msg string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, name+":"+msg)
		return nil
	})
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func TestBusFansOutInOrder(t *testing.T) {
	rec := &recorder{}
	bus := NewBus[string]("test", 8, logger.NopLogger(), rec.sink("a"))
	bus.AddSink(rec.sink("b"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(done)
	}()

	require.True(t, bus.Publish("one"))
	require.True(t, bus.Publish("two"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a:one", "b:one", "a:two", "b:two"}, rec.snapshot())

	cancel()
	<-done
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus[string]("test-full", 2, logger.NopLogger())

	assert.True(t, bus.Publish("1"))
	assert.True(t, bus.Publish("2"))
	assert.False(t, bus.Publish("3"))
	assert.Equal(t, uint64(1), bus.Dropped())
	assert.Equal(t, 2, bus.Pending())
}

func TestBusFlushesOnStopAndSurvivesSinkFailures(t *testing.T) {
	rec := &recorder{}
	failing := SinkFunc("failing", func(ctx context.Context, msg string) error {
		return errors.New("sink down")
	})
	panicking := SinkFunc("panicking", func(ctx context.Context, msg string) error {
		panic("boom")
	})
	bus := NewBus[string]("test-flush", 4, logger.NopLogger(), failing, panicking, rec.sink("ok"))

	bus.Publish("x")
	bus.Publish("y")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, bus.Run(ctx))

	got := rec.snapshot()
	assert.ElementsMatch(t, []string{"ok:x", "ok:y"}, got)
}
