package connection

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/constants"
	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	block  chan struct{}
}

func (f *fakeTransport) WriteFrame(data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) Ping() error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) written() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestRegistry(bufferSize int) *Registry {
	return NewRegistry(config.ConnectionConfig{
		OutboundBufferSize: bufferSize,
		IdleTimeout:        time.Minute,
	}, logger.NopLogger())
}

func newTestConnection(id string, bufferSize int, tr Transport) *Connection {
	return NewConnection(Options{
		ID:         id,
		OwnerID:    "owner-1",
		SessionID:  "session-" + id,
		BufferSize: bufferSize,
	}, tr)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := newTestRegistry(4)
	conn := newTestConnection("c1", 4, &fakeTransport{})

	require.NoError(t, reg.Register(conn))

	info, err := reg.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, info.Status)
	assert.Equal(t, "owner-1", info.OwnerID)

	err = reg.Register(newTestConnection("c1", 4, &fakeTransport{}))
	assert.True(t, errors.IsConflict(err))

	_, err = reg.Get("missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_SendBackpressure(t *testing.T) {
	reg := newTestRegistry(2)
	conn := newTestConnection("c1", 2, &fakeTransport{})
	require.NoError(t, reg.Register(conn))

	frame := PongFrame("", time.Now())
	_, err := reg.Send("c1", frame)
	require.NoError(t, err)
	_, err = reg.Send("c1", frame)
	require.NoError(t, err)

	_, err = reg.Send("c1", frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackpressure)
	assert.Equal(t, uint64(1), reg.Stats().Dropped)

	_, err = reg.Send("missing", frame)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_WritePumpDrainsAfterUnregister(t *testing.T) {
	reg := newTestRegistry(8)
	tr := &fakeTransport{}
	conn := newTestConnection("c1", 8, tr)
	require.NoError(t, reg.Register(conn))

	event := models.NewEventBuilder().
		WithType("status_changed").
		WithTopic("terminal.t1.status").
		Build()
	frame, err := EventFrame("sub-1", event)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := reg.Send("c1", frame)
		require.NoError(t, err)
	}

	info, err := reg.Unregister("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, info.Status)

	done := make(chan struct{})
	go func() {
		conn.WritePump(time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not exit")
	}
	assert.Equal(t, 3, tr.written())
	assert.True(t, tr.closed)
	assert.Equal(t, uint64(3), conn.Info().Metrics.MessagesSent)

	_, err = reg.Send("c1", frame)
	assert.True(t, errors.IsNotFound(err))
}

func TestRegistry_Topics(t *testing.T) {
	reg := newTestRegistry(4)
	require.NoError(t, reg.Register(newTestConnection("c1", 4, &fakeTransport{})))

	require.NoError(t, reg.AddTopic("c1", "b.topic"))
	require.NoError(t, reg.AddTopic("c1", "a.topic"))
	require.NoError(t, reg.RemoveTopic("c1", "b.topic"))

	info, err := reg.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.topic"}, info.SubscribedTopics)

	assert.True(t, errors.IsNotFound(reg.AddTopic("nope", "x")))
}

func TestIsIdle(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		last      time.Time
		threshold time.Duration
		want      bool
	}{
		{name: "recent", last: now.Add(-10 * time.Second), threshold: time.Minute, want: false},
		{name: "exactly threshold", last: now.Add(-time.Minute), threshold: time.Minute, want: false},
		{name: "past threshold", last: now.Add(-2 * time.Minute), threshold: time.Minute, want: true},
		{name: "disabled", last: now.Add(-time.Hour), threshold: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIdle(tt.last, now, tt.threshold))
		})
	}
}

func TestRegistry_MarkIdleAndTouch(t *testing.T) {
	reg := newTestRegistry(4)
	require.NoError(t, reg.Register(newTestConnection("c1", 4, &fakeTransport{})))
	require.NoError(t, reg.Register(newTestConnection("c2", 4, &fakeTransport{})))

	later := time.Now().Add(5 * time.Minute)
	assert.Equal(t, 2, reg.MarkIdle(later))

	reg.Touch("c1", 42)
	info, err := reg.Get("c1")
	require.NoError(t, err)
	assert.False(t, info.Idle)
	assert.Equal(t, uint64(42), info.Metrics.BytesReceived)

	stats := reg.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 2, stats.ByStatus[StatusConnected])
}

func TestRegistry_FindBySessionAndCloseAll(t *testing.T) {
	reg := newTestRegistry(4)
	conn := newTestConnection("c1", 4, &fakeTransport{})
	require.NoError(t, reg.Register(conn))

	found, ok := reg.FindBySession("session-c1")
	require.True(t, ok)
	assert.Equal(t, "c1", found.ID())

	reg.CloseAll()
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, StatusTerminated, conn.Status())
}

func TestFrame_DecodeEncode(t *testing.T) {
	f, err := Decode([]byte(`{"type":"subscribe","requestId":"r1","data":{"topic":"a.*"}}`))
	require.NoError(t, err)
	assert.Equal(t, constants.FrameTypeSubscribe, f.Type)
	assert.Equal(t, "r1", f.RequestID)
	assert.JSONEq(t, `{"topic":"a.*"}`, string(f.Data))

	_, err = Decode([]byte(`{"requestId":"r1"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	data, err := Encode(ErrorFrame("r2", "VALIDATION_ERROR", "bad topic"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","requestId":"r2","code":"VALIDATION_ERROR","message":"bad topic"}`, string(data))
}
