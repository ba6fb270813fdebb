// Package connection tracks live client connections and their bounded
// outbound buffers.
package connection

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusTerminated   Status = "terminated"
)

// Transport is the write side of a client connection.
type Transport interface {
	WriteFrame(data []byte) error
	Ping() error
	Close() error
}

type Metrics struct {
	MessagesSent     uint64    `json:"messagesSent"`
	MessagesReceived uint64    `json:"messagesReceived"`
	BytesSent        uint64    `json:"bytesSent"`
	BytesReceived    uint64    `json:"bytesReceived"`
	Reconnections    int       `json:"reconnections"`
	AvgLatencyMs     float64   `json:"avgLatencyMs"`
	LastActivity     time.Time `json:"lastActivity"`
}

// Info is a point-in-time copy of a connection.
type Info struct {
	ID               string            `json:"id"`
	OwnerID          string            `json:"ownerId"`
	SessionID        string            `json:"sessionId"`
	Status           Status            `json:"status"`
	SubscribedTopics []string          `json:"subscribedTopics"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ConnectedAt      time.Time         `json:"connectedAt"`
	Idle             bool              `json:"idle"`
	Buffered         int               `json:"buffered"`
	Metrics          Metrics           `json:"metrics"`
}

type Options struct {
	ID            string
	OwnerID       string
	SessionID     string
	Metadata      map[string]string
	Reconnections int
	BufferSize    int
}

type outbound struct {
	data     []byte
	queuedAt time.Time
}

type Connection struct {
	id        string
	ownerID   string
	sessionID string
	transport Transport

	sendMu   sync.RWMutex
	closed   bool
	outbound chan outbound

	mu            sync.Mutex
	status        Status
	topics        map[string]struct{}
	metadata      map[string]string
	reconnections int
	idle          bool
	connectedAt   time.Time
	avgLatencyMs  float64

	sent         atomic.Uint64
	received     atomic.Uint64
	bytesSent    atomic.Uint64
	bytesRecv    atomic.Uint64
	lastActivity atomic.Int64
}

func NewConnection(opts Options, transport Transport) *Connection {
	size := opts.BufferSize
	if size <= 0 {
		size = 256
	}
	now := time.Now()
	c := &Connection{
		id:            opts.ID,
		ownerID:       opts.OwnerID,
		sessionID:     opts.SessionID,
		transport:     transport,
		outbound:      make(chan outbound, size),
		status:        StatusConnecting,
		topics:        make(map[string]struct{}),
		metadata:      opts.Metadata,
		reconnections: opts.Reconnections,
		connectedAt:   now,
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

func (c *Connection) ID() string        { return c.id }
func (c *Connection) OwnerID() string   { return c.ownerID }
func (c *Connection) SessionID() string { return c.sessionID }

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// enqueue never blocks; false means the buffer is full or closed.
func (c *Connection) enqueue(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.outbound <- outbound{data: data, queuedAt: time.Now()}:
		return true
	default:
		return false
	}
}

// close stops accepting frames; the write pump drains what is buffered and
// then closes the transport.
func (c *Connection) close(final Status) {
	c.sendMu.Lock()
	if !c.closed {
		c.closed = true
		close(c.outbound)
	}
	c.sendMu.Unlock()
	c.setStatus(final)
}

// WritePump writes buffered frames to the transport and pings the peer
// every pingPeriod. It returns when the buffer is closed or a write fails.
func (c *Connection) WritePump(pingPeriod time.Duration) {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.transport.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			if !ok {
				return
			}
			if err := c.transport.WriteFrame(msg.data); err != nil {
				c.setStatus(StatusError)
				return
			}
			c.recordSent(len(msg.data), time.Since(msg.queuedAt))

		case <-ticker.C:
			if err := c.transport.Ping(); err != nil {
				c.setStatus(StatusError)
				return
			}
		}
	}
}

func (c *Connection) recordSent(bytes int, latency time.Duration) {
	c.sent.Add(1)
	c.bytesSent.Add(uint64(bytes))
	c.lastActivity.Store(time.Now().UnixNano())

	ms := float64(latency.Microseconds()) / 1000
	c.mu.Lock()
	if c.avgLatencyMs == 0 {
		c.avgLatencyMs = ms
	} else {
		c.avgLatencyMs = 0.9*c.avgLatencyMs + 0.1*ms
	}
	c.mu.Unlock()
}

func (c *Connection) touch(bytes int, now time.Time) {
	c.received.Add(1)
	c.bytesRecv.Add(uint64(bytes))
	c.lastActivity.Store(now.UnixNano())
	c.mu.Lock()
	c.idle = false
	c.mu.Unlock()
}

func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Connection) Info() Info {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	var metadata map[string]string
	if c.metadata != nil {
		metadata = make(map[string]string, len(c.metadata))
		for k, v := range c.metadata {
			metadata[k] = v
		}
	}
	info := Info{
		ID:          c.id,
		OwnerID:     c.ownerID,
		SessionID:   c.sessionID,
		Status:      c.status,
		Metadata:    metadata,
		ConnectedAt: c.connectedAt,
		Idle:        c.idle,
		Metrics: Metrics{
			Reconnections: c.reconnections,
			AvgLatencyMs:  c.avgLatencyMs,
		},
	}
	c.mu.Unlock()

	sort.Strings(topics)
	info.SubscribedTopics = topics
	info.Buffered = len(c.outbound)
	info.Metrics.MessagesSent = c.sent.Load()
	info.Metrics.MessagesReceived = c.received.Load()
	info.Metrics.BytesSent = c.bytesSent.Load()
	info.Metrics.BytesReceived = c.bytesRecv.Load()
	info.Metrics.LastActivity = c.LastActivity()
	return info
}

// IsIdle reports whether a connection last active at lastActivity has been
// quiet for longer than threshold.
func IsIdle(lastActivity, now time.Time, threshold time.Duration) bool {
	return threshold > 0 && now.Sub(lastActivity) > threshold
}
