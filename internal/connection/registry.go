package connection

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/metrics"
)

// ErrBackpressure is returned by Send when a connection's outbound buffer is
// full. The frame is dropped.
var ErrBackpressure = errors.NewError("BACKPRESSURE", "outbound buffer full", 503)

type Stats struct {
	Total            int            `json:"total"`
	Idle             int            `json:"idle"`
	ByStatus         map[Status]int `json:"byStatus"`
	Buffered         int            `json:"buffered"`
	MessagesSent     uint64         `json:"messagesSent"`
	MessagesReceived uint64         `json:"messagesReceived"`
	BytesSent        uint64         `json:"bytesSent"`
	BytesReceived    uint64         `json:"bytesReceived"`
	Reconnections    int            `json:"reconnections"`
	AvgLatencyMs     float64        `json:"avgLatencyMs"`
	Dropped          uint64         `json:"dropped"`
}

type Registry struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	cfg     config.ConnectionConfig
	log     logger.Logger
	dropped atomic.Uint64
}

func NewRegistry(cfg config.ConnectionConfig, log logger.Logger) *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		cfg:   cfg,
		log:   logger.Named(log, "connections"),
	}
}

func (r *Registry) BufferSize() int {
	return r.cfg.OutboundBufferSize
}

// Register adds c and marks it connected.
func (r *Registry) Register(c *Connection) error {
	if c == nil || c.ID() == "" {
		return errors.ErrValidation.WithDetail("message", "connection id is required")
	}

	r.mu.Lock()
	if _, exists := r.conns[c.ID()]; exists {
		r.mu.Unlock()
		return errors.ErrConflict.
			WithDetail("connection_id", c.ID()).
			WithDetail("message", fmt.Sprintf("connection %s already registered", c.ID()))
	}
	r.conns[c.ID()] = c
	r.mu.Unlock()

	c.setStatus(StatusConnected)
	r.log.Infow("Connection registered",
		"connection_id", c.ID(),
		"owner_id", c.OwnerID(),
		"session_id", c.SessionID(),
	)
	return nil
}

// Unregister removes the connection and closes its outbound buffer. Frames
// already buffered are still flushed by the write pump.
func (r *Registry) Unregister(id string) (Info, error) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return Info{}, notFound(id)
	}

	status := StatusDisconnected
	if c.Status() == StatusError {
		status = StatusError
	}
	c.close(status)

	info := c.Info()
	r.log.Infow("Connection unregistered",
		"connection_id", id,
		"status", string(status),
		"messages_sent", info.Metrics.MessagesSent,
	)
	return info, nil
}

func (r *Registry) Connection(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Get(id string) (Info, error) {
	c, ok := r.Connection(id)
	if !ok {
		return Info{}, notFound(id)
	}
	return c.Info(), nil
}

// Send encodes f and places it in the connection's outbound buffer without
// blocking. It returns the encoded size.
func (r *Registry) Send(id string, f Frame) (int, error) {
	c, ok := r.Connection(id)
	if !ok {
		return 0, notFound(id)
	}

	data, err := Encode(f)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrInternal)
	}

	if !c.enqueue(data) {
		r.dropped.Add(1)
		return 0, ErrBackpressure.WithDetail("connection_id", id)
	}
	return len(data), nil
}

// FindBySession returns the live connection of a session, if any.
func (r *Registry) FindBySession(sessionID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.SessionID() == sessionID {
			return c, true
		}
	}
	return nil, false
}

func (r *Registry) AddTopic(id, topic string) error {
	c, ok := r.Connection(id)
	if !ok {
		return notFound(id)
	}
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (r *Registry) RemoveTopic(id, topic string) error {
	c, ok := r.Connection(id)
	if !ok {
		return notFound(id)
	}
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
	return nil
}

// Touch records inbound traffic of the given size.
func (r *Registry) Touch(id string, bytes int) {
	if c, ok := r.Connection(id); ok {
		c.touch(bytes, time.Now())
	}
}

// MarkIdle flags connections quiet for longer than the idle timeout and
// returns how many are idle.
func (r *Registry) MarkIdle(now time.Time) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	idle := 0
	for _, c := range conns {
		isIdle := IsIdle(c.LastActivity(), now, r.cfg.IdleTimeout)
		c.mu.Lock()
		c.idle = isIdle
		c.mu.Unlock()
		if isIdle {
			idle++
		}
	}
	metrics.SetConnections(len(conns), idle)
	return idle
}

// Snapshot returns copies of all connections ordered by id.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Stats() Stats {
	infos := r.Snapshot()
	stats := Stats{
		Total:    len(infos),
		ByStatus: make(map[Status]int),
	}
	var latencySum float64
	for _, info := range infos {
		stats.ByStatus[info.Status]++
		if info.Idle {
			stats.Idle++
		}
		stats.Buffered += info.Buffered
		stats.MessagesSent += info.Metrics.MessagesSent
		stats.MessagesReceived += info.Metrics.MessagesReceived
		stats.BytesSent += info.Metrics.BytesSent
		stats.BytesReceived += info.Metrics.BytesReceived
		stats.Reconnections += info.Metrics.Reconnections
		latencySum += info.Metrics.AvgLatencyMs
	}
	if len(infos) > 0 {
		stats.AvgLatencyMs = latencySum / float64(len(infos))
	}
	stats.Dropped = r.dropped.Load()
	return stats
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll terminates every connection, used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.close(StatusTerminated)
	}
	if len(conns) > 0 {
		r.log.Infow("Closed all connections", "count", len(conns))
	}
}

func notFound(id string) error {
	return errors.ErrNotFound.
		WithDetail("connection_id", id).
		WithDetail("message", fmt.Sprintf("connection %s not found", id))
}
