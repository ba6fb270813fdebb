package subscription

import (
	"time"

	"eventhub/internal/filter"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
	StatusTerminated   Status = "terminated"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusDisconnected, StatusError, StatusTerminated:
		return true
	}
	return false
}

// counted reports whether the status counts towards the per-owner limit.
func (s Status) counted() bool {
	return s == StatusActive || s == StatusPaused
}

const DefaultType = "realtime"

type ThrottleStrategy string

const (
	ThrottleDrop     ThrottleStrategy = "drop"
	ThrottleBuffer   ThrottleStrategy = "buffer"
	ThrottleDebounce ThrottleStrategy = "debounce"
)

type ThrottleConfig struct {
	Strategy            ThrottleStrategy `json:"strategy"`
	MaxUpdatesPerSecond float64          `json:"maxUpdatesPerSecond"`
	BufferSize          int              `json:"bufferSize,omitempty"`
	DebounceMs          int              `json:"debounceMs,omitempty"`
}

type AggregateFunc string

const (
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
	AggCount AggregateFunc = "count"
	AggLast  AggregateFunc = "last"
	AggFirst AggregateFunc = "first"
)

func (f AggregateFunc) Valid() bool {
	switch f {
	case AggSum, AggAvg, AggMin, AggMax, AggCount, AggLast, AggFirst:
		return true
	}
	return false
}

// AggregationConfig reduces every event of a window into one. Fields maps a
// payload dot path to the function applied to it.
type AggregationConfig struct {
	WindowMs int                      `json:"windowMs"`
	GroupBy  string                   `json:"groupBy,omitempty"`
	Fields   map[string]AggregateFunc `json:"fields"`
}

type TransformType string

const (
	TransformMap    TransformType = "map"
	TransformFilter TransformType = "filter"
	TransformReduce TransformType = "reduce"
	TransformSort   TransformType = "sort"
	TransformGroup  TransformType = "group"
)

// Transform is one payload rewrite step. Which fields apply depends on Type:
//
//	map:    Mapping (target -> source path), Set, Remove, Expression into Target
//	filter: Filters
//	reduce: Field (array path), Key (element field), Reducer, Target
//	sort:   Field (array path), Key, Order
//	group:  Field (array path), Key, Target
type Transform struct {
	Type       TransformType          `json:"type"`
	Mapping    map[string]string      `json:"mapping,omitempty"`
	Set        map[string]interface{} `json:"set,omitempty"`
	Remove     []string               `json:"remove,omitempty"`
	Expression string                 `json:"expression,omitempty"`
	Filters    []filter.Predicate     `json:"filters,omitempty"`
	Field      string                 `json:"field,omitempty"`
	Key        string                 `json:"key,omitempty"`
	Reducer    AggregateFunc          `json:"reducer,omitempty"`
	Order      string                 `json:"order,omitempty"`
	Target     string                 `json:"target,omitempty"`
}

type DedupConfig struct {
	KeyFields     []string `json:"keyFields"`
	WindowSeconds int      `json:"windowSeconds"`
}

type PersistenceConfig struct {
	Enabled     bool         `json:"enabled"`
	QueueType   string       `json:"queueType,omitempty"`
	MaxSize     int          `json:"maxSize,omitempty"`
	TTLSeconds  int          `json:"ttlSeconds,omitempty"`
	MaxAttempts int          `json:"maxAttempts,omitempty"`
	Dedup       *DedupConfig `json:"dedup,omitempty"`
}

type Config struct {
	RefreshInterval int                `json:"refreshInterval,omitempty"`
	BufferSize      int                `json:"bufferSize,omitempty"`
	Compression     bool               `json:"compression,omitempty"`
	Throttle        *ThrottleConfig    `json:"throttle,omitempty"`
	Aggregation     *AggregationConfig `json:"aggregation,omitempty"`
	Transforms      []Transform        `json:"transforms,omitempty"`
	Persistence     *PersistenceConfig `json:"persistence,omitempty"`
}

func (c Config) Persistent() bool {
	return c.Persistence != nil && c.Persistence.Enabled
}

type LatencyStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type Metrics struct {
	TotalMessages     uint64       `json:"totalMessages"`
	MessagesPerSecond float64      `json:"messagesPerSecond"`
	Errors            uint64       `json:"errors"`
	BytesTransferred  uint64       `json:"bytesTransferred"`
	Latency           LatencyStats `json:"latency"`
}

// Subscription is the read model returned by the store. Values are copies;
// mutating one has no effect on the store.
type Subscription struct {
	ID           string             `json:"id"`
	OwnerID      string             `json:"ownerId"`
	SessionID    string             `json:"sessionId"`
	ConnectionID string             `json:"connectionId,omitempty"`
	Type         string             `json:"type"`
	TopicPattern string             `json:"topic"`
	Filters      []filter.Predicate `json:"filters,omitempty"`
	Expression   string             `json:"expression,omitempty"`
	Config       Config             `json:"config"`
	Status       Status             `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActivity time.Time          `json:"lastActivity"`
	Generation   uint64             `json:"generation"`
	Metrics      Metrics            `json:"metrics"`
}

type CreateRequest struct {
	OwnerID      string             `json:"ownerId" binding:"required"`
	SessionID    string             `json:"sessionId" binding:"required"`
	ConnectionID string             `json:"connectionId,omitempty"`
	Type         string             `json:"type"`
	Topic        string             `json:"topic" binding:"required"`
	Filters      []filter.Predicate `json:"filters"`
	Expression   string             `json:"expression"`
	Config       Config             `json:"config"`
	Dedup        bool               `json:"dedup"`
}

// UpdateRequest patches a subscription; nil fields are left untouched.
type UpdateRequest struct {
	Status     *Status             `json:"status"`
	Filters    *[]filter.Predicate `json:"filters"`
	Expression *string             `json:"expression"`
	Config     *Config             `json:"config"`
}

type ListFilter struct {
	Status Status
	Topic  string
}
