package queue

import (
	"time"

	"eventhub/pkg/models"
)

type Type string

const (
	TypeFIFO      Type = "fifo"
	TypePriority  Type = "priority"
	TypeBroadcast Type = "broadcast"
	TypeTopic     Type = "topic"
	TypeFanout    Type = "fanout"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFIFO, TypePriority, TypeBroadcast, TypeTopic, TypeFanout:
		return true
	}
	return false
}

// evicts reports whether a full queue of this type makes room instead of
// rejecting.
func (t Type) evicts() bool {
	return t == TypeFIFO || t == TypePriority
}

type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusDraining Status = "draining"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

type MessageStatus string

const (
	MessagePending    MessageStatus = "pending"
	MessageProcessing MessageStatus = "processing"
	MessageCompleted  MessageStatus = "completed"
	MessageFailed     MessageStatus = "failed"
	MessageExpired    MessageStatus = "expired"
)

type DedupConfig struct {
	KeyFields     []string `json:"keyFields"`
	WindowSeconds int      `json:"windowSeconds"`
}

type Config struct {
	MaxSize     int          `json:"maxSize"`
	TTLSeconds  int          `json:"ttlSeconds"`
	MaxAttempts int          `json:"maxAttempts"`
	Persistent  bool         `json:"persistent"`
	Compression bool         `json:"compression"`
	Dedup       *DedupConfig `json:"dedup,omitempty"`
}

type Metrics struct {
	Size                int     `json:"size"`
	ThroughputPerSecond float64 `json:"throughputPerSecond"`
	AvgProcessingTimeMs float64 `json:"avgProcessingTimeMs"`
	TotalProcessed      uint64  `json:"totalProcessed"`
	Errors              uint64  `json:"errors"`
	Failed              uint64  `json:"failed"`
	Expired             uint64  `json:"expired"`
	Evicted             uint64  `json:"evicted"`
	Rejected            uint64  `json:"rejected"`
	Duplicates          uint64  `json:"duplicates"`
}

// Message is an event held for asynchronous delivery to one subscription.
type Message struct {
	ID             string        `json:"id"`
	QueueID        string        `json:"queueId"`
	SubscriptionID string        `json:"subscriptionId"`
	Event          models.Event  `json:"event"`
	Priority       int           `json:"priority"`
	EnqueuedAt     time.Time     `json:"enqueuedAt"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"maxAttempts"`
	NextAttemptAt  time.Time     `json:"nextAttemptAt"`
	Status         MessageStatus `json:"status"`
	LastError      string        `json:"lastError,omitempty"`

	seq   uint64
	index int
}

// Info is a copy of a queue's state.
type Info struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic"`
	Type          Type      `json:"type"`
	Config        Config    `json:"config"`
	Metrics       Metrics   `json:"metrics"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	LastEnqueueAt time.Time `json:"lastEnqueueAt"`
	Subscriptions int       `json:"subscriptions"`
}

// Options describe the queue a message should land in. Zero values fall back
// to the queue section of the configuration.
type Options struct {
	Type        Type
	MaxSize     int
	TTLSeconds  int
	MaxAttempts int
	Persistent  bool
	Dedup       *DedupConfig
}

type EnqueueResult struct {
	MessageID string `json:"messageId,omitempty"`
	QueueID   string `json:"queueId"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
	Evicted   string `json:"evicted,omitempty"`
}

type Stats struct {
	Queues     int            `json:"queues"`
	ByStatus   map[Status]int `json:"byStatus"`
	TotalSize  int            `json:"totalSize"`
	Processed  uint64         `json:"processed"`
	Errors     uint64         `json:"errors"`
	Failed     uint64         `json:"failed"`
	Expired    uint64         `json:"expired"`
	Evicted    uint64         `json:"evicted"`
	Rejected   uint64         `json:"rejected"`
	Duplicates uint64         `json:"duplicates"`
	Throughput float64        `json:"throughputPerSecond"`
}
