package constants

import "time"

const (
	ServiceName = "hub-service"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "hub:dedup:"
)

const (
	DefaultMongoDBName        = "eventhub"
	SnapshotCollection        = "metric_snapshots"
	DefaultSubscriptionLimit  = 50
	DefaultHistoryCapacity    = 1440
	DefaultOutboundBufferSize = 256
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Connection protocol frame types.
const (
	FrameTypePing        = "ping"
	FrameTypePong        = "pong"
	FrameTypeSubscribe   = "subscribe"
	FrameTypeUnsubscribe = "unsubscribe"
	FrameTypeEvent       = "event"
	FrameTypeAck         = "ack"
	FrameTypeError       = "error"
	FrameTypeWelcome     = "welcome"
)

const (
	AlertTopicPrefix = "system.alerts"
)

const (
	DedupOnErrorAllow  = "allow"
	DedupOnErrorReject = "reject"
)
