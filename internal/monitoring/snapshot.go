// Package monitoring samples hub-wide metrics on a fixed tick, keeps a bounded
// history of snapshots and drives threshold alert rules over them.
package monitoring

import (
	"sort"
	"time"
)

type ConnectionMetrics struct {
	Total             int     `json:"total" bson:"total"`
	Active            int     `json:"active" bson:"active"`
	Idle              int     `json:"idle" bson:"idle"`
	Reconnections     int     `json:"reconnections" bson:"reconnections"`
	MessagesSent      uint64  `json:"messagesSent" bson:"messages_sent"`
	MessagesReceived  uint64  `json:"messagesReceived" bson:"messages_received"`
	BytesSent         uint64  `json:"bytesSent" bson:"bytes_sent"`
	BytesReceived     uint64  `json:"bytesReceived" bson:"bytes_received"`
	Dropped           uint64  `json:"dropped" bson:"dropped"`
	AvgLatencyMs      float64 `json:"avgLatencyMs" bson:"avg_latency_ms"`
	MessagesPerSecond float64 `json:"messagesPerSecond" bson:"messages_per_second"`
}

type SubscriptionMetrics struct {
	Total             int     `json:"total" bson:"total"`
	Active            int     `json:"active" bson:"active"`
	Paused            int     `json:"paused" bson:"paused"`
	Disconnected      int     `json:"disconnected" bson:"disconnected"`
	Error             int     `json:"error" bson:"error"`
	TotalMessages     uint64  `json:"totalMessages" bson:"total_messages"`
	Errors            uint64  `json:"errors" bson:"errors"`
	MessagesPerSecond float64 `json:"messagesPerSecond" bson:"messages_per_second"`
	AvgLatencyMs      float64 `json:"avgLatencyMs" bson:"avg_latency_ms"`
}

type QueueMetrics struct {
	Count               int     `json:"count" bson:"count"`
	TotalSize           int     `json:"totalSize" bson:"total_size"`
	Processed           uint64  `json:"processed" bson:"processed"`
	Errors              uint64  `json:"errors" bson:"errors"`
	Failed              uint64  `json:"failed" bson:"failed"`
	Expired             uint64  `json:"expired" bson:"expired"`
	Evicted             uint64  `json:"evicted" bson:"evicted"`
	Rejected            uint64  `json:"rejected" bson:"rejected"`
	RecentFailures      uint64  `json:"recentFailures" bson:"recent_failures"`
	ThroughputPerSecond float64 `json:"throughputPerSecond" bson:"throughput_per_second"`
}

type DispatcherMetrics struct {
	Published           uint64  `json:"published" bson:"published"`
	Matched             uint64  `json:"matched" bson:"matched"`
	Delivered           uint64  `json:"delivered" bson:"delivered"`
	Failed              uint64  `json:"failed" bson:"failed"`
	Queued              uint64  `json:"queued" bson:"queued"`
	Filtered            uint64  `json:"filtered" bson:"filtered"`
	Errors              uint64  `json:"errors" bson:"errors"`
	Pipelines           int     `json:"pipelines" bson:"pipelines"`
	EventsPerSecond     float64 `json:"eventsPerSecond" bson:"events_per_second"`
	DeliveriesPerSecond float64 `json:"deliveriesPerSecond" bson:"deliveries_per_second"`
	AvgPublishMs        float64 `json:"avgPublishMs" bson:"avg_publish_ms"`
}

type ResourceMetrics struct {
	CPUPercent     float64 `json:"cpuPercent" bson:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memoryRssBytes" bson:"memory_rss_bytes"`
	MemoryPercent  float64 `json:"memoryPercent" bson:"memory_percent"`
	Goroutines     int     `json:"goroutines" bson:"goroutines"`
}

// Snapshot is a point-in-time capture of hub-wide metrics. Counters are
// cumulative; rates and ErrorRate cover the interval since the previous tick.
type Snapshot struct {
	Timestamp     time.Time           `json:"timestamp" bson:"timestamp"`
	Connections   ConnectionMetrics   `json:"connections" bson:"connections"`
	Subscriptions SubscriptionMetrics `json:"subscriptions" bson:"subscriptions"`
	Queues        QueueMetrics        `json:"queues" bson:"queues"`
	Dispatcher    DispatcherMetrics   `json:"dispatcher" bson:"dispatcher"`
	ErrorRate     float64             `json:"errorRate" bson:"error_rate"`
	Resources     ResourceMetrics     `json:"resources" bson:"resources"`
	HealthScore   float64             `json:"healthScore" bson:"health_score"`
	HealthStatus  string              `json:"healthStatus" bson:"health_status"`
}

// Values flattens the snapshot into dot paths usable by alert rules, trends
// and the export format.
func (s Snapshot) Values() map[string]float64 {
	c, sub, q, d, r := s.Connections, s.Subscriptions, s.Queues, s.Dispatcher, s.Resources
	return map[string]float64{
		"connections.total":               float64(c.Total),
		"connections.active":              float64(c.Active),
		"connections.idle":                float64(c.Idle),
		"connections.reconnections":       float64(c.Reconnections),
		"connections.messages_sent":       float64(c.MessagesSent),
		"connections.messages_received":   float64(c.MessagesReceived),
		"connections.bytes_sent":          float64(c.BytesSent),
		"connections.bytes_received":      float64(c.BytesReceived),
		"connections.dropped":             float64(c.Dropped),
		"connections.avg_latency_ms":      c.AvgLatencyMs,
		"connections.messages_per_second": c.MessagesPerSecond,

		"subscriptions.total":               float64(sub.Total),
		"subscriptions.active":              float64(sub.Active),
		"subscriptions.paused":              float64(sub.Paused),
		"subscriptions.disconnected":        float64(sub.Disconnected),
		"subscriptions.error":               float64(sub.Error),
		"subscriptions.total_messages":      float64(sub.TotalMessages),
		"subscriptions.errors":              float64(sub.Errors),
		"subscriptions.messages_per_second": sub.MessagesPerSecond,
		"subscriptions.avg_latency_ms":      sub.AvgLatencyMs,

		"queues.count":                 float64(q.Count),
		"queues.total_size":            float64(q.TotalSize),
		"queues.processed":             float64(q.Processed),
		"queues.errors":                float64(q.Errors),
		"queues.failed":                float64(q.Failed),
		"queues.expired":               float64(q.Expired),
		"queues.evicted":               float64(q.Evicted),
		"queues.rejected":              float64(q.Rejected),
		"queues.recent_failures":       float64(q.RecentFailures),
		"queues.throughput_per_second": q.ThroughputPerSecond,

		"dispatcher.published":             float64(d.Published),
		"dispatcher.matched":               float64(d.Matched),
		"dispatcher.delivered":             float64(d.Delivered),
		"dispatcher.failed":                float64(d.Failed),
		"dispatcher.queued":                float64(d.Queued),
		"dispatcher.filtered":              float64(d.Filtered),
		"dispatcher.errors":                float64(d.Errors),
		"dispatcher.pipelines":             float64(d.Pipelines),
		"dispatcher.events_per_second":     d.EventsPerSecond,
		"dispatcher.deliveries_per_second": d.DeliveriesPerSecond,
		"dispatcher.avg_publish_ms":        d.AvgPublishMs,

		"resources.cpu_percent":      r.CPUPercent,
		"resources.memory_rss_bytes": float64(r.MemoryRSSBytes),
		"resources.memory_percent":   r.MemoryPercent,
		"resources.goroutines":       float64(r.Goroutines),

		"error_rate":   s.ErrorRate,
		"health_score": s.HealthScore,
	}
}

var metricPaths = func() []string {
	values := Snapshot{}.Values()
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}()

// MetricPaths lists every path accepted by rules and trends, sorted.
func MetricPaths() []string {
	out := make([]string, len(metricPaths))
	copy(out, metricPaths)
	return out
}

func KnownPath(path string) bool {
	i := sort.SearchStrings(metricPaths, path)
	return i < len(metricPaths) && metricPaths[i] == path
}

// rate returns the per-second change of a cumulative counter.
func rate(cur, prev uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 || cur < prev {
		return 0
	}
	return float64(cur-prev) / elapsed.Seconds()
}

// errorRate is the percentage of delivery attempts in the interval that failed.
func errorRate(cur, prev DispatcherMetrics) float64 {
	failures := delta(cur.Failed, prev.Failed) + delta(cur.Errors, prev.Errors)
	attempts := delta(cur.Delivered, prev.Delivered) + failures
	if attempts == 0 {
		return 0
	}
	return float64(failures) / float64(attempts) * 100
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
