package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_published_total",
			Help: "Total number of events accepted or rejected by publish (count)",
		},
		[]string{"status"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_deliveries_total",
			Help: "Total number of per-subscription delivery outcomes (count)",
		},
		[]string{"outcome"},
	)

	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hub_delivery_latency_ms",
			Help:    "Latency from event timestamp to transport hand-off in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"path"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_publish_duration_ms",
			Help:    "Time spent fanning one event out to matching subscriptions in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	ThrottleDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_throttle_decisions_total",
			Help: "Throttle outcomes per strategy (count)",
		},
		[]string{"strategy", "decision"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connections_active",
			Help: "Number of registered connections (count)",
		},
	)

	IdleConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connections_idle",
			Help: "Number of connections past the idle threshold (count)",
		},
	)

	SubscriptionsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_subscriptions",
			Help: "Number of subscriptions per status (count)",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_queue_depth",
			Help: "Pending messages per queue topic (count)",
		},
		[]string{"topic"},
	)

	QueueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_queue_messages_total",
			Help: "Queue message outcomes (count)",
		},
		[]string{"outcome"},
	)

	QueueProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_queue_processing_duration_ms",
			Help:    "Time from enqueue to successful delivery in milliseconds",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 30000, 60000},
		},
	)

	AlertTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_alert_transitions_total",
			Help: "Alert state machine transitions (count)",
		},
		[]string{"rule", "kind"},
	)

	ActiveAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_alerts_active",
			Help: "Number of alert rules currently triggered (count)",
		},
	)

	HealthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_health_score",
			Help: "Hub health score (0 to 100)",
		},
	)

	NotificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_notifications_dropped_total",
			Help: "Lifecycle/alert notifications dropped because the bus was full (count)",
		},
		[]string{"bus"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Database query duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterHubMetrics() {
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryLatency)
	prometheus.MustRegister(PublishDuration)
	prometheus.MustRegister(ThrottleDecisionsTotal)
	prometheus.MustRegister(ActiveConnections)
	prometheus.MustRegister(IdleConnections)
	prometheus.MustRegister(SubscriptionsByStatus)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueMessagesTotal)
	prometheus.MustRegister(QueueProcessingDuration)
	prometheus.MustRegister(AlertTransitionsTotal)
	prometheus.MustRegister(ActiveAlerts)
	prometheus.MustRegister(HealthScore)
	prometheus.MustRegister(NotificationsDroppedTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func IncPublished(status string) {
	EventsPublishedTotal.WithLabelValues(status).Inc()
}

func IncDelivery(outcome string) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
}

func ObserveDeliveryLatency(path string, latency time.Duration) {
	DeliveryLatency.WithLabelValues(path).Observe(float64(latency.Microseconds()) / 1000)
}

func ObservePublishDuration(duration time.Duration) {
	PublishDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func IncThrottleDecision(strategy, decision string) {
	ThrottleDecisionsTotal.WithLabelValues(strategy, decision).Inc()
}

func SetConnections(active, idle int) {
	ActiveConnections.Set(float64(active))
	IdleConnections.Set(float64(idle))
}

func SetSubscriptions(status string, count int) {
	SubscriptionsByStatus.WithLabelValues(status).Set(float64(count))
}

func SetQueueDepth(topic string, depth int) {
	QueueDepth.WithLabelValues(topic).Set(float64(depth))
}

func DeleteQueueDepth(topic string) {
	QueueDepth.DeleteLabelValues(topic)
}

func IncQueueMessage(outcome string) {
	QueueMessagesTotal.WithLabelValues(outcome).Inc()
}

func ObserveQueueProcessing(duration time.Duration) {
	QueueProcessingDuration.Observe(float64(duration.Milliseconds()))
}

func IncAlertTransition(rule, kind string) {
	AlertTransitionsTotal.WithLabelValues(rule, kind).Inc()
}

func SetActiveAlerts(count int) {
	ActiveAlerts.Set(float64(count))
}

func SetHealthScore(score float64) {
	HealthScore.Set(score)
}

func IncNotificationDropped(bus string) {
	NotificationsDroppedTotal.WithLabelValues(bus).Inc()
}

func IncFallbackUsage(service, strategy, reason string) {
	FallbackUsageTotal.WithLabelValues(service, strategy, reason).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
