package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"eventhub/internal/broker"
	"eventhub/internal/constants"
	"eventhub/internal/logger"
	"eventhub/internal/notify"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

// LogSink writes every lifecycle notification to the service log.
func LogSink(log logger.Logger) notify.Sink[models.LifecycleEvent] {
	return notify.SinkFunc("log", func(ctx context.Context, e models.LifecycleEvent) error {
		log.Infow("Subscription lifecycle",
			"event_type", e.EventType,
			"subscription_id", e.SubscriptionID,
			"owner_id", e.OwnerID,
			"topic", e.TopicPattern,
			"status", e.Status,
			"reason", e.Reason,
		)
		return nil
	})
}

// KafkaSink publishes lifecycle notifications to the lifecycle topic, keyed
// by subscription so one subscription's history stays ordered.
type KafkaSink struct {
	producer broker.Producer
	topic    string
}

func NewKafkaSink(producer broker.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Handle(ctx context.Context, e models.LifecycleEvent) error {
	if s.producer == nil || s.topic == "" {
		return nil
	}
	if err := s.producer.Publish(ctx, s.topic, e.SubscriptionID, e); err != nil {
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	return nil
}

// PostgresAuditSink appends lifecycle notifications to subscription_audit_logs.
type PostgresAuditSink struct {
	db *sql.DB
}

func NewPostgresAuditSink(db *sql.DB) *PostgresAuditSink {
	return &PostgresAuditSink{db: db}
}

func (s *PostgresAuditSink) Name() string {
	return "postgres_audit"
}

func (s *PostgresAuditSink) Handle(ctx context.Context, e models.LifecycleEvent) error {
	query := `
		INSERT INTO subscription_audit_logs (event_type, subscription_id, owner_id, session_id, topic_pattern, status, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}

	var sessionID *string
	if e.SessionID != "" {
		sessionID = &e.SessionID
	}

	var reason *string
	if e.Reason != "" {
		reason = &e.Reason
	}

	timestamp := time.Now()
	if !e.Timestamp.IsZero() {
		timestamp = e.Timestamp
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, query,
		e.EventType, e.SubscriptionID, e.OwnerID, sessionID,
		e.TopicPattern, e.Status, reason, metadataJSON, timestamp,
	)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "postgres", "insert_audit", time.Since(start))

	if err != nil {
		metrics.IncDatabaseQuery(constants.ServiceName, "postgres", "insert_audit", "error")
		return fmt.Errorf("failed to log audit entry: %w", err)
	}
	metrics.IncDatabaseQuery(constants.ServiceName, "postgres", "insert_audit", "success")
	return nil
}

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	EventType      string    `json:"event_type"`
	SubscriptionID string    `json:"subscription_id"`
	OwnerID        string    `json:"owner_id"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// History returns the audit trail of a subscription, oldest first.
func (s *PostgresAuditSink) History(ctx context.Context, subscriptionID string) ([]AuditEntry, error) {
	query := `
		SELECT event_type, subscription_id, owner_id, status, COALESCE(reason, ''), created_at
		FROM subscription_audit_logs
		WHERE subscription_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.EventType, &e.SubscriptionID, &e.OwnerID, &e.Status, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
