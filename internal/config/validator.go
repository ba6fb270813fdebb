package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateHub(cfg.Hub); err != nil {
		errors = append(errors, err)
	}

	if err := validateConnection(cfg.Connection); err != nil {
		errors = append(errors, err)
	}

	if err := validateQueue(cfg.Queue, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateMonitoring(cfg.Monitoring, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, none)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.Retry.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.Retry.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.Retry.MaxInterval > 0 && cfg.Retry.InitialInterval > 0 && cfg.Retry.MaxInterval < cfg.Retry.InitialInterval {
		return &ValidationError{
			Field:   "broker.kafka.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Retry.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.kafka.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateHub(cfg HubConfig) error {
	if cfg.SubscriptionLimit < 1 {
		return &ValidationError{
			Field:   "hub.subscription_limit",
			Message: fmt.Sprintf("subscription limit must be positive, got %d", cfg.SubscriptionLimit),
		}
	}

	if cfg.InactivityTimeout < 0 {
		return &ValidationError{
			Field:   "hub.inactivity_timeout",
			Message: "inactivity timeout must be non-negative",
		}
	}

	if cfg.NotificationBufferSize < 1 {
		return &ValidationError{
			Field:   "hub.notification_buffer_size",
			Message: "notification buffer size must be positive",
		}
	}

	return nil
}

func validateConnection(cfg ConnectionConfig) error {
	if cfg.OutboundBufferSize < 1 {
		return &ValidationError{
			Field:   "connection.outbound_buffer_size",
			Message: "outbound buffer size must be positive",
		}
	}

	if cfg.PingPeriod <= 0 || cfg.PongWait <= 0 {
		return &ValidationError{
			Field:   "connection.ping_period",
			Message: "ping period and pong wait must be positive",
		}
	}

	if cfg.PingPeriod >= cfg.PongWait {
		return &ValidationError{
			Field:   "connection.ping_period",
			Message: "ping period must be shorter than pong wait",
		}
	}

	return nil
}

func validateQueue(cfg QueueConfig, db DatabaseConfig) error {
	validTypes := map[string]bool{
		"fifo": true, "priority": true, "broadcast": true, "topic": true, "fanout": true,
	}
	if !validTypes[strings.ToLower(cfg.Type)] {
		return &ValidationError{
			Field:   "queue.type",
			Message: fmt.Sprintf("invalid queue type: %s (valid: fifo, priority, broadcast, topic, fanout)", cfg.Type),
		}
	}

	if cfg.MaxSize < 1 {
		return &ValidationError{
			Field:   "queue.max_size",
			Message: "max size must be positive",
		}
	}

	if cfg.TTLSeconds < 1 {
		return &ValidationError{
			Field:   "queue.ttl_seconds",
			Message: "TTL must be positive",
		}
	}

	if cfg.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "queue.max_attempts",
			Message: "max attempts must be positive",
		}
	}

	validAlgorithms := map[string]bool{
		"md5": true, "sha256": true, "sha1": true,
	}
	if cfg.Dedup.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.Dedup.HashAlgorithm)] {
		return &ValidationError{
			Field:   "queue.dedup.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256, sha1)", cfg.Dedup.HashAlgorithm),
		}
	}

	switch cfg.Dedup.Backend {
	case "", "memory":
	case "redis":
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "queue.dedup.backend",
				Message: "redis dedup backend requires database.redis to be configured",
			}
		}
	default:
		return &ValidationError{
			Field:   "queue.dedup.backend",
			Message: fmt.Sprintf("invalid dedup backend: %s (valid: memory, redis)", cfg.Dedup.Backend),
		}
	}

	validOnError := map[string]bool{
		"allow": true, "reject": true,
	}
	if cfg.Dedup.OnRedisError != "" && !validOnError[strings.ToLower(cfg.Dedup.OnRedisError)] {
		return &ValidationError{
			Field:   "queue.dedup.on_redis_error",
			Message: fmt.Sprintf("invalid on_redis_error value: %s (valid: allow, reject)", cfg.Dedup.OnRedisError),
		}
	}

	return nil
}

func validateMonitoring(cfg MonitoringConfig, db DatabaseConfig) error {
	if cfg.TickInterval <= 0 {
		return &ValidationError{
			Field:   "monitoring.tick_interval",
			Message: "tick interval must be positive",
		}
	}

	if cfg.HistoryCapacity < 1 {
		return &ValidationError{
			Field:   "monitoring.history_capacity",
			Message: "history capacity must be positive",
		}
	}

	switch cfg.RuleStore {
	case "", "memory":
	case "postgres":
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "monitoring.rule_store",
				Message: "postgres rule store requires database.postgres to be configured",
			}
		}
	default:
		return &ValidationError{
			Field:   "monitoring.rule_store",
			Message: fmt.Sprintf("invalid rule store: %s (valid: memory, postgres)", cfg.RuleStore),
		}
	}

	if cfg.ArchiveEnabled && db.MongoDB.URI == "" {
		return &ValidationError{
			Field:   "monitoring.archive_enabled",
			Message: "snapshot archive requires database.mongodb to be configured",
		}
	}

	return nil
}
