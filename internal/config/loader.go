package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"eventhub/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and no
// infrastructure configured. Used by tests and embedded hubs.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15*time.Second)
	v.SetDefault("server.write_timeout_seconds", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("hub.subscription_limit", constants.DefaultSubscriptionLimit)
	v.SetDefault("hub.inactivity_timeout", 24*time.Hour)
	v.SetDefault("hub.inactivity_sweep", 5*time.Minute)
	v.SetDefault("hub.notification_buffer_size", 1024)
	v.SetDefault("hub.latency_window", 512)

	v.SetDefault("connection.outbound_buffer_size", constants.DefaultOutboundBufferSize)
	v.SetDefault("connection.idle_timeout", 5*time.Minute)
	v.SetDefault("connection.idle_check_interval", 30*time.Second)
	v.SetDefault("connection.ping_period", 30*time.Second)
	v.SetDefault("connection.pong_wait", 60*time.Second)
	v.SetDefault("connection.write_wait", 10*time.Second)
	v.SetDefault("connection.max_message_bytes", 64*1024)

	v.SetDefault("queue.type", "priority")
	v.SetDefault("queue.max_size", 1000)
	v.SetDefault("queue.ttl_seconds", 3600)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.poll_interval", 500*time.Millisecond)
	v.SetDefault("queue.sweep_interval", 30*time.Second)
	v.SetDefault("queue.dedup.backend", "memory")
	v.SetDefault("queue.dedup.hash_algorithm", "sha256")
	v.SetDefault("queue.dedup.on_redis_error", constants.DedupOnErrorAllow)
	v.SetDefault("queue.retry.initial_interval", time.Second)
	v.SetDefault("queue.retry.max_interval", 30*time.Second)
	v.SetDefault("queue.retry.multiplier", 2.0)

	v.SetDefault("monitoring.tick_interval", time.Minute)
	v.SetDefault("monitoring.history_capacity", constants.DefaultHistoryCapacity)
	v.SetDefault("monitoring.rule_store", "memory")

	v.SetDefault("channels.timeout", 10*time.Second)

	v.SetDefault("broker.type", "none")
	v.SetDefault("broker.kafka.group_id", "eventhub")
	v.SetDefault("broker.kafka.ingest_topic", "hub.events")
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)

	v.SetDefault("database.migrations_dir", "migrations/postgres")
	v.SetDefault("database.mongodb.snapshot_retention_hours", 168)

	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.cleanup_interval", 300)
	v.SetDefault("rate_limit.max_age", 600)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.ingest_topic", "BROKER_KAFKA_INGEST_TOPIC")
	viper.BindEnv("broker.kafka.lifecycle_topic", "BROKER_KAFKA_LIFECYCLE_TOPIC")
	viper.BindEnv("broker.kafka.alert_topic", "BROKER_KAFKA_ALERT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("hub.subscription_limit", "HUB_SUBSCRIPTION_LIMIT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
