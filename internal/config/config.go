package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Hub            HubConfig            `mapstructure:"hub"`
	Connection     ConnectionConfig     `mapstructure:"connection"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Channels       ChannelsConfig       `mapstructure:"channels"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Broker         BrokerConfig         `mapstructure:"broker"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HubConfig struct {
	SubscriptionLimit      int           `mapstructure:"subscription_limit"`
	InactivityTimeout      time.Duration `mapstructure:"inactivity_timeout"`
	InactivitySweep        time.Duration `mapstructure:"inactivity_sweep"`
	NotificationBufferSize int           `mapstructure:"notification_buffer_size"`
	LatencyWindow          int           `mapstructure:"latency_window"`
}

type ConnectionConfig struct {
	OutboundBufferSize int           `mapstructure:"outbound_buffer_size"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	IdleCheckInterval  time.Duration `mapstructure:"idle_check_interval"`
	PingPeriod         time.Duration `mapstructure:"ping_period"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes"`
}

type QueueConfig struct {
	Type          string           `mapstructure:"type"`
	MaxSize       int              `mapstructure:"max_size"`
	TTLSeconds    int              `mapstructure:"ttl_seconds"`
	MaxAttempts   int              `mapstructure:"max_attempts"`
	PollInterval  time.Duration    `mapstructure:"poll_interval"`
	SweepInterval time.Duration    `mapstructure:"sweep_interval"`
	Dedup         QueueDedupConfig `mapstructure:"dedup"`
	Retry         RetryConfig      `mapstructure:"retry"`
}

type QueueDedupConfig struct {
	Backend       string   `mapstructure:"backend"` // "memory" or "redis"
	HashAlgorithm string   `mapstructure:"hash_algorithm"`
	KeyFields     []string `mapstructure:"key_fields"`
	WindowSeconds int      `mapstructure:"window_seconds"`
	OnRedisError  string   `mapstructure:"on_redis_error"` // "allow" or "reject"
}

type MonitoringConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
	RuleStore       string        `mapstructure:"rule_store"` // "memory" or "postgres"
	ArchiveEnabled  bool          `mapstructure:"archive_enabled"`
	AlertTopic      string        `mapstructure:"alert_topic"`
}

type ChannelsConfig struct {
	Webhooks map[string]string `mapstructure:"webhooks"`
	Timeout  time.Duration     `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
	MongoDB       MongoDBConfig  `mapstructure:"mongodb"`
	RunMigrations bool           `mapstructure:"run_migrations"`
	MigrationsDir string         `mapstructure:"migrations_dir"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI                  string `mapstructure:"uri"`
	Database             string `mapstructure:"database"`
	SnapshotRetentionHrs int    `mapstructure:"snapshot_retention_hours"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers        []string    `mapstructure:"brokers"`
	GroupID        string      `mapstructure:"group_id"`
	IngestTopic    string      `mapstructure:"ingest_topic"`
	LifecycleTopic string      `mapstructure:"lifecycle_topic"`
	AlertTopic     string      `mapstructure:"alert_topic"`
	DLQTopic       string      `mapstructure:"dlq_topic"`
	Retry          RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func (c BrokerConfig) Enabled() bool {
	return c.Type != "" && c.Type != "none"
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
