package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
hub:
  subscription_limit: 10
queue:
  type: fifo
  ttl_seconds: 120
monitoring:
  tick_interval: 30s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Hub.SubscriptionLimit)
	assert.Equal(t, "fifo", cfg.Queue.Type)
	assert.Equal(t, 120, cfg.Queue.TTLSeconds)
	assert.Equal(t, 1000, cfg.Queue.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Monitoring.TickInterval)
	assert.Equal(t, 1440, cfg.Monitoring.HistoryCapacity)
	assert.Equal(t, 256, cfg.Connection.OutboundBufferSize)
	assert.False(t, cfg.Broker.Enabled())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, `
broker:
  type: kafka
  kafka:
    brokers: ["file-broker:9092"]
    group_id: hub
`)
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("HUB_SUBSCRIPTION_LIMIT", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 7, cfg.Hub.SubscriptionLimit)
	assert.True(t, cfg.Broker.Enabled())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
queue:
  type: lifo
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.type")
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateStatic(cfg))
	assert.Equal(t, 50, cfg.Hub.SubscriptionLimit)
	assert.Equal(t, time.Minute, cfg.Monitoring.TickInterval)
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "hub.yaml"))
	require.NoError(t, err)

	assert.True(t, cfg.Broker.Enabled())
	assert.Equal(t, "redis", cfg.Queue.Dedup.Backend)
	assert.Equal(t, "postgres", cfg.Monitoring.RuleStore)
	assert.True(t, cfg.Monitoring.ArchiveEnabled)
	assert.Equal(t, "http://notifier:8090/email", cfg.Channels.Webhooks["email"])
}
