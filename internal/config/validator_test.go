package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantField string
	}{
		{
			name:   "defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:      "bad port",
			mutate:    func(cfg *Config) { cfg.Server.Port = 0 },
			wantField: "server.port",
		},
		{
			name:      "zero subscription limit",
			mutate:    func(cfg *Config) { cfg.Hub.SubscriptionLimit = 0 },
			wantField: "hub.subscription_limit",
		},
		{
			name: "ping not shorter than pong",
			mutate: func(cfg *Config) {
				cfg.Connection.PingPeriod = cfg.Connection.PongWait
			},
			wantField: "connection.ping_period",
		},
		{
			name:      "redis dedup without redis",
			mutate:    func(cfg *Config) { cfg.Queue.Dedup.Backend = "redis" },
			wantField: "queue.dedup.backend",
		},
		{
			name:      "postgres rules without postgres",
			mutate:    func(cfg *Config) { cfg.Monitoring.RuleStore = "postgres" },
			wantField: "monitoring.rule_store",
		},
		{
			name:      "archive without mongo",
			mutate:    func(cfg *Config) { cfg.Monitoring.ArchiveEnabled = true },
			wantField: "monitoring.archive_enabled",
		},
		{
			name: "kafka without brokers",
			mutate: func(cfg *Config) {
				cfg.Broker.Type = "kafka"
			},
			wantField: "broker.kafka.brokers",
		},
		{
			name:      "unknown broker",
			mutate:    func(cfg *Config) { cfg.Broker.Type = "rabbitmq" },
			wantField: "broker.type",
		},
		{
			name: "bad mongo uri",
			mutate: func(cfg *Config) {
				cfg.Database.MongoDB.URI = "http://localhost"
				cfg.Database.MongoDB.Database = "hub"
			},
			wantField: "database.mongodb.uri",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantField)
			}
		})
	}
}
