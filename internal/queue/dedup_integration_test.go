//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/config"
	"eventhub/internal/logger"
	"eventhub/internal/testinfra"
	"eventhub/pkg/models"
)

func TestRedisDeduper(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	d := NewRedisDeduper(client, config.QueueDedupConfig{OnRedisError: "reject"}, config.CircuitBreakerConfig{Enabled: true}, logger.NopLogger())

	dup, err := d.Seen(ctx, "k1", time.Second)
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = d.Seen(ctx, "k1", time.Second)
	require.NoError(t, err)
	assert.True(t, dup)

	size, err := d.CacheSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	require.Eventually(t, func() bool {
		dup, err := d.Seen(ctx, "k1", time.Second)
		return err == nil && !dup
	}, 5*time.Second, 200*time.Millisecond)
}

func TestManager_RedisDedup(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	cfg := config.QueueConfig{
		Dedup: config.QueueDedupConfig{Backend: "redis", HashAlgorithm: "sha256"},
	}
	m := NewManager(cfg, NewRedisDeduper(client, cfg.Dedup, config.CircuitBreakerConfig{}, logger.NopLogger()), logger.NopLogger())

	event := models.NewEventBuilder().WithType("u").WithTopic("vessel.v1.eta").WithField("vesselId", "v1").Build()
	opts := Options{Dedup: &DedupConfig{KeyFields: []string{"data.vesselId"}, WindowSeconds: 30}}

	res, err := m.Enqueue(ctx, "sub-1", event, opts)
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	res, err = m.Enqueue(ctx, "sub-1", event, opts)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}
