//go:build integration

package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/testinfra"
	"eventhub/pkg/errors"
	"eventhub/pkg/migrations"
	"eventhub/pkg/models"
)

func TestPostgresRuleRepository(t *testing.T) {
	repo := NewPostgresRuleRepository(testinfra.Postgres(t))
	ctx := context.Background()

	created := time.Now().UTC().Truncate(time.Millisecond)
	rule := Rule{
		ID:                 "rule-1",
		Name:               "queue backlog",
		MetricPath:         "queues.total_size",
		Operator:           OperatorGT,
		Threshold:          1000,
		MinDurationMinutes: 5,
		Severity:           SeverityCritical,
		Enabled:            true,
		Actions: []models.AlertAction{
			{Type: ActionPublish},
			{Type: ActionChannel, Channel: "email", Target: "ops@example.com"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	require.NoError(t, repo.CreateRule(ctx, rule))
	assert.True(t, errors.IsConflict(repo.CreateRule(ctx, rule)))

	got, err := repo.GetRule(ctx, "rule-1")
	require.NoError(t, err)
	assert.Equal(t, rule.Name, got.Name)
	assert.Equal(t, rule.Actions, got.Actions)
	assert.Equal(t, 5, got.MinDurationMinutes)

	rule.Threshold = 2000
	rule.Enabled = false
	rule.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, repo.UpdateRule(ctx, rule))

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 2000.0, rules[0].Threshold)
	assert.False(t, rules[0].Enabled)

	require.NoError(t, repo.DeleteRule(ctx, "rule-1"))
	_, err = repo.GetRule(ctx, "rule-1")
	assert.True(t, errors.IsNotFound(err))
	assert.True(t, errors.IsNotFound(repo.UpdateRule(ctx, rule)))
}

func TestEngineWithPostgresRules(t *testing.T) {
	te := newTestEngine(t)
	te.rules = NewPostgresRuleRepository(testinfra.Postgres(t))
	ctx := context.Background()

	_, err := te.CreateRule(ctx, RuleRequest{
		Name:       "backlog",
		MetricPath: "queues.total_size",
		Operator:   OperatorGT,
		Threshold:  10,
	})
	require.NoError(t, err)

	te.queueSize = 20
	te.Tick(ctx)
	assert.Len(t, te.ActiveAlerts(ctx), 1)
}

func TestMongoArchive(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	require.NoError(t, migrations.EnsureSnapshotCollection(ctx, db, SnapshotCollection, 24*time.Hour))

	archive := NewMongoArchive(db)
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		err := archive.Archive(ctx, Snapshot{
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			Queues:      QueueMetrics{TotalSize: i * 10},
			HealthScore: 100,
		})
		require.NoError(t, err)
	}

	got, err := archive.Range(ctx, base.Add(time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Queues.TotalSize)
	assert.Equal(t, 20, got[1].Queues.TotalSize)
}
