//go:build integration

package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventhub/internal/testinfra"
	"eventhub/pkg/models"
)

func TestPostgresAuditSink(t *testing.T) {
	db := testinfra.Postgres(t)
	sink := NewPostgresAuditSink(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, eventType := range []string{models.EventTypeSubscriptionCreated, models.EventTypeSubscriptionPaused} {
		err := sink.Handle(ctx, models.LifecycleEvent{
			EventType:      eventType,
			SubscriptionID: "sub-1",
			OwnerID:        "user-1",
			SessionID:      "sess-1",
			TopicPattern:   "terminal.*.status",
			Status:         "active",
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Metadata:       map[string]interface{}{"generation": i + 1},
		})
		require.NoError(t, err)
	}

	history, err := sink.History(ctx, "sub-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.EventTypeSubscriptionCreated, history[0].EventType)
	assert.Equal(t, models.EventTypeSubscriptionPaused, history[1].EventType)
	assert.Equal(t, "user-1", history[0].OwnerID)
}
