package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventhub/internal/constants"
	"eventhub/pkg/metrics"
)

const SnapshotCollection = constants.SnapshotCollection

type Archive interface {
	Archive(ctx context.Context, s Snapshot) error
}

// MongoArchive keeps snapshots beyond the in-memory history. Retention is
// enforced by the TTL index from migrations.EnsureSnapshotCollection.
type MongoArchive struct {
	collection *mongo.Collection
}

func NewMongoArchive(db *mongo.Database) *MongoArchive {
	return &MongoArchive{collection: db.Collection(SnapshotCollection)}
}

func (a *MongoArchive) Archive(ctx context.Context, s Snapshot) error {
	start := time.Now()
	_, err := a.collection.InsertOne(ctx, s)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "mongodb", "insert_snapshot", time.Since(start))
	if err != nil {
		metrics.IncDatabaseQuery(constants.ServiceName, "mongodb", "insert_snapshot", "error")
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}
	metrics.IncDatabaseQuery(constants.ServiceName, "mongodb", "insert_snapshot", "success")
	return nil
}

// Range returns archived snapshots taken in [from, to), oldest first.
func (a *MongoArchive) Range(ctx context.Context, from, to time.Time) ([]Snapshot, error) {
	filter := bson.M{"timestamp": bson.M{"$gte": from, "$lt": to}}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []Snapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}
	return snapshots, nil
}
