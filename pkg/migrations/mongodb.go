package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureSnapshotCollection creates the indexes used by the metrics archive.
// Documents expire retention after their timestamp.
func EnsureSnapshotCollection(ctx context.Context, db *mongo.Database, collectionName string, retention time.Duration) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().
				SetName("idx_" + collectionName + "_timestamp_ttl").
				SetExpireAfterSeconds(int32(retention.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "health_score", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_" + collectionName + "_health_timestamp"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
