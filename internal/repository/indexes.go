package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the unique indexes the lobby relies on. Codes are
// stored upper-cased so a plain unique index gives case-insensitive codes.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	rooms := []mongo.IndexModel{
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "hostId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "lastActivityAt", Value: 1}}},
	}
	if _, err := db.Collection("rooms").Indexes().CreateMany(ctx, rooms); err != nil {
		return fmt.Errorf("rooms indexes: %w", err)
	}

	memberships := []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "position", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	}
	if _, err := db.Collection("memberships").Indexes().CreateMany(ctx, memberships); err != nil {
		return fmt.Errorf("memberships indexes: %w", err)
	}
	return nil
}
