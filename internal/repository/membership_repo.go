package repository

import (
	"context"
	"fmt"

	"lobbyd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MembershipRepo is the durable store for room seats
type MembershipRepo interface {
	Create(ctx context.Context, m *model.Membership) error
	Get(ctx context.Context, roomID, userID string) (*model.Membership, error)
	ListByRoom(ctx context.Context, roomID string) ([]*model.Membership, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Membership, error)
	Update(ctx context.Context, m *model.Membership) error
	Delete(ctx context.Context, roomID, userID string) (bool, error)
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
	CountPresent(ctx context.Context, roomID string) (int, error)
}

type membershipRepo struct {
	collection *mongo.Collection
}

func NewMembershipRepo(db *mongo.Database) MembershipRepo {
	return &membershipRepo{
		collection: db.Collection("memberships"),
	}
}

func (r *membershipRepo) Create(ctx context.Context, m *model.Membership) error {
	_, err := r.collection.InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (r *membershipRepo) Get(ctx context.Context, roomID, userID string) (*model.Membership, error) {
	var m model.Membership
	err := r.collection.FindOne(ctx, bson.M{"roomId": roomID, "userId": userID}).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepo) list(ctx context.Context, filter bson.M) ([]*model.Membership, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var members []*model.Membership
	if err := cursor.All(ctx, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (r *membershipRepo) ListByRoom(ctx context.Context, roomID string) ([]*model.Membership, error) {
	return r.list(ctx, bson.M{"roomId": roomID})
}

func (r *membershipRepo) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return r.list(ctx, bson.M{"userId": userID})
}

func (r *membershipRepo) Update(ctx context.Context, m *model.Membership) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"roomId": m.RoomID, "userId": m.UserID},
		bson.M{"$set": bson.M{
			"position": m.Position,
			"isReady":  m.IsReady,
			"absent":   m.Absent,
		}},
	)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *membershipRepo) Delete(ctx context.Context, roomID, userID string) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"roomId": roomID, "userId": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *membershipRepo) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"roomId": roomID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *membershipRepo) CountPresent(ctx context.Context, roomID string) (int, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"roomId": roomID, "absent": bson.M{"$ne": true}})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
