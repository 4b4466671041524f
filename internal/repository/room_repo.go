package repository

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"lobbyd/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RoomRepo is the durable store for rooms. Single-document lookups return
// nil, nil when nothing matches.
type RoomRepo interface {
	Create(ctx context.Context, room *model.Room) error
	GetByID(ctx context.Context, id string) (*model.Room, error)
	GetByCode(ctx context.Context, code string) (*model.Room, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	FindActiveByHost(ctx context.Context, hostID string) (*model.Room, error)
	Update(ctx context.Context, room *model.Room) error
	ListJoinable(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)

	// ListIDs returns ids of rooms in one of statuses whose LastActivityAt is
	// before activityBefore. A zero activityBefore disables the time bound.
	ListIDs(ctx context.Context, statuses []model.RoomStatus, activityBefore time.Time) ([]string, error)

	// DeleteIf removes the room only if it still matches statuses and the
	// activity bound. Deleting a missing room reports false, nil.
	DeleteIf(ctx context.Context, id string, statuses []model.RoomStatus, activityBefore time.Time) (bool, error)
}

type roomRepo struct {
	collection *mongo.Collection
}

func NewRoomRepo(db *mongo.Database) RoomRepo {
	return &roomRepo{
		collection: db.Collection("rooms"),
	}
}

func (r *roomRepo) Create(ctx context.Context, room *model.Room) error {
	if room.ID == "" {
		room.ID = primitive.NewObjectID().Hex()
	}
	room.Code = model.NormalizeCode(room.Code)

	_, err := r.collection.InsertOne(ctx, room)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

func (r *roomRepo) findOne(ctx context.Context, filter bson.M) (*model.Room, error) {
	var room model.Room
	err := r.collection.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *roomRepo) GetByID(ctx context.Context, id string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *roomRepo) GetByCode(ctx context.Context, code string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{"code": model.NormalizeCode(code)})
}

func (r *roomRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"code": model.NormalizeCode(code)}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *roomRepo) FindActiveByHost(ctx context.Context, hostID string) (*model.Room, error) {
	return r.findOne(ctx, bson.M{
		"hostId": hostID,
		"status": bson.M{"$in": model.ActiveRoomStatuses},
	})
}

func (r *roomRepo) Update(ctx context.Context, room *model.Room) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": room.ID}, room)
	return err
}

func (r *roomRepo) ListJoinable(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	query := bson.M{"status": model.RoomWaiting}
	if filter.Name != "" {
		query["name"] = bson.M{"$regex": regexp.QuoteMeta(filter.Name), "$options": "i"}
	}
	if filter.HasSpace {
		query["$expr"] = bson.M{"$lt": bson.A{"$currentPlayers", "$maxPlayers"}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rooms []*model.Room
	if err := cursor.All(ctx, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func sweepFilter(statuses []model.RoomStatus, activityBefore time.Time) bson.M {
	filter := bson.M{"status": bson.M{"$in": statuses}}
	if !activityBefore.IsZero() {
		filter["lastActivityAt"] = bson.M{"$lt": activityBefore}
	}
	return filter
}

func (r *roomRepo) ListIDs(ctx context.Context, statuses []model.RoomStatus, activityBefore time.Time) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := r.collection.Find(ctx, sweepFilter(statuses, activityBefore), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

func (r *roomRepo) DeleteIf(ctx context.Context, id string, statuses []model.RoomStatus, activityBefore time.Time) (bool, error) {
	filter := sweepFilter(statuses, activityBefore)
	filter["_id"] = id
	res, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}
