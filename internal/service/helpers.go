package service

import (
	"context"
	"time"

	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/sirupsen/logrus"
)

// withReadRetry runs an idempotent read, retrying once on failure
func withReadRetry[T any](ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	v, err := read(ctx)
	if err == nil || ctx.Err() != nil {
		return v, err
	}
	logrus.WithError(err).Debug("read failed, retrying once")
	return read(ctx)
}

// seat is a user's membership together with its room
type seat struct {
	room       *model.Room
	membership *model.Membership
}

// findActiveSeat returns the user's present membership in a waiting or
// playing room, skipping exceptRoomID. Memberships whose room is gone are
// ignored.
func findActiveSeat(ctx context.Context, rooms repository.RoomRepo, members repository.MembershipRepo, userID, exceptRoomID string) (*seat, error) {
	list, err := withReadRetry(ctx, func(ctx context.Context) ([]*model.Membership, error) {
		return members.ListByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if m.Absent || m.RoomID == exceptRoomID {
			continue
		}
		room, err := withReadRetry(ctx, func(ctx context.Context) (*model.Room, error) {
			return rooms.GetByID(ctx, m.RoomID)
		})
		if err != nil {
			return nil, err
		}
		if room != nil && room.Status.IsActive() {
			return &seat{room: room, membership: m}, nil
		}
	}
	return nil, nil
}

func memberViews(room *model.Room, members []*model.Membership) []model.MemberView {
	views := make([]model.MemberView, 0, len(members))
	for _, m := range members {
		views = append(views, model.MemberView{
			UserID:   m.UserID,
			Position: m.Position,
			IsReady:  m.IsReady,
			IsHost:   m.UserID == room.HostID,
			IsBot:    model.IsBot(m.UserID),
			Absent:   m.Absent,
			JoinedAt: m.JoinedAt,
		})
	}
	return views
}

func systemClock() time.Time { return time.Now().UTC() }
