package service

import (
	"context"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/sirupsen/logrus"
)

// PresenceService keeps the presence cache roughly in step with memberships.
// Cache failures are logged and never fail the caller; the durable store is
// always the authority.
type PresenceService struct {
	cache   cache.PresenceCache
	rooms   repository.RoomRepo
	members repository.MembershipRepo
	now     func() time.Time
}

// NewPresenceService creates a new presence service
func NewPresenceService(presence cache.PresenceCache, rooms repository.RoomRepo, members repository.MembershipRepo) *PresenceService {
	return &PresenceService{
		cache:   presence,
		rooms:   rooms,
		members: members,
		now:     systemClock,
	}
}

// Hint returns the cached presence without touching the store. A nil result
// means a cache miss or a cache failure.
func (s *PresenceService) Hint(ctx context.Context, userID string) *model.Presence {
	p, err := s.cache.Get(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("presence read failed")
		return nil
	}
	return p
}

// Get returns the user's presence, rebuilding it from the store on a miss
func (s *PresenceService) Get(ctx context.Context, userID string) (*model.Presence, error) {
	if p := s.Hint(ctx, userID); p != nil {
		return p, nil
	}
	return s.Rebuild(ctx, userID)
}

// Heartbeat refreshes lastSeenAt, repopulating the entry when it expired
func (s *PresenceService) Heartbeat(ctx context.Context, userID string) (*model.Presence, error) {
	ok, err := s.cache.Touch(ctx, userID, s.now())
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("presence touch failed")
	}
	if ok {
		return s.Get(ctx, userID)
	}
	return s.Rebuild(ctx, userID)
}

// Rebuild derives presence from the durable store and writes it back
func (s *PresenceService) Rebuild(ctx context.Context, userID string) (*model.Presence, error) {
	st, err := findActiveSeat(ctx, s.rooms, s.members, userID, "")
	if err != nil {
		return nil, internalError("presence lookup failed", err)
	}

	p := &model.Presence{
		UserID:     userID,
		Status:     model.PresenceOnline,
		LastSeenAt: s.now(),
	}
	if st != nil {
		p.Status = model.PresenceInGame
		p.CurrentRoomID = st.room.ID
	}
	if err := s.cache.Set(ctx, p); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("presence write failed")
	}
	return p, nil
}

// EnterRoom records that userID now sits in roomID
func (s *PresenceService) EnterRoom(ctx context.Context, userID, roomID string) {
	if model.IsBot(userID) {
		return
	}
	err := s.cache.Set(ctx, &model.Presence{
		UserID:        userID,
		Status:        model.PresenceInGame,
		CurrentRoomID: roomID,
		LastSeenAt:    s.now(),
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Warn("presence write failed")
	}
}

// LeaveRoom resets the user to online if the cache still places them in roomID
func (s *PresenceService) LeaveRoom(ctx context.Context, userID, roomID string) {
	if model.IsBot(userID) {
		return
	}
	if _, err := s.cache.ClearRoom(ctx, userID, roomID, model.PresenceOnline); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Warn("presence reset failed")
	}
}

// MarkStaleOffline flips users not seen since cutoff to offline
func (s *PresenceService) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	return s.cache.MarkStaleOffline(ctx, cutoff)
}
