package service

import (
	"context"

	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/sirupsen/logrus"
)

// PlayerContext is what an in-room guard learns about the caller
type PlayerContext struct {
	Room       *model.Room
	Membership *model.Membership
	Position   int
	IsHost     bool
}

// Validator holds the read-only guards used before in-room actions. None of
// them mutate the durable store; they may repair a stale presence hint.
type Validator struct {
	rooms    repository.RoomRepo
	members  repository.MembershipRepo
	presence *PresenceService
}

// NewValidator creates a new validator
func NewValidator(rooms repository.RoomRepo, members repository.MembershipRepo, presence *PresenceService) *Validator {
	return &Validator{
		rooms:    rooms,
		members:  members,
		presence: presence,
	}
}

// ValidateRoomExists loads a room that is still waiting or playing
func (v *Validator) ValidateRoomExists(ctx context.Context, roomID string) (*model.Room, error) {
	if roomID == "" {
		return nil, newError(KindInvalid, "room id is required")
	}
	room, err := withReadRetry(ctx, func(ctx context.Context) (*model.Room, error) {
		return v.rooms.GetByID(ctx, roomID)
	})
	if err != nil {
		return nil, internalError("room lookup failed", err)
	}
	if room == nil {
		return nil, newError(KindNotFound, MsgRoomNotFound)
	}
	if room.Status.IsTerminal() {
		return nil, &Error{Kind: KindInvalidState, Message: MsgRoomUnavailable, Room: room.Ref()}
	}
	return room, nil
}

// ValidatePlayerInRoom confirms a present membership row for the caller.
// Host status comes from Room.HostID.
func (v *Validator) ValidatePlayerInRoom(ctx context.Context, userID, roomID string) (*PlayerContext, error) {
	room, err := v.ValidateRoomExists(ctx, roomID)
	if err != nil {
		return nil, err
	}

	hint := v.presence.Hint(ctx, userID)

	m, err := withReadRetry(ctx, func(ctx context.Context) (*model.Membership, error) {
		return v.members.Get(ctx, roomID, userID)
	})
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	if m == nil || m.Absent {
		if hint.InRoom(roomID) {
			v.presence.LeaveRoom(ctx, userID, roomID)
		}
		return nil, newError(KindNotFound, MsgNotMember)
	}

	if !hint.InRoom(roomID) {
		logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).Debug("presence hint disagreed with membership, repairing")
		v.presence.EnterRoom(ctx, userID, roomID)
	}

	return &PlayerContext{
		Room:       room,
		Membership: m,
		Position:   m.Position,
		IsHost:     room.HostID == userID,
	}, nil
}

// ValidatePlayerIsHost is ValidatePlayerInRoom restricted to the host
func (v *Validator) ValidatePlayerIsHost(ctx context.Context, userID, roomID string) (*PlayerContext, error) {
	pc, err := v.ValidatePlayerInRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if !pc.IsHost {
		return nil, newError(KindForbidden, MsgNotHost)
	}
	return pc, nil
}

// ValidatePlayerCanPlay additionally requires a playing room and a ready seat
func (v *Validator) ValidatePlayerCanPlay(ctx context.Context, userID, roomID string) (*PlayerContext, error) {
	pc, err := v.ValidatePlayerInRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	if pc.Room.Status != model.RoomPlaying {
		return nil, newError(KindInvalidState, "game is not in progress")
	}
	if !pc.Membership.IsReady {
		return nil, newError(KindInvalidState, "player is not ready")
	}
	return pc, nil
}

// ValidatePlayerNotInRoom pre-empts the "already in a room" conflict. A hint
// pointing at a room is confirmed against the store; a hint with no room is
// trusted, since create and join re-check under their locks.
func (v *Validator) ValidatePlayerNotInRoom(ctx context.Context, userID string) error {
	p, err := v.presence.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p.CurrentRoomID == "" || p.Status == model.PresenceOffline {
		return nil
	}

	room, err := withReadRetry(ctx, func(ctx context.Context) (*model.Room, error) {
		return v.rooms.GetByID(ctx, p.CurrentRoomID)
	})
	if err != nil {
		return internalError("room lookup failed", err)
	}
	if room != nil && room.Status.IsActive() {
		m, err := withReadRetry(ctx, func(ctx context.Context) (*model.Membership, error) {
			return v.members.Get(ctx, room.ID, userID)
		})
		if err != nil {
			return internalError("membership lookup failed", err)
		}
		if m != nil && m.Present() {
			return conflictWithRoom(MsgAlreadyInRoom, room)
		}
	}

	v.presence.LeaveRoom(ctx, userID, p.CurrentRoomID)
	return nil
}
