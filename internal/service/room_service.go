package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/config"
	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	codeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength      = 6
	maxCodeAttempts = 10
	maxNameLength   = 64
	defaultListSize = 50
	maxListSize     = 100
)

// RoomDetail is a room together with its seats
type RoomDetail struct {
	Room    *model.Room        `json:"room"`
	Members []model.MemberView `json:"members"`
}

// JoinResult describes the seat a join produced
type JoinResult struct {
	Room       *model.Room       `json:"room"`
	Membership *model.Membership `json:"membership"`
}

// RoomService owns the room lifecycle. Every read-modify-write on a room runs
// under that room's lock; create and join also hold the caller's user lock so
// the one-active-room rule holds across rooms. Lock order is user, then room.
type RoomService struct {
	rooms       repository.RoomRepo
	members     repository.MembershipRepo
	presence    *PresenceService
	validator   *Validator
	locker      cache.Locker
	limits      config.RoomLimits
	broadcaster Broadcaster
	codes       cache.RoomCodeCache

	now          func() time.Time
	newCode      func() (string, error)
	passwordCost int
}

// NewRoomService creates a new room service
func NewRoomService(
	rooms repository.RoomRepo,
	members repository.MembershipRepo,
	presence *PresenceService,
	validator *Validator,
	locker cache.Locker,
	limits config.RoomLimits,
) *RoomService {
	return &RoomService{
		rooms:        rooms,
		members:      members,
		presence:     presence,
		validator:    validator,
		locker:       locker,
		limits:       limits,
		now:          systemClock,
		newCode:      randomRoomCode,
		passwordCost: bcrypt.DefaultCost,
	}
}

// SetBroadcaster sets the broadcaster for room events
func (s *RoomService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetCodeCache enables the code -> room id lookup cache for joins
func (s *RoomService) SetCodeCache(c cache.RoomCodeCache) {
	s.codes = c
}

// SetPasswordCost overrides the bcrypt cost for room passwords
func (s *RoomService) SetPasswordCost(cost int) {
	s.passwordCost = cost
}

func (s *RoomService) publish(eventType model.EventType, roomID, userID string, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(&model.RoomEvent{
		Type:      eventType,
		RoomID:    roomID,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: s.now(),
	})
}

func (s *RoomService) lock(ctx context.Context, key string) (*cache.Lock, error) {
	l, err := s.locker.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrLockBusy) {
			return nil, newError(KindTransientBusy, MsgBusy)
		}
		return nil, internalError("lock unavailable", err)
	}
	return l, nil
}

func (s *RoomService) unlock(l *cache.Lock) {
	// The caller's context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Release(ctx); err != nil {
		logrus.WithError(err).WithField("lock", l.Key()).Warn("lock release failed, waiting for expiry")
	}
}

// loadLocked re-reads the room after its lock is held
func (s *RoomService) loadLocked(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, internalError("room lookup failed", err)
	}
	if room == nil {
		return nil, newError(KindNotFound, MsgRoomNotFound)
	}
	return room, nil
}

// syncPlayerCount recomputes CurrentPlayers from the membership rows and
// writes the room back. Terminal rooms have no active members.
func (s *RoomService) syncPlayerCount(ctx context.Context, room *model.Room) error {
	n := 0
	if room.Status.IsActive() {
		count, err := s.members.CountPresent(ctx, room.ID)
		if err != nil {
			return internalError("membership count failed", err)
		}
		n = count
	}
	room.CurrentPlayers = n
	room.LastActivityAt = s.now()
	if err := s.rooms.Update(ctx, room); err != nil {
		return internalError("room update failed", err)
	}
	return nil
}

func (s *RoomService) validateConfig(cfg *model.RoomConfig) error {
	cfg.Name = strings.TrimSpace(cfg.Name)
	if cfg.Name == "" {
		return newError(KindInvalid, "room name is required")
	}
	if len(cfg.Name) > maxNameLength {
		return newError(KindInvalid, fmt.Sprintf("room name must be at most %d characters", maxNameLength))
	}
	if cfg.MaxPlayers < s.limits.MinPlayers || cfg.MaxPlayers > s.limits.MaxPlayers {
		return newError(KindInvalid, fmt.Sprintf("maxPlayers must be between %d and %d", s.limits.MinPlayers, s.limits.MaxPlayers))
	}
	if cfg.IsPrivate && cfg.Password == "" {
		return newError(KindInvalid, "private rooms need a password")
	}
	return nil
}

// CreateRoom creates a waiting room and seats the host at position 0
func (s *RoomService) CreateRoom(ctx context.Context, hostID string, cfg model.RoomConfig) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"op": "create_room", "user_id": hostID})

	if err := s.validateConfig(&cfg); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePlayerNotInRoom(ctx, hostID); err != nil {
		return nil, err
	}

	var passwordHash *string
	if cfg.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), s.passwordCost)
		if err != nil {
			return nil, internalError("password hashing failed", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	userLock, err := s.lock(ctx, cache.UserLockKey(hostID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(userLock)

	hosting, err := s.rooms.FindActiveByHost(ctx, hostID)
	if err != nil {
		return nil, internalError("room lookup failed", err)
	}
	if hosting != nil {
		return nil, conflictWithRoom(MsgAlreadyHosting, hosting)
	}
	current, err := findActiveSeat(ctx, s.rooms, s.members, hostID, "")
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	if current != nil {
		return nil, conflictWithRoom(MsgAlreadyInRoom, current.room)
	}
	if err := s.releaseAbsentSeats(ctx, hostID, ""); err != nil {
		return nil, err
	}

	now := s.now()
	room := &model.Room{
		ID:             uuid.NewString(),
		Name:           cfg.Name,
		HostID:         hostID,
		MaxPlayers:     cfg.MaxPlayers,
		Status:         model.RoomWaiting,
		IsPrivate:      cfg.IsPrivate,
		PasswordHash:   passwordHash,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	// The room is unreachable until inserted, but joins by code can race the
	// host's seat insert, so hold its lock from the start.
	roomLock, err := s.lock(ctx, cache.RoomLockKey(room.ID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(roomLock)

	if err := s.insertWithUniqueCode(ctx, room); err != nil {
		return nil, err
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code})

	host := &model.Membership{
		RoomID:   room.ID,
		UserID:   hostID,
		Position: 0,
		IsReady:  true,
		JoinedAt: now,
	}
	if err := s.members.Create(ctx, host); err != nil {
		logCtx.WithError(err).Error("host seat insert failed, removing room")
		if _, derr := s.rooms.DeleteIf(ctx, room.ID, []model.RoomStatus{model.RoomWaiting}, time.Time{}); derr != nil {
			logCtx.WithError(derr).Error("room rollback failed, janitor will remove it")
		}
		return nil, internalError("room creation failed", err)
	}

	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}

	s.cacheCode(ctx, room)
	s.presence.EnterRoom(ctx, hostID, room.ID)
	s.publish(model.EventRoomCreated, room.ID, hostID, room.Summary())
	logCtx.Info("room created")

	return &JoinResult{Room: room, Membership: host}, nil
}

// insertWithUniqueCode draws codes until one is free, up to maxCodeAttempts.
// A duplicate on insert (lost race with another creator) costs one attempt.
func (s *RoomService) insertWithUniqueCode(ctx context.Context, room *model.Room) error {
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return internalError("code generation failed", err)
		}
		code = model.NormalizeCode(code)

		exists, err := s.rooms.CodeExists(ctx, code)
		if err != nil {
			return internalError("code lookup failed", err)
		}
		if exists {
			logrus.WithField("code", code).Debugf("room code taken, retrying (attempt %d)", attempt)
			continue
		}

		room.Code = code
		err = s.rooms.Create(ctx, room)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return internalError("room insert failed", err)
		}
	}
	logrus.Errorf("failed to allocate a room code after %d attempts", maxCodeAttempts)
	return newError(KindConflict, MsgCodesExhausted)
}

// randomRoomCode creates a 6-char code without look-alike characters
func randomRoomCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(code), nil
}

// roomByCode resolves a join code, trying the code cache before the store
func (s *RoomService) roomByCode(ctx context.Context, code string) (*model.Room, error) {
	if s.codes != nil {
		id, err := s.codes.GetRoomID(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("code", code).Debug("room code cache read failed")
		}
		if id != "" {
			room, err := s.rooms.GetByID(ctx, id)
			if err == nil && room != nil && room.Code == code {
				return room, nil
			}
		}
	}

	room, err := withReadRetry(ctx, func(ctx context.Context) (*model.Room, error) {
		return s.rooms.GetByCode(ctx, code)
	})
	if err != nil || room == nil {
		return nil, err
	}
	s.cacheCode(ctx, room)
	return room, nil
}

func (s *RoomService) cacheCode(ctx context.Context, room *model.Room) {
	if s.codes == nil || !room.Status.IsActive() {
		return
	}
	if err := s.codes.SetCode(ctx, room.Code, room.ID); err != nil {
		logrus.WithError(err).WithField("code", room.Code).Debug("room code cache write failed")
	}
}

func checkPassword(room *model.Room, password string) error {
	if !room.IsPrivate || room.PasswordHash == nil {
		return nil
	}
	if bcrypt.CompareHashAndPassword([]byte(*room.PasswordHash), []byte(password)) != nil {
		return newError(KindForbidden, MsgWrongPassword)
	}
	return nil
}

// JoinRoom seats userID in the room with the given code. The host joining
// their own room re-enters their seat instead of taking a new one.
func (s *RoomService) JoinRoom(ctx context.Context, userID, code, password string) (*JoinResult, error) {
	code = model.NormalizeCode(code)
	logCtx := logrus.WithFields(logrus.Fields{"op": "join_room", "user_id": userID, "code": code})
	if code == "" {
		return nil, newError(KindInvalid, "room code is required")
	}

	room, err := s.roomByCode(ctx, code)
	if err != nil {
		return nil, internalError("room lookup failed", err)
	}
	if room == nil {
		return nil, newError(KindNotFound, MsgRoomNotFound)
	}
	if room.Status != model.RoomWaiting {
		return nil, &Error{Kind: KindInvalidState, Message: "room is not accepting players", Room: room.Ref()}
	}
	if err := checkPassword(room, password); err != nil {
		return nil, err
	}

	userLock, err := s.lock(ctx, cache.UserLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(userLock)

	// Seats elsewhere only change under this user's lock, so both checks
	// hold until the target room lock is taken.
	other, err := findActiveSeat(ctx, s.rooms, s.members, userID, room.ID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	if other != nil {
		return nil, conflictWithRoom(MsgAlreadyInRoom, other.room)
	}
	if err := s.releaseAbsentSeats(ctx, userID, room.ID); err != nil {
		return nil, err
	}

	roomLock, err := s.lock(ctx, cache.RoomLockKey(room.ID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(roomLock)

	room, err = s.loadLocked(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomWaiting {
		return nil, &Error{Kind: KindInvalidState, Message: "room is not accepting players", Room: room.Ref()}
	}

	members, err := s.members.ListByRoom(ctx, room.ID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	var existing *model.Membership
	for _, m := range members {
		if m.UserID == userID {
			existing = m
		}
	}
	present := model.CountPresent(members)
	isHost := userID == room.HostID

	var seat *model.Membership
	switch {
	case existing != nil && existing.Present() && !isHost:
		return nil, conflictWithRoom("already in this room", room)

	case existing != nil:
		// Re-entry keeps the seat. A host is always counted, so only an
		// absent seat needs capacity.
		if existing.Absent && present >= room.MaxPlayers {
			return nil, conflictWithRoom(MsgRoomFull, room)
		}
		existing.Absent = false
		existing.IsReady = isHost
		if err := s.members.Update(ctx, existing); err != nil {
			return nil, internalError("seat update failed", err)
		}
		seat = existing

	default:
		if present >= room.MaxPlayers {
			return nil, conflictWithRoom(MsgRoomFull, room)
		}
		position := model.LowestFreePosition(members, room.MaxPlayers)
		if isHost && position != -1 && model.LowestFreePosition(members, 1) == 0 {
			position = 0
		}
		if position == -1 {
			return nil, conflictWithRoom(MsgRoomFull, room)
		}
		seat = &model.Membership{
			RoomID:   room.ID,
			UserID:   userID,
			Position: position,
			IsReady:  isHost,
			JoinedAt: s.now(),
		}
		if err := s.members.Create(ctx, seat); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Only possible if our lock expired mid-operation.
				logCtx.WithError(err).Warn("seat collision under lock")
				return nil, newError(KindTransientBusy, MsgBusy)
			}
			return nil, internalError("seat insert failed", err)
		}
	}

	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}

	s.presence.EnterRoom(ctx, userID, room.ID)
	s.publish(model.EventPlayerJoined, room.ID, userID, map[string]interface{}{
		"position":       seat.Position,
		"currentPlayers": room.CurrentPlayers,
	})
	logCtx.WithFields(logrus.Fields{"room_id": room.ID, "position": seat.Position}).Info("player joined")

	return &JoinResult{Room: room, Membership: seat}, nil
}

// LeaveRoom removes userID from the room. A departing host keeps an absent
// seat and hands the room to the earliest-joined present human; if only bots
// remain the room is cancelled.
func (s *RoomService) LeaveRoom(ctx context.Context, userID, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"op": "leave_room", "user_id": userID, "room_id": roomID})

	roomLock, err := s.lock(ctx, cache.RoomLockKey(roomID))
	if err != nil {
		return err
	}
	defer s.unlock(roomLock)

	room, err := s.loadLocked(ctx, roomID)
	if err != nil {
		return err
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return internalError("membership lookup failed", err)
	}

	var mine *model.Membership
	for _, m := range members {
		if m.UserID == userID {
			mine = m
		}
	}
	if mine == nil || mine.Absent {
		return newError(KindNotFound, MsgNotMember)
	}

	if room.HostID == userID {
		successor := model.EarliestPresent(members, userID)
		if successor == nil || !room.Status.IsActive() {
			if room.Status.IsActive() {
				return s.cancelLocked(ctx, room, members, "host left an empty room")
			}
			if _, err := s.members.Delete(ctx, roomID, userID); err != nil {
				return internalError("seat delete failed", err)
			}
			s.presence.LeaveRoom(ctx, userID, roomID)
			return nil
		}

		mine.Absent = true
		mine.IsReady = false
		if err := s.members.Update(ctx, mine); err != nil {
			return internalError("seat update failed", err)
		}
		room.HostID = successor.UserID
		if err := s.syncPlayerCount(ctx, room); err != nil {
			return err
		}

		s.presence.LeaveRoom(ctx, userID, roomID)
		s.publish(model.EventPlayerLeft, roomID, userID, map[string]interface{}{"currentPlayers": room.CurrentPlayers})
		s.publish(model.EventHostChanged, roomID, successor.UserID, map[string]interface{}{"previousHostId": userID})
		logCtx.WithField("new_host", successor.UserID).Info("host left, host migrated")
		return nil
	}

	if _, err := s.members.Delete(ctx, roomID, userID); err != nil {
		return internalError("seat delete failed", err)
	}
	s.presence.LeaveRoom(ctx, userID, roomID)

	if room.Status.IsActive() {
		remaining, err := s.members.ListByRoom(ctx, roomID)
		if err != nil {
			return internalError("membership lookup failed", err)
		}
		if model.CountPresentHumans(remaining) == 0 {
			return s.cancelLocked(ctx, room, remaining, "last player left")
		}
	}

	if err := s.syncPlayerCount(ctx, room); err != nil {
		return err
	}
	s.publish(model.EventPlayerLeft, roomID, userID, map[string]interface{}{"currentPlayers": room.CurrentPlayers})
	logCtx.Info("player left")
	return nil
}

// releaseAbsentSeats deletes the user's absent seats in other active rooms, so
// entering a room never leaves a second membership behind. The caller holds
// the user lock; each old room is locked in turn.
func (s *RoomService) releaseAbsentSeats(ctx context.Context, userID, exceptRoomID string) error {
	list, err := withReadRetry(ctx, func(ctx context.Context) ([]*model.Membership, error) {
		return s.members.ListByUser(ctx, userID)
	})
	if err != nil {
		return internalError("membership lookup failed", err)
	}
	for _, m := range list {
		if !m.Absent || m.RoomID == exceptRoomID {
			continue
		}
		if err := s.releaseAbsentSeat(ctx, userID, m.RoomID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomService) releaseAbsentSeat(ctx context.Context, userID, roomID string) error {
	l, err := s.lock(ctx, cache.RoomLockKey(roomID))
	if err != nil {
		return err
	}
	defer s.unlock(l)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return internalError("room lookup failed", err)
	}
	if room == nil || !room.Status.IsActive() {
		return nil
	}
	m, err := s.members.Get(ctx, roomID, userID)
	if err != nil {
		return internalError("membership lookup failed", err)
	}
	if m == nil || !m.Absent {
		return nil
	}
	if _, err := s.members.Delete(ctx, roomID, userID); err != nil {
		return internalError("seat delete failed", err)
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID, "position": m.Position}).Info("absent seat released")
	return nil
}

// cancelLocked moves an active room to cancelled, drops every seat and
// resets presence for the real users that held one. The row itself is left
// for the janitor to hard-delete.
func (s *RoomService) cancelLocked(ctx context.Context, room *model.Room, members []*model.Membership, reason string) error {
	now := s.now()
	room.Status = model.RoomCancelled
	room.EndedAt = &now
	if err := s.syncPlayerCount(ctx, room); err != nil {
		return err
	}
	if _, err := s.members.DeleteByRoom(ctx, room.ID); err != nil {
		return internalError("seat cleanup failed", err)
	}
	for _, m := range members {
		if !model.IsBot(m.UserID) {
			s.presence.LeaveRoom(ctx, m.UserID, room.ID)
		}
	}
	if s.codes != nil {
		if err := s.codes.Delete(ctx, room.Code); err != nil {
			logrus.WithError(err).WithField("code", room.Code).Debug("room code cache delete failed")
		}
	}

	s.publish(model.EventRoomClosed, room.ID, "", map[string]string{"reason": reason})
	logrus.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code, "reason": reason}).Info("room cancelled")
	return nil
}

// lockHostRoom takes the room lock and checks that hostID is its host
func (s *RoomService) lockHostRoom(ctx context.Context, hostID, roomID string) (*model.Room, *cache.Lock, error) {
	l, err := s.lock(ctx, cache.RoomLockKey(roomID))
	if err != nil {
		return nil, nil, err
	}
	room, err := s.loadLocked(ctx, roomID)
	if err != nil {
		s.unlock(l)
		return nil, nil, err
	}
	if room.HostID != hostID {
		s.unlock(l)
		return nil, nil, newError(KindForbidden, MsgNotHost)
	}
	return room, l, nil
}

// CloseRoom cancels the room on behalf of its host and evicts everyone
func (s *RoomService) CloseRoom(ctx context.Context, hostID, roomID string) error {
	room, l, err := s.lockHostRoom(ctx, hostID, roomID)
	if err != nil {
		return err
	}
	defer s.unlock(l)

	if !room.Status.IsActive() {
		return &Error{Kind: KindInvalidState, Message: MsgRoomUnavailable, Room: room.Ref()}
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return internalError("membership lookup failed", err)
	}
	return s.cancelLocked(ctx, room, members, "closed by host")
}

// SetReady flips the caller's ready flag in a waiting room
func (s *RoomService) SetReady(ctx context.Context, userID, roomID string, ready bool) (*model.Membership, error) {
	l, err := s.lock(ctx, cache.RoomLockKey(roomID))
	if err != nil {
		return nil, err
	}
	defer s.unlock(l)

	room, err := s.loadLocked(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != model.RoomWaiting {
		return nil, newError(KindInvalidState, "ready state can only change while waiting")
	}
	m, err := s.members.Get(ctx, roomID, userID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	if m == nil || m.Absent {
		return nil, newError(KindNotFound, MsgNotMember)
	}

	if m.IsReady != ready {
		m.IsReady = ready
		if err := s.members.Update(ctx, m); err != nil {
			return nil, internalError("seat update failed", err)
		}
	}
	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}
	s.publish(model.EventReadyChanged, roomID, userID, map[string]bool{"isReady": ready})
	return m, nil
}

// StartGame moves a waiting room to playing once enough present members are
// seated and every one of them is ready
func (s *RoomService) StartGame(ctx context.Context, hostID, roomID string) (*model.Room, error) {
	room, l, err := s.lockHostRoom(ctx, hostID, roomID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(l)

	if !room.Status.CanTransition(model.RoomPlaying) {
		return nil, newError(KindInvalidState, fmt.Sprintf("cannot start a %s room", room.Status))
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	present := 0
	for _, m := range members {
		if m.Absent {
			continue
		}
		present++
		if !m.IsReady {
			return nil, newError(KindInvalidState, "not all players are ready")
		}
	}
	if present < s.limits.MinPlayersToStart {
		return nil, newError(KindInvalidState, fmt.Sprintf("need at least %d players to start", s.limits.MinPlayersToStart))
	}

	now := s.now()
	room.Status = model.RoomPlaying
	room.StartedAt = &now
	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}
	s.publish(model.EventGameStarted, roomID, hostID, nil)
	logrus.WithFields(logrus.Fields{"room_id": roomID, "players": present}).Info("game started")
	return room, nil
}

// FinishGame ends a playing room normally. Seats are kept as history but no
// longer count as active; members return to online.
func (s *RoomService) FinishGame(ctx context.Context, hostID, roomID string) (*model.Room, error) {
	room, l, err := s.lockHostRoom(ctx, hostID, roomID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(l)

	if !room.Status.CanTransition(model.RoomFinished) {
		return nil, newError(KindInvalidState, fmt.Sprintf("cannot finish a %s room", room.Status))
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}

	now := s.now()
	room.Status = model.RoomFinished
	room.EndedAt = &now
	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}
	for _, m := range members {
		s.presence.LeaveRoom(ctx, m.UserID, roomID)
	}
	s.publish(model.EventGameFinished, roomID, hostID, nil)
	return room, nil
}

// AbortGame cancels a playing room
func (s *RoomService) AbortGame(ctx context.Context, hostID, roomID string) error {
	room, l, err := s.lockHostRoom(ctx, hostID, roomID)
	if err != nil {
		return err
	}
	defer s.unlock(l)

	if room.Status != model.RoomPlaying {
		return newError(KindInvalidState, fmt.Sprintf("cannot abort a %s room", room.Status))
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return internalError("membership lookup failed", err)
	}
	return s.cancelLocked(ctx, room, members, "aborted by host")
}

// AddBot seats a synthetic, always-ready player in the lowest free seat
func (s *RoomService) AddBot(ctx context.Context, hostID, roomID string) (*model.Membership, error) {
	room, l, err := s.lockHostRoom(ctx, hostID, roomID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(l)

	if room.Status != model.RoomWaiting {
		return nil, newError(KindInvalidState, "bots can only join a waiting room")
	}
	members, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	position := model.LowestFreePosition(members, room.MaxPlayers)
	if model.CountPresent(members) >= room.MaxPlayers || position == -1 {
		return nil, conflictWithRoom(MsgRoomFull, room)
	}

	bot := &model.Membership{
		RoomID:   roomID,
		UserID:   model.BotPrefix + uuid.NewString()[:8],
		Position: position,
		IsReady:  true,
		JoinedAt: s.now(),
	}
	if err := s.members.Create(ctx, bot); err != nil {
		return nil, internalError("bot seat insert failed", err)
	}
	if err := s.syncPlayerCount(ctx, room); err != nil {
		return nil, err
	}
	s.publish(model.EventPlayerJoined, roomID, bot.UserID, map[string]interface{}{
		"position":       bot.Position,
		"currentPlayers": room.CurrentPlayers,
		"bot":            true,
	})
	return bot, nil
}

// GetRoom returns the room and its seats to one of its members
func (s *RoomService) GetRoom(ctx context.Context, userID, roomID string) (*RoomDetail, error) {
	pc, err := s.validator.ValidatePlayerInRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, pc.Room)
}

// ListMembers returns the seats of a room to one of its members
func (s *RoomService) ListMembers(ctx context.Context, userID, roomID string) ([]model.MemberView, error) {
	d, err := s.GetRoom(ctx, userID, roomID)
	if err != nil {
		return nil, err
	}
	return d.Members, nil
}

func (s *RoomService) detail(ctx context.Context, room *model.Room) (*RoomDetail, error) {
	members, err := withReadRetry(ctx, func(ctx context.Context) ([]*model.Membership, error) {
		return s.members.ListByRoom(ctx, room.ID)
	})
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	return &RoomDetail{Room: room, Members: memberViews(room, members)}, nil
}

// CurrentRoom returns the caller's active room, or nil when they are not in one
func (s *RoomService) CurrentRoom(ctx context.Context, userID string) (*RoomDetail, error) {
	p, err := s.presence.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.CurrentRoomID != "" {
		if pc, err := s.validator.ValidatePlayerInRoom(ctx, userID, p.CurrentRoomID); err == nil {
			return s.detail(ctx, pc.Room)
		}
	}

	st, err := findActiveSeat(ctx, s.rooms, s.members, userID, "")
	if err != nil {
		return nil, internalError("membership lookup failed", err)
	}
	if st == nil {
		return nil, nil
	}
	s.presence.EnterRoom(ctx, userID, st.room.ID)
	return s.detail(ctx, st.room)
}

// ListJoinable lists waiting rooms, newest first
func (s *RoomService) ListJoinable(ctx context.Context, filter model.RoomFilter) ([]model.RoomSummary, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListSize
	}
	if filter.Limit > maxListSize {
		filter.Limit = maxListSize
	}
	rooms, err := withReadRetry(ctx, func(ctx context.Context) ([]*model.Room, error) {
		return s.rooms.ListJoinable(ctx, filter)
	})
	if err != nil {
		return nil, internalError("room listing failed", err)
	}
	out := make([]model.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	return out, nil
}
