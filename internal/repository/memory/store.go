// Package memory is a process-local implementation of the lobby
// repositories. It enforces the same unique keys as the Mongo indexes and is
// used for tests and single-instance development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/google/uuid"
)

type seatKey struct {
	roomID string
	userID string
}

// Store holds rooms and memberships behind one mutex
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*model.Room
	members map[seatKey]*model.Membership
}

func NewStore() *Store {
	return &Store{
		rooms:   make(map[string]*model.Room),
		members: make(map[seatKey]*model.Membership),
	}
}

// Rooms returns the RoomRepo view of the store
func (s *Store) Rooms() repository.RoomRepo { return (*roomRepo)(s) }

// Memberships returns the MembershipRepo view of the store
func (s *Store) Memberships() repository.MembershipRepo { return (*membershipRepo)(s) }

type roomRepo Store

func copyRoom(r *model.Room) *model.Room {
	c := *r
	return &c
}

func (r *roomRepo) Create(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.Code = model.NormalizeCode(room.Code)
	if _, ok := r.rooms[room.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range r.rooms {
		if existing.Code == room.Code {
			return repository.ErrDuplicate
		}
	}
	r.rooms[room.ID] = copyRoom(room)
	return nil
}

func (r *roomRepo) GetByID(_ context.Context, id string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[id]; ok {
		return copyRoom(room), nil
	}
	return nil, nil
}

func (r *roomRepo) GetByCode(_ context.Context, code string) (*model.Room, error) {
	code = model.NormalizeCode(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.Code == code {
			return copyRoom(room), nil
		}
	}
	return nil, nil
}

func (r *roomRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	room, err := r.GetByCode(ctx, code)
	return room != nil, err
}

func (r *roomRepo) FindActiveByHost(_ context.Context, hostID string) (*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, room := range r.rooms {
		if room.HostID == hostID && room.Status.IsActive() {
			return copyRoom(room), nil
		}
	}
	return nil, nil
}

func (r *roomRepo) Update(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		r.rooms[room.ID] = copyRoom(room)
	}
	return nil
}

func (r *roomRepo) ListJoinable(_ context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := strings.ToLower(filter.Name)
	var out []*model.Room
	for _, room := range r.rooms {
		if room.Status != model.RoomWaiting {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(room.Name), name) {
			continue
		}
		if filter.HasSpace && room.CurrentPlayers >= room.MaxPlayers {
			continue
		}
		out = append(out, copyRoom(room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchesSweep(room *model.Room, statuses []model.RoomStatus, activityBefore time.Time) bool {
	if !activityBefore.IsZero() && !room.LastActivityAt.Before(activityBefore) {
		return false
	}
	for _, s := range statuses {
		if room.Status == s {
			return true
		}
	}
	return false
}

func (r *roomRepo) ListIDs(_ context.Context, statuses []model.RoomStatus, activityBefore time.Time) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, room := range r.rooms {
		if matchesSweep(room, statuses, activityBefore) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *roomRepo) DeleteIf(_ context.Context, id string, statuses []model.RoomStatus, activityBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok || !matchesSweep(room, statuses, activityBefore) {
		return false, nil
	}
	delete(r.rooms, id)
	return true, nil
}

type membershipRepo Store

func copyMember(m *model.Membership) *model.Membership {
	c := *m
	return &c
}

func (r *membershipRepo) positionTaken(roomID string, position int, except string) bool {
	for k, m := range r.members {
		if k.roomID == roomID && m.Position == position && k.userID != except {
			return true
		}
	}
	return false
}

func (r *membershipRepo) Create(_ context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seatKey{m.RoomID, m.UserID}
	if _, ok := r.members[key]; ok {
		return repository.ErrDuplicate
	}
	if r.positionTaken(m.RoomID, m.Position, "") {
		return repository.ErrDuplicate
	}
	r.members[key] = copyMember(m)
	return nil
}

func (r *membershipRepo) Get(_ context.Context, roomID, userID string) (*model.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.members[seatKey{roomID, userID}]; ok {
		return copyMember(m), nil
	}
	return nil, nil
}

func (r *membershipRepo) filter(match func(*model.Membership) bool) []*model.Membership {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Membership
	for _, m := range r.members {
		if match(m) {
			out = append(out, copyMember(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out
}

func (r *membershipRepo) ListByRoom(_ context.Context, roomID string) ([]*model.Membership, error) {
	return r.filter(func(m *model.Membership) bool { return m.RoomID == roomID }), nil
}

func (r *membershipRepo) ListByUser(_ context.Context, userID string) ([]*model.Membership, error) {
	return r.filter(func(m *model.Membership) bool { return m.UserID == userID }), nil
}

func (r *membershipRepo) Update(_ context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seatKey{m.RoomID, m.UserID}
	existing, ok := r.members[key]
	if !ok {
		return nil
	}
	if r.positionTaken(m.RoomID, m.Position, m.UserID) {
		return repository.ErrDuplicate
	}
	existing.Position = m.Position
	existing.IsReady = m.IsReady
	existing.Absent = m.Absent
	return nil
}

func (r *membershipRepo) Delete(_ context.Context, roomID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seatKey{roomID, userID}
	if _, ok := r.members[key]; !ok {
		return false, nil
	}
	delete(r.members, key)
	return true, nil
}

func (r *membershipRepo) DeleteByRoom(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k := range r.members {
		if k.roomID == roomID {
			delete(r.members, k)
			n++
		}
	}
	return n, nil
}

func (r *membershipRepo) CountPresent(_ context.Context, roomID string) (int, error) {
	return len(r.filter(func(m *model.Membership) bool { return m.RoomID == roomID && !m.Absent })), nil
}
