package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/config"
	"lobbyd/internal/model"
	"lobbyd/internal/repository/memory"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []*model.RoomEvent
}

func (r *recorder) Publish(e *model.RoomEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types(roomID string) []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EventType
	for _, e := range r.events {
		if e.RoomID == roomID {
			out = append(out, e.Type)
		}
	}
	return out
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	mr        *miniredis.Miniredis
	store     *memory.Store
	clock     *fakeClock
	events    *recorder
	presence  *PresenceService
	validator *Validator
	rooms     *RoomService
	janitor   *Janitor
	locker    cache.Locker
}

var testJanitorConfig = config.JanitorConfig{
	Interval:       5 * time.Minute,
	RoomStaleAfter: 10 * time.Minute,
	Retention:      time.Hour,
	SweepTimeout:   5 * time.Second,
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)}
	events := &recorder{}
	locker := cache.NewLocker(rdb, 5*time.Second, 8, time.Millisecond)

	presence := NewPresenceService(cache.NewPresenceCache(rdb, 30*time.Minute), store.Rooms(), store.Memberships())
	presence.now = clock.Now
	validator := NewValidator(store.Rooms(), store.Memberships(), presence)

	rooms := NewRoomService(store.Rooms(), store.Memberships(), presence, validator, locker, config.Default().Rooms)
	rooms.now = clock.Now
	rooms.SetPasswordCost(bcrypt.MinCost)
	rooms.SetBroadcaster(events)
	rooms.SetCodeCache(cache.NewRoomCodeCache(rdb, 10*time.Minute))

	janitor := NewJanitor(store.Rooms(), store.Memberships(), presence, locker, cache.NewJanitorMarker(rdb), testJanitorConfig, 2*time.Minute)
	janitor.now = clock.Now
	janitor.SetBroadcaster(events)

	return &fixture{
		t:         t,
		ctx:       context.Background(),
		mr:        mr,
		store:     store,
		clock:     clock,
		events:    events,
		presence:  presence,
		validator: validator,
		rooms:     rooms,
		janitor:   janitor,
		locker:    locker,
	}
}

// fixedCodes makes room code generation return codes in order
func (f *fixture) fixedCodes(codes ...string) {
	var mu sync.Mutex
	i := 0
	f.rooms.newCode = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return "", fmt.Errorf("no more test codes")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func (f *fixture) create(host string, maxPlayers int) *model.Room {
	f.t.Helper()
	res, err := f.rooms.CreateRoom(f.ctx, host, model.RoomConfig{Name: host + "'s table", MaxPlayers: maxPlayers})
	require.NoError(f.t, err)
	return res.Room
}

func (f *fixture) join(user string, room *model.Room) *JoinResult {
	f.t.Helper()
	res, err := f.rooms.JoinRoom(f.ctx, user, room.Code, "")
	require.NoError(f.t, err)
	return res
}

func (f *fixture) room(id string) *model.Room {
	f.t.Helper()
	r, err := f.store.Rooms().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) members(roomID string) []*model.Membership {
	f.t.Helper()
	list, err := f.store.Memberships().ListByRoom(f.ctx, roomID)
	require.NoError(f.t, err)
	return list
}

// assertInvariants checks the derived count, seat uniqueness and that no user
// holds a membership, absent or not, in more than one of the given active rooms
func (f *fixture) assertInvariants(roomIDs ...string) {
	f.t.Helper()
	activeSeats := map[string]string{}
	for _, id := range roomIDs {
		room := f.room(id)
		if room == nil {
			continue
		}
		members := f.members(id)

		want := 0
		if room.Status.IsActive() {
			want = model.CountPresent(members)
		}
		require.Equal(f.t, want, room.CurrentPlayers, "currentPlayers of %s", id)

		seen := map[int]bool{}
		for _, m := range members {
			require.False(f.t, seen[m.Position], "duplicate position %d in %s", m.Position, id)
			seen[m.Position] = true
			require.True(f.t, m.Position >= 0 && m.Position < room.MaxPlayers, "position %d out of range", m.Position)

			if room.Status.IsActive() {
				prev, dup := activeSeats[m.UserID]
				require.False(f.t, dup, "user %s active in %s and %s", m.UserID, prev, id)
				activeSeats[m.UserID] = id
			}
		}
	}
}

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	require.Error(t, err)
	var svcErr *Error
	require.ErrorAs(t, err, &svcErr)
	require.Equal(t, kind, svcErr.Kind, "error: %v", err)
	return svcErr
}
