package service

import (
	"testing"
	"time"

	"lobbyd/internal/cache"
	"lobbyd/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitorReapsStaleRooms(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.join("bob", room)

	f.clock.Advance(11 * time.Minute)
	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleRooms)

	assert.Nil(t, f.room(room.ID))
	assert.Empty(t, f.members(room.ID))

	for _, u := range []string{"host", "bob"} {
		p := f.presence.Hint(f.ctx, u)
		require.NotNil(t, p, u)
		assert.Empty(t, p.CurrentRoomID, u)
	}

	_, err = f.rooms.JoinRoom(f.ctx, "carol", room.Code, "")
	requireKind(t, err, KindNotFound)

	assert.Contains(t, f.events.types(room.ID), model.EventRoomClosed)

	// Both are free to start over
	f.create("host", 4)
}

func TestJanitorKeepsRecentlyActiveRooms(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)

	f.clock.Advance(8 * time.Minute)
	f.join("bob", room)
	f.clock.Advance(8 * time.Minute)

	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.StaleRooms)
	assert.NotNil(t, f.room(room.ID))
}

func TestJanitorReapsEmptyWaitingRooms(t *testing.T) {
	f := newFixture(t)
	empty := f.create("host", 4)
	botsOnly := f.create("third", 4)
	_, err := f.rooms.AddBot(f.ctx, "third", botsOnly.ID)
	require.NoError(t, err)
	busy := f.create("other", 4)

	for _, r := range []*model.Room{empty, botsOnly} {
		seat, err := f.store.Memberships().Get(f.ctx, r.ID, r.HostID)
		require.NoError(t, err)
		seat.Absent = true
		require.NoError(t, f.store.Memberships().Update(f.ctx, seat))
	}

	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.EmptyRooms)
	assert.Nil(t, f.room(empty.ID))
	assert.Nil(t, f.room(botsOnly.ID), "bots alone do not keep a room")
	assert.NotNil(t, f.room(busy.ID))
}

func TestJanitorPurgesTerminalRoomsAfterRetention(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	require.NoError(t, f.rooms.CloseRoom(f.ctx, "host", room.ID))

	f.clock.Advance(30 * time.Minute)
	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.PurgedRooms)
	assert.NotNil(t, f.room(room.ID))

	f.clock.Advance(31 * time.Minute)
	report, err = f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PurgedRooms)
	assert.Nil(t, f.room(room.ID))
}

func TestJanitorMarksSilentUsersOffline(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.join("bob", room)

	f.clock.Advance(3 * time.Minute)
	_, err := f.presence.Heartbeat(f.ctx, "bob")
	require.NoError(t, err)

	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OfflineUsers)

	host := f.presence.Hint(f.ctx, "host")
	require.NotNil(t, host)
	assert.Equal(t, model.PresenceOffline, host.Status)
	assert.Equal(t, room.ID, host.CurrentRoomID)

	bob := f.presence.Hint(f.ctx, "bob")
	assert.Equal(t, model.PresenceInGame, bob.Status)

	// Offline is not leaving: the seat is still held
	assert.Equal(t, 2, f.room(room.ID).CurrentPlayers)
}

func TestJanitorSkipsLockedRooms(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.clock.Advance(11 * time.Minute)

	held, err := f.locker.TryAcquire(f.ctx, cache.RoomLockKey(room.ID))
	require.NoError(t, err)

	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.StaleRooms)
	assert.GreaterOrEqual(t, report.SkippedBusy, 1)
	assert.NotNil(t, f.room(room.ID))

	require.NoError(t, held.Release(f.ctx))
	report, err = f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleRooms)
}

func TestJanitorRepeatedSweepsAreHarmless(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.clock.Advance(11 * time.Minute)

	_, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	report, err := f.janitor.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Nil(t, f.room(room.ID))
}

func TestJanitorMaybeRun(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.clock.Advance(11 * time.Minute)

	require.True(t, f.janitor.MaybeRun())
	f.janitor.Wait()
	assert.Nil(t, f.room(room.ID))

	assert.False(t, f.janitor.MaybeRun(), "checked within the interval")

	t.Run("another instance defers to the shared marker", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		defer rdb.Close()
		other := NewJanitor(f.store.Rooms(), f.store.Memberships(), f.presence, f.locker, cache.NewJanitorMarker(rdb), testJanitorConfig, 2*time.Minute)
		other.now = f.clock.Now

		stale := f.create("second", 4)
		f.clock.Advance(11 * time.Minute)

		require.True(t, other.MaybeRun())
		other.Wait()
		assert.NotNil(t, f.room(stale.ID), "marker still held by the first sweep")

		f.mr.FastForward(testJanitorConfig.Interval)
		f.clock.Advance(testJanitorConfig.Interval)
		require.True(t, other.MaybeRun())
		other.Wait()
		assert.Nil(t, f.room(stale.ID))
	})
}
