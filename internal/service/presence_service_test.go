package service

import (
	"testing"
	"time"

	"lobbyd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceGetRebuildsFromStore(t *testing.T) {
	f := newFixture(t)

	p, err := f.presence.Get(f.ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, model.PresenceOnline, p.Status)
	assert.Empty(t, p.CurrentRoomID)

	room := f.create("host", 4)
	f.mr.FlushAll()

	p, err = f.presence.Get(f.ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, model.PresenceInGame, p.Status)
	assert.Equal(t, room.ID, p.CurrentRoomID)
	assert.True(t, f.mr.Exists("presence:host"), "rebuilt entry is written back")
}

func TestPresenceHeartbeat(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)

	f.clock.Advance(time.Minute)
	p, err := f.presence.Heartbeat(f.ctx, "host")
	require.NoError(t, err)
	assert.True(t, p.LastSeenAt.Equal(f.clock.Now()))
	assert.Equal(t, room.ID, p.CurrentRoomID)

	t.Run("expired entry is repopulated", func(t *testing.T) {
		f.mr.FlushAll()
		p, err := f.presence.Heartbeat(f.ctx, "host")
		require.NoError(t, err)
		assert.Equal(t, model.PresenceInGame, p.Status)
		assert.Equal(t, room.ID, p.CurrentRoomID)
	})

	t.Run("does not count as room activity", func(t *testing.T) {
		before := f.room(room.ID).LastActivityAt
		f.clock.Advance(time.Minute)
		_, err := f.presence.Heartbeat(f.ctx, "host")
		require.NoError(t, err)
		assert.True(t, f.room(room.ID).LastActivityAt.Equal(before))
	})
}

func TestPresenceLeaveRoomIsConditional(t *testing.T) {
	f := newFixture(t)
	f.presence.EnterRoom(f.ctx, "u1", "r2")

	f.presence.LeaveRoom(f.ctx, "u1", "r1")
	assert.True(t, f.presence.Hint(f.ctx, "u1").InRoom("r2"))

	f.presence.LeaveRoom(f.ctx, "u1", "r2")
	p := f.presence.Hint(f.ctx, "u1")
	require.NotNil(t, p)
	assert.Equal(t, model.PresenceOnline, p.Status)
	assert.Empty(t, p.CurrentRoomID)
}

func TestPresenceIgnoresBots(t *testing.T) {
	f := newFixture(t)
	f.presence.EnterRoom(f.ctx, "bot_1234", "r1")
	assert.Nil(t, f.presence.Hint(f.ctx, "bot_1234"))
}

func TestPresenceSurvivesCacheOutage(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.mr.Close()

	assert.Nil(t, f.presence.Hint(f.ctx, "host"))
	f.presence.EnterRoom(f.ctx, "host", room.ID)
	f.presence.LeaveRoom(f.ctx, "host", room.ID)

	// The store still answers
	p, err := f.presence.Get(f.ctx, "host")
	require.NoError(t, err)
	assert.Equal(t, room.ID, p.CurrentRoomID)
}
