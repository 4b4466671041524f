package service

import (
	"testing"

	"lobbyd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRoomExists(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)

	got, err := f.validator.ValidateRoomExists(f.ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Code, got.Code)

	_, err = f.validator.ValidateRoomExists(f.ctx, "")
	requireKind(t, err, KindInvalid)

	_, err = f.validator.ValidateRoomExists(f.ctx, "missing")
	requireKind(t, err, KindNotFound)

	require.NoError(t, f.rooms.CloseRoom(f.ctx, "host", room.ID))
	_, err = f.validator.ValidateRoomExists(f.ctx, room.ID)
	svcErr := requireKind(t, err, KindInvalidState)
	require.NotNil(t, svcErr.Room)
	assert.Equal(t, room.Code, svcErr.Room.Code)
}

func TestValidatePlayerInRoom(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.join("bob", room)

	pc, err := f.validator.ValidatePlayerInRoom(f.ctx, "host", room.ID)
	require.NoError(t, err)
	assert.True(t, pc.IsHost)
	assert.Equal(t, 0, pc.Position)

	pc, err = f.validator.ValidatePlayerInRoom(f.ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.False(t, pc.IsHost)
	assert.Equal(t, 1, pc.Position)

	_, err = f.validator.ValidatePlayerInRoom(f.ctx, "stranger", room.ID)
	requireKind(t, err, KindNotFound)

	t.Run("repairs a missing hint", func(t *testing.T) {
		f.mr.Del("presence:bob")
		_, err := f.validator.ValidatePlayerInRoom(f.ctx, "bob", room.ID)
		require.NoError(t, err)
		assert.True(t, f.presence.Hint(f.ctx, "bob").InRoom(room.ID))
	})

	t.Run("clears a hint the store disagrees with", func(t *testing.T) {
		f.presence.EnterRoom(f.ctx, "ghost", room.ID)
		_, err := f.validator.ValidatePlayerInRoom(f.ctx, "ghost", room.ID)
		requireKind(t, err, KindNotFound)
		assert.False(t, f.presence.Hint(f.ctx, "ghost").InRoom(room.ID))
	})

	t.Run("absent host seat is not membership", func(t *testing.T) {
		require.NoError(t, f.rooms.LeaveRoom(f.ctx, "host", room.ID))
		_, err := f.validator.ValidatePlayerInRoom(f.ctx, "host", room.ID)
		requireKind(t, err, KindNotFound)

		pc, err := f.validator.ValidatePlayerIsHost(f.ctx, "bob", room.ID)
		require.NoError(t, err)
		assert.True(t, pc.IsHost)
	})
}

func TestValidatePlayerIsHost(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.join("bob", room)

	_, err := f.validator.ValidatePlayerIsHost(f.ctx, "host", room.ID)
	require.NoError(t, err)

	_, err = f.validator.ValidatePlayerIsHost(f.ctx, "bob", room.ID)
	requireKind(t, err, KindForbidden)
}

func TestValidatePlayerCanPlay(t *testing.T) {
	f := newFixture(t)
	room := f.create("host", 4)
	f.join("bob", room)

	_, err := f.validator.ValidatePlayerCanPlay(f.ctx, "host", room.ID)
	requireKind(t, err, KindInvalidState)

	_, err = f.rooms.SetReady(f.ctx, "bob", room.ID, true)
	require.NoError(t, err)
	_, err = f.rooms.StartGame(f.ctx, "host", room.ID)
	require.NoError(t, err)

	pc, err := f.validator.ValidatePlayerCanPlay(f.ctx, "bob", room.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomPlaying, pc.Room.Status)
}

func TestValidatePlayerNotInRoom(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.validator.ValidatePlayerNotInRoom(f.ctx, "nobody"))

	room := f.create("host", 4)
	err := f.validator.ValidatePlayerNotInRoom(f.ctx, "host")
	svcErr := requireKind(t, err, KindConflict)
	assert.Equal(t, room.Code, svcErr.Room.Code)

	t.Run("stale hint is cleared", func(t *testing.T) {
		f.presence.EnterRoom(f.ctx, "drifter", room.ID)
		require.NoError(t, f.validator.ValidatePlayerNotInRoom(f.ctx, "drifter"))

		p := f.presence.Hint(f.ctx, "drifter")
		require.NotNil(t, p)
		assert.Empty(t, p.CurrentRoomID)
	})

	t.Run("rebuilds from the store on a cold cache", func(t *testing.T) {
		f.mr.FlushAll()
		err := f.validator.ValidatePlayerNotInRoom(f.ctx, "host")
		requireKind(t, err, KindConflict)
	})
}
