// Package repotest holds behaviour checks shared by every repository backend.
package repotest

import (
	"context"
	"testing"
	"time"

	"lobbyd/internal/model"
	"lobbyd/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Backend returns a fresh, empty pair of repositories
type Backend func(t *testing.T) (repository.RoomRepo, repository.MembershipRepo)

func newRoom(id, code, host string, status model.RoomStatus, activity time.Time) *model.Room {
	return &model.Room{
		ID:             id,
		Code:           code,
		Name:           "table " + id,
		HostID:         host,
		MaxPlayers:     4,
		Status:         status,
		CreatedAt:      activity,
		LastActivityAt: activity,
	}
}

// Run exercises the unique keys, lookups and conditional deletes
func Run(t *testing.T, backend Backend) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("room codes are unique and case-insensitive", func(t *testing.T) {
		rooms, _ := backend(t)
		require.NoError(t, rooms.Create(ctx, newRoom("r1", "abc123", "h1", model.RoomWaiting, t0)))

		err := rooms.Create(ctx, newRoom("r2", "ABC123", "h2", model.RoomWaiting, t0))
		assert.ErrorIs(t, err, repository.ErrDuplicate)

		got, err := rooms.GetByCode(ctx, "Abc123")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "r1", got.ID)
		assert.Equal(t, "ABC123", got.Code)

		exists, err := rooms.CodeExists(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("missing lookups return nil", func(t *testing.T) {
		rooms, members := backend(t)
		r, err := rooms.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, r)

		r, err = rooms.GetByCode(ctx, "ZZZZZZ")
		require.NoError(t, err)
		assert.Nil(t, r)

		m, err := members.Get(ctx, "nope", "nobody")
		require.NoError(t, err)
		assert.Nil(t, m)

		deleted, err := members.Delete(ctx, "nope", "nobody")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("active room by host", func(t *testing.T) {
		rooms, _ := backend(t)
		require.NoError(t, rooms.Create(ctx, newRoom("old", "OLD001", "h1", model.RoomFinished, t0)))

		r, err := rooms.FindActiveByHost(ctx, "h1")
		require.NoError(t, err)
		assert.Nil(t, r)

		require.NoError(t, rooms.Create(ctx, newRoom("new", "NEW001", "h1", model.RoomWaiting, t0)))
		r, err = rooms.FindActiveByHost(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, "new", r.ID)
	})

	t.Run("seat and position are unique per room", func(t *testing.T) {
		_, members := backend(t)
		require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "a", Position: 0, JoinedAt: t0}))

		err := members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "a", Position: 1, JoinedAt: t0})
		assert.ErrorIs(t, err, repository.ErrDuplicate)

		err = members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "b", Position: 0, JoinedAt: t0})
		assert.ErrorIs(t, err, repository.ErrDuplicate)

		// Same position in another room is fine
		require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r2", UserID: "b", Position: 0, JoinedAt: t0}))
	})

	t.Run("present count ignores absent seats", func(t *testing.T) {
		_, members := backend(t)
		require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "a", Position: 0, IsReady: true, JoinedAt: t0}))
		require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "b", Position: 1, JoinedAt: t0}))

		n, err := members.CountPresent(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		m, err := members.Get(ctx, "r1", "a")
		require.NoError(t, err)
		m.Absent = true
		m.IsReady = false
		require.NoError(t, members.Update(ctx, m))

		n, err = members.CountPresent(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		list, err := members.ListByRoom(ctx, "r1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a", list[0].UserID)
		assert.True(t, list[0].Absent)
	})

	t.Run("delete by room", func(t *testing.T) {
		_, members := backend(t)
		for i, u := range []string{"a", "b", "c"} {
			require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: u, Position: i, JoinedAt: t0}))
		}
		require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r2", UserID: "a", Position: 0, JoinedAt: t0}))

		n, err := members.DeleteByRoom(ctx, "r1")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		left, err := members.ListByUser(ctx, "a")
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "r2", left[0].RoomID)
	})

	t.Run("sweep listing and conditional delete", func(t *testing.T) {
		rooms, _ := backend(t)
		require.NoError(t, rooms.Create(ctx, newRoom("stale", "STALE1", "h1", model.RoomWaiting, t0)))
		require.NoError(t, rooms.Create(ctx, newRoom("fresh", "FRESH1", "h2", model.RoomWaiting, t0.Add(time.Hour))))
		require.NoError(t, rooms.Create(ctx, newRoom("done", "DONE01", "h3", model.RoomFinished, t0)))

		cutoff := t0.Add(30 * time.Minute)
		ids, err := rooms.ListIDs(ctx, model.ActiveRoomStatuses, cutoff)
		require.NoError(t, err)
		assert.Equal(t, []string{"stale"}, ids)

		ids, err = rooms.ListIDs(ctx, []model.RoomStatus{model.RoomWaiting}, time.Time{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"stale", "fresh"}, ids)

		// Condition no longer holds
		deleted, err := rooms.DeleteIf(ctx, "fresh", model.ActiveRoomStatuses, cutoff)
		require.NoError(t, err)
		assert.False(t, deleted)

		deleted, err = rooms.DeleteIf(ctx, "stale", model.ActiveRoomStatuses, cutoff)
		require.NoError(t, err)
		assert.True(t, deleted)

		// Repeating is a no-op
		deleted, err = rooms.DeleteIf(ctx, "stale", model.ActiveRoomStatuses, cutoff)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("joinable listing", func(t *testing.T) {
		rooms, _ := backend(t)
		full := newRoom("full", "FULL01", "h1", model.RoomWaiting, t0)
		full.CurrentPlayers = 4
		open := newRoom("open", "OPEN01", "h2", model.RoomWaiting, t0.Add(time.Minute))
		open.Name = "Friday Poker"
		open.CurrentPlayers = 1
		playing := newRoom("play", "PLAY01", "h3", model.RoomPlaying, t0)
		for _, r := range []*model.Room{full, open, playing} {
			require.NoError(t, rooms.Create(ctx, r))
		}

		list, err := rooms.ListJoinable(ctx, model.RoomFilter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "open", list[0].ID, "newest first")

		list, err = rooms.ListJoinable(ctx, model.RoomFilter{HasSpace: true, Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "open", list[0].ID)

		list, err = rooms.ListJoinable(ctx, model.RoomFilter{Name: "poker", Limit: 10})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "open", list[0].ID)
	})
}
