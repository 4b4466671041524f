package memory

import (
	"context"
	"testing"
	"time"

	"lobbyd/internal/model"
	"lobbyd/internal/repository"
	"lobbyd/internal/repository/repotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (repository.RoomRepo, repository.MembershipRepo) {
		s := NewStore()
		return s.Rooms(), s.Memberships()
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := &model.Room{ID: "r1", Code: "abcdef", Status: model.RoomWaiting, CreatedAt: time.Now()}
	require.NoError(t, s.Rooms().Create(ctx, room))

	got, err := s.Rooms().GetByID(ctx, "r1")
	require.NoError(t, err)
	got.Status = model.RoomCancelled

	again, err := s.Rooms().GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RoomWaiting, again.Status, "callers must not mutate stored rows")
}

func TestStoreAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := &model.Room{Code: "QWERTY"}
	require.NoError(t, s.Rooms().Create(ctx, room))
	assert.NotEmpty(t, room.ID)
}

func TestMembershipUpdateKeepsPositionsUnique(t *testing.T) {
	ctx := context.Background()
	members := NewStore().Memberships()
	require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "a", Position: 0}))
	require.NoError(t, members.Create(ctx, &model.Membership{RoomID: "r1", UserID: "b", Position: 1}))

	err := members.Update(ctx, &model.Membership{RoomID: "r1", UserID: "b", Position: 0})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}
