package repository_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"lobbyd/internal/repository"
	"lobbyd/internal/repository/repotest"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate mongo container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	var seq atomic.Int64
	repotest.Run(t, func(t *testing.T) (repository.RoomRepo, repository.MembershipRepo) {
		db := client.Database(fmt.Sprintf("lobby_test_%d", seq.Add(1)))

		ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		require.NoError(t, repository.EnsureIndexes(ictx, db))

		t.Cleanup(func() { db.Drop(context.Background()) })
		return repository.NewRoomRepo(db), repository.NewMembershipRepo(db)
	})
}
