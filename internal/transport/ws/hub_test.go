package ws

import (
	"encoding/json"
	"testing"
	"time"

	"lobbyd/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) ([]byte, bool) {
	t.Helper()
	select {
	case msg, ok := <-ch:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hub")
		return nil, false
	}
}

func TestHubDeliversToRoomMembers(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	alice := &Connection{RoomID: "r1", UserID: "alice", Send: make(chan []byte, 4)}
	bob := &Connection{RoomID: "r1", UserID: "bob", Send: make(chan []byte, 4)}
	other := &Connection{RoomID: "r2", UserID: "carol", Send: make(chan []byte, 4)}
	hub.Register(alice)
	hub.Register(bob)
	hub.Register(other)
	require.Eventually(t, func() bool { return hub.Connected("r1") == 2 }, time.Second, 5*time.Millisecond)

	hub.Publish(&model.RoomEvent{Type: model.EventPlayerJoined, RoomID: "r1", UserID: "bob"})

	for _, c := range []*Connection{alice, bob} {
		msg, ok := recv(t, c.Send)
		require.True(t, ok)
		var e model.RoomEvent
		require.NoError(t, json.Unmarshal(msg, &e))
		assert.Equal(t, model.EventPlayerJoined, e.Type)
		assert.Equal(t, "r1", e.RoomID)
	}
	assert.Empty(t, other.Send)
}

func TestHubClosesSocketsWhenRoomCloses(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	conn := &Connection{RoomID: "r1", UserID: "alice", Send: make(chan []byte, 4)}
	hub.Register(conn)
	require.Eventually(t, func() bool { return hub.Connected("r1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(&model.RoomEvent{Type: model.EventRoomClosed, RoomID: "r1"})

	_, ok := recv(t, conn.Send)
	assert.True(t, ok, "final event is delivered")
	_, ok = recv(t, conn.Send)
	assert.False(t, ok, "then the channel closes")
	assert.Zero(t, hub.Connected("r1"))

	// Late unregister from the read pump is harmless
	hub.Unregister(conn)
}

func TestHubReplacesSecondConnection(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	first := &Connection{RoomID: "r1", UserID: "alice", Send: make(chan []byte, 1)}
	second := &Connection{RoomID: "r1", UserID: "alice", Send: make(chan []byte, 1)}
	hub.Register(first)
	hub.Register(second)

	_, ok := recv(t, first.Send)
	assert.False(t, ok)

	hub.Unregister(first)
	require.Eventually(t, func() bool { return hub.Connected("r1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Unregister(second)
	require.Eventually(t, func() bool { return hub.Connected("r1") == 0 }, time.Second, 5*time.Millisecond)
}
