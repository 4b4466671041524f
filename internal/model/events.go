package model

import "time"

// EventType names a room lifecycle event pushed to members
type EventType string

const (
	EventRoomCreated  EventType = "room_created"
	EventPlayerJoined EventType = "player_joined"
	EventPlayerLeft   EventType = "player_left"
	EventHostChanged  EventType = "host_changed"
	EventReadyChanged EventType = "ready_changed"
	EventGameStarted  EventType = "game_started"
	EventGameFinished EventType = "game_finished"
	EventRoomClosed   EventType = "room_closed"
)

// RoomEvent is the envelope published on the event bus and the websocket
type RoomEvent struct {
	Type      EventType   `json:"type"`
	RoomID    string      `json:"roomId"`
	UserID    string      `json:"userId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}
