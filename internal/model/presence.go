package model

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceInGame  PresenceStatus = "in_game"
	PresenceOffline PresenceStatus = "offline"
)

// Presence is the cached, best-effort view of where a user is
type Presence struct {
	UserID        string         `json:"userId"`
	Status        PresenceStatus `json:"status"`
	CurrentRoomID string         `json:"currentRoomId,omitempty"`
	LastSeenAt    time.Time      `json:"lastSeenAt"`
}

// InRoom reports whether the hint places the user in roomID
func (p *Presence) InRoom(roomID string) bool {
	return p != nil && p.Status != PresenceOffline && p.CurrentRoomID == roomID
}
