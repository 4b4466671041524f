package model

import (
	"strings"
	"time"
)

type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomPlaying   RoomStatus = "playing"
	RoomFinished  RoomStatus = "finished"
	RoomCancelled RoomStatus = "cancelled"
)

// ActiveRoomStatuses are the statuses in which a room still holds its members.
var ActiveRoomStatuses = []RoomStatus{RoomWaiting, RoomPlaying}

// IsActive reports whether members of a room in this status count as "in a room".
func (s RoomStatus) IsActive() bool {
	return s == RoomWaiting || s == RoomPlaying
}

// IsTerminal reports whether the room can only be hard-deleted from here.
func (s RoomStatus) IsTerminal() bool {
	return s == RoomFinished || s == RoomCancelled
}

// CanTransition reports whether from -> to is an edge of the room state machine.
func (s RoomStatus) CanTransition(to RoomStatus) bool {
	switch s {
	case RoomWaiting:
		return to == RoomPlaying || to == RoomCancelled
	case RoomPlaying:
		return to == RoomFinished || to == RoomCancelled
	}
	return false
}

// Room is a game lobby. CurrentPlayers is derived from the membership set and
// is rewritten after every membership mutation.
type Room struct {
	ID             string     `json:"id" bson:"_id,omitempty"`
	Code           string     `json:"code" bson:"code"`
	Name           string     `json:"name" bson:"name"`
	HostID         string     `json:"hostId" bson:"hostId"`
	MaxPlayers     int        `json:"maxPlayers" bson:"maxPlayers"`
	CurrentPlayers int        `json:"currentPlayers" bson:"currentPlayers"`
	Status         RoomStatus `json:"status" bson:"status"`
	IsPrivate      bool       `json:"isPrivate" bson:"isPrivate"`
	PasswordHash   *string    `json:"-" bson:"passwordHash,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"createdAt"`
	LastActivityAt time.Time  `json:"lastActivityAt" bson:"lastActivityAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty" bson:"startedAt,omitempty"`
	EndedAt        *time.Time `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
}

// RoomConfig is what a host supplies when creating a room
type RoomConfig struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	IsPrivate  bool   `json:"isPrivate"`
	Password   string `json:"password,omitempty"`
}

// RoomRef identifies a room in error payloads and events
type RoomRef struct {
	ID   string `json:"roomId"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Ref returns the public identity of the room
func (r *Room) Ref() *RoomRef {
	return &RoomRef{ID: r.ID, Code: r.Code, Name: r.Name}
}

// RoomFilter narrows the joinable room listing
type RoomFilter struct {
	Name     string
	HasSpace bool
	Limit    int
}

// RoomSummary is a listing row
type RoomSummary struct {
	ID             string     `json:"roomId"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	CurrentPlayers int        `json:"currentPlayers"`
	MaxPlayers     int        `json:"maxPlayers"`
	Status         RoomStatus `json:"status"`
	IsPrivate      bool       `json:"isPrivate"`
}

// Summary projects the room onto a listing row
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		CurrentPlayers: r.CurrentPlayers,
		MaxPlayers:     r.MaxPlayers,
		Status:         r.Status,
		IsPrivate:      r.IsPrivate,
	}
}

// NormalizeCode makes room codes case-insensitive
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
