package model

import (
	"strings"
	"time"
)

// BotPrefix marks synthetic member identifiers. Bots never have presence.
const BotPrefix = "bot_"

// IsBot reports whether userID belongs to a synthetic player
func IsBot(userID string) bool {
	return strings.HasPrefix(userID, BotPrefix)
}

// Membership seats a user in a room. Host identity lives on Room.HostID only.
type Membership struct {
	RoomID   string    `json:"roomId" bson:"roomId"`
	UserID   string    `json:"userId" bson:"userId"`
	Position int       `json:"position" bson:"position"`
	IsReady  bool      `json:"isReady" bson:"isReady"`
	Absent   bool      `json:"absent" bson:"absent"`
	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
}

// Present reports whether the member currently occupies the seat
func (m *Membership) Present() bool {
	return !m.Absent
}

// MemberView is a membership as shown to other members
type MemberView struct {
	UserID   string    `json:"userId"`
	Position int       `json:"position"`
	IsReady  bool      `json:"isReady"`
	IsHost   bool      `json:"isHost"`
	IsBot    bool      `json:"isBot"`
	Absent   bool      `json:"absent"`
	JoinedAt time.Time `json:"joinedAt"`
}

// CountPresent counts memberships that occupy their seat
func CountPresent(members []*Membership) int {
	n := 0
	for _, m := range members {
		if m.Present() {
			n++
		}
	}
	return n
}

// CountPresentHumans counts present memberships that are not bots. A room
// with none left has nobody to run it.
func CountPresentHumans(members []*Membership) int {
	n := 0
	for _, m := range members {
		if m.Present() && !IsBot(m.UserID) {
			n++
		}
	}
	return n
}

// LowestFreePosition returns the smallest seat in [0, maxPlayers) not held by
// any membership, absent ones included, or -1 when every seat is taken.
func LowestFreePosition(members []*Membership, maxPlayers int) int {
	taken := make(map[int]bool, len(members))
	for _, m := range members {
		taken[m.Position] = true
	}
	for p := 0; p < maxPlayers; p++ {
		if !taken[p] {
			return p
		}
	}
	return -1
}

// EarliestPresent picks the present human member with the smallest JoinedAt,
// skipping excludeUserID. Bots are never eligible. Ties break on position.
func EarliestPresent(members []*Membership, excludeUserID string) *Membership {
	var best *Membership
	for _, m := range members {
		if m.Absent || IsBot(m.UserID) || m.UserID == excludeUserID {
			continue
		}
		if best == nil || m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.Position < best.Position) {
			best = m
		}
	}
	return best
}
