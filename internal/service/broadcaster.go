package service

import "lobbyd/internal/model"

// Broadcaster delivers room events to connected members (avoids import cycle)
type Broadcaster interface {
	Publish(event *model.RoomEvent)
}
