package ws

import (
	"encoding/json"
	"sync"

	"lobbyd/internal/model"

	"github.com/sirupsen/logrus"
)

// Hub fans room events out to the members connected to that room
type Hub struct {
	// roomID -> userID -> conn
	conns map[string]map[string]*Connection

	mu sync.RWMutex

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *model.RoomEvent
	stop       chan struct{}
}

// Connection is one member's socket in one room
type Connection struct {
	RoomID string
	UserID string
	Send   chan []byte
}

// NewHub creates a hub and starts its run loop
func NewHub() *Hub {
	h := &Hub{
		conns:      make(map[string]map[string]*Connection),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *model.RoomEvent, 256),
		stop:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.stop:
			return

		case conn := <-h.register:
			h.mu.Lock()
			if h.conns[conn.RoomID] == nil {
				h.conns[conn.RoomID] = make(map[string]*Connection)
			}
			// A second tab replaces the first.
			if old, ok := h.conns[conn.RoomID][conn.UserID]; ok {
				close(old.Send)
			}
			h.conns[conn.RoomID][conn.UserID] = conn
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{"room_id": conn.RoomID, "user_id": conn.UserID}).Debug("ws connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			h.remove(conn)
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// remove drops conn if it is still the registered one. Caller holds mu.
func (h *Hub) remove(conn *Connection) {
	members, ok := h.conns[conn.RoomID]
	if !ok {
		return
	}
	if existing, ok := members[conn.UserID]; ok && existing == conn {
		delete(members, conn.UserID)
		close(conn.Send)
		logrus.WithFields(logrus.Fields{"room_id": conn.RoomID, "user_id": conn.UserID}).Debug("ws disconnected")
	}
	if len(members) == 0 {
		delete(h.conns, conn.RoomID)
	}
}

func (h *Hub) deliver(event *model.RoomEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).WithField("type", event.Type).Error("ws event encode failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.conns[event.RoomID]
	for _, conn := range members {
		select {
		case conn.Send <- data:
		default:
			// Slow reader, drop
		}
	}

	// The room is gone; its sockets close after the final event.
	if event.Type == model.EventRoomClosed {
		for _, conn := range members {
			close(conn.Send)
		}
		delete(h.conns, event.RoomID)
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.stop:
	}
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stop:
	}
}

// Publish queues an event for the room's sockets (implements service.Broadcaster).
// It never blocks the caller; events are dropped when the queue is full.
func (h *Hub) Publish(event *model.RoomEvent) {
	select {
	case h.broadcast <- event:
	default:
		logrus.WithFields(logrus.Fields{"room_id": event.RoomID, "type": event.Type}).Warn("ws broadcast queue full, dropping event")
	}
}

// Connected returns how many sockets are open for roomID
func (h *Hub) Connected(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[roomID])
}

// Stop ends the run loop
func (h *Hub) Stop() {
	close(h.stop)
}
