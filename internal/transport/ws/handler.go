package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"lobbyd/internal/service"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for dev
	},
}

// clientFrame is the only inbound message shape; anything else is ignored
type clientFrame struct {
	Type string `json:"type"`
}

// Handler upgrades room members to a websocket carrying room events
type Handler struct {
	hub       *Hub
	authSvc   *service.AuthService
	validator *service.Validator
	presence  *service.PresenceService
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, validator *service.Validator, presence *service.PresenceService) *Handler {
	return &Handler{
		hub:       hub,
		authSvc:   authSvc,
		validator: validator,
		presence:  presence,
	}
}

// RoomWS handles GET /v1/ws/rooms/{roomId}?token=
func (h *Handler) RoomWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.Subject

	if _, err := h.validator.ValidatePlayerInRoom(r.Context(), userID, roomID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	conn := &Connection{
		RoomID: roomID,
		UserID: userID,
		Send:   make(chan []byte, 256),
	}
	h.hub.Register(conn)

	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Info("member connected via websocket")

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", conn.UserID).Debug("websocket closed unexpectedly")
			}
			break
		}

		var frame clientFrame
		if json.Unmarshal(data, &frame) != nil || frame.Type != "heartbeat" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if _, err := h.presence.Heartbeat(ctx, conn.UserID); err != nil {
			logrus.WithError(err).WithField("user_id", conn.UserID).Warn("websocket heartbeat failed")
		}
		cancel()
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
