package handler

import (
	"net/http"
	"strconv"

	"lobbyd/internal/model"
	"lobbyd/internal/service"
	"lobbyd/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
)

// RoomHandler handles room endpoints
type RoomHandler struct {
	roomSvc *service.RoomService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomSvc *service.RoomService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc}
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
	IsPrivate  bool   `json:"isPrivate"`
	Password   string `json:"password,omitempty"`
}

// CreateRoomResponse is returned by a successful create
type CreateRoomResponse struct {
	RoomID         string           `json:"roomId"`
	Code           string           `json:"code"`
	Name           string           `json:"name"`
	Status         model.RoomStatus `json:"status"`
	Position       int              `json:"position"`
	CurrentPlayers int              `json:"currentPlayers"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.KindInvalid, "invalid request body")
		return
	}

	res, err := h.roomSvc.CreateRoom(r.Context(), userID, model.RoomConfig{
		Name:       req.Name,
		MaxPlayers: req.MaxPlayers,
		IsPrivate:  req.IsPrivate,
		Password:   req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRoomResponse{
		RoomID:         res.Room.ID,
		Code:           res.Room.Code,
		Name:           res.Room.Name,
		Status:         res.Room.Status,
		Position:       res.Membership.Position,
		CurrentPlayers: res.Room.CurrentPlayers,
	})
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
}

// JoinResponse is returned by a successful join
type JoinResponse struct {
	RoomID         string `json:"roomId"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Position       int    `json:"position"`
	CurrentPlayers int    `json:"currentPlayers"`
}

// Join handles POST /v1/rooms/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.KindInvalid, "invalid request body")
		return
	}

	res, err := h.roomSvc.JoinRoom(r.Context(), userID, req.Code, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, JoinResponse{
		RoomID:         res.Room.ID,
		Code:           res.Room.Code,
		Name:           res.Room.Name,
		Position:       res.Membership.Position,
		CurrentPlayers: res.Room.CurrentPlayers,
	})
}

// List handles GET /v1/rooms?name=&hasSpace=&limit=
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RoomFilter{Name: q.Get("name")}
	if v := q.Get("hasSpace"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, service.KindInvalid, "hasSpace must be a boolean")
			return
		}
		filter.HasSpace = b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, service.KindInvalid, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	rooms, err := h.roomSvc.ListJoinable(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// Get handles GET /v1/rooms/{roomId}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	detail, err := h.roomSvc.GetRoom(r.Context(), middleware.GetUserID(r.Context()), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Members handles GET /v1/rooms/{roomId}/members
func (h *RoomHandler) Members(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	members, err := h.roomSvc.ListMembers(r.Context(), middleware.GetUserID(r.Context()), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

// Leave handles POST /v1/rooms/{roomId}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if err := h.roomSvc.LeaveRoom(r.Context(), middleware.GetUserID(r.Context()), roomID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Close handles POST /v1/rooms/{roomId}/close
func (h *RoomHandler) Close(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if err := h.roomSvc.CloseRoom(r.Context(), middleware.GetUserID(r.Context()), roomID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ReadyRequest is the request body for toggling readiness
type ReadyRequest struct {
	Ready bool `json:"ready"`
}

// Ready handles POST /v1/rooms/{roomId}/ready
func (h *RoomHandler) Ready(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	var req ReadyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, service.KindInvalid, "invalid request body")
		return
	}

	m, err := h.roomSvc.SetReady(r.Context(), middleware.GetUserID(r.Context()), roomID, req.Ready)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Start handles POST /v1/rooms/{roomId}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	room, err := h.roomSvc.StartGame(r.Context(), middleware.GetUserID(r.Context()), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// Finish handles POST /v1/rooms/{roomId}/finish
func (h *RoomHandler) Finish(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	room, err := h.roomSvc.FinishGame(r.Context(), middleware.GetUserID(r.Context()), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// Abort handles POST /v1/rooms/{roomId}/abort
func (h *RoomHandler) Abort(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	if err := h.roomSvc.AbortGame(r.Context(), middleware.GetUserID(r.Context()), roomID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AddBot handles POST /v1/rooms/{roomId}/bots
func (h *RoomHandler) AddBot(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]

	bot, err := h.roomSvc.AddBot(r.Context(), middleware.GetUserID(r.Context()), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, bot)
}

// CurrentRoom handles GET /v1/me/room
func (h *RoomHandler) CurrentRoom(w http.ResponseWriter, r *http.Request) {
	detail, err := h.roomSvc.CurrentRoom(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if detail == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"room": nil})
		return
	}

	writeJSON(w, http.StatusOK, detail)
}
