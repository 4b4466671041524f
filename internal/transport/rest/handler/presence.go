package handler

import (
	"net/http"

	"lobbyd/internal/service"
	"lobbyd/internal/transport/rest/middleware"
)

// PresenceHandler handles presence endpoints
type PresenceHandler struct {
	presenceSvc *service.PresenceService
}

// NewPresenceHandler creates a new presence handler
func NewPresenceHandler(presenceSvc *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceSvc: presenceSvc}
}

// Heartbeat handles POST /v1/presence/heartbeat
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	p, err := h.presenceSvc.Heartbeat(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}
