package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"lobbyd/internal/model"
	"lobbyd/internal/service"

	"github.com/sirupsen/logrus"
)

// retryAfterSeconds is sent with 503 responses for lock contention
const retryAfterSeconds = "1"

type errorBody struct {
	Kind    service.Kind   `json:"kind"`
	Message string         `json:"message"`
	Room    *model.RoomRef `json:"room,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind service.Kind, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Kind: kind, Message: message}})
}

// statusFor maps an error kind onto an HTTP status
func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindInvalid:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict, service.KindInvalidState:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindTransientBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders a service error. Internal causes are logged and
// never shown to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		svcErr = &service.Error{Kind: service.KindInternal, Message: "internal error"}
	}

	status := statusFor(svcErr.Kind)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	writeJSON(w, status, map[string]errorBody{"error": {
		Kind:    svcErr.Kind,
		Message: svcErr.Message,
		Room:    svcErr.Room,
	}})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
