package middleware

import (
	"context"
	"net/http"
	"time"

	"lobbyd/internal/service"

	"github.com/sirupsen/logrus"
)

// TouchPresence refreshes the caller's presence on every authenticated
// request. A failure here never fails the request.
func TouchPresence(presence *service.PresenceService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := GetUserID(r.Context()); userID != "" {
				ctx, cancel := context.WithTimeout(r.Context(), time.Second)
				if _, err := presence.Heartbeat(ctx, userID); err != nil {
					logrus.WithError(err).WithField("user_id", userID).Debug("presence touch failed")
				}
				cancel()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TriggerJanitor gives the janitor a chance to run on incoming traffic
func TriggerJanitor(j *service.Janitor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			j.MaybeRun()
			next.ServeHTTP(w, r)
		})
	}
}
