package rest

import (
	"net/http"

	"lobbyd/internal/service"
	"lobbyd/internal/transport/rest/handler"
	"lobbyd/internal/transport/rest/middleware"
	"lobbyd/internal/transport/ws"

	"github.com/gorilla/mux"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService     *service.AuthService
	RoomService     *service.RoomService
	PresenceService *service.PresenceService
	Validator       *service.Validator
	Janitor         *service.Janitor
	WSHub           *ws.Hub
	AllowedOrigins  string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	roomHandler := handler.NewRoomHandler(c.RoomService)
	presenceHandler := handler.NewPresenceHandler(c.PresenceService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.Validator, c.PresenceService)

	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// WebSocket carries its token in the query string
	v1.HandleFunc("/ws/rooms/{roomId}", wsHandler.RoomWS).Methods("GET")

	api := v1.NewRoute().Subrouter()
	api.Use(authMW.RequireUser)
	api.Use(middleware.TouchPresence(c.PresenceService))
	if c.Janitor != nil {
		api.Use(middleware.TriggerJanitor(c.Janitor))
	}

	api.HandleFunc("/rooms", roomHandler.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms", roomHandler.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/rooms/join", roomHandler.Join).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}", roomHandler.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/members", roomHandler.Members).Methods("GET", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/leave", roomHandler.Leave).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/close", roomHandler.Close).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/ready", roomHandler.Ready).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/start", roomHandler.Start).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/finish", roomHandler.Finish).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/abort", roomHandler.Abort).Methods("POST", "OPTIONS")
	api.HandleFunc("/rooms/{roomId}/bots", roomHandler.AddBot).Methods("POST", "OPTIONS")

	api.HandleFunc("/me/room", roomHandler.CurrentRoom).Methods("GET", "OPTIONS")
	api.HandleFunc("/presence/heartbeat", presenceHandler.Heartbeat).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
