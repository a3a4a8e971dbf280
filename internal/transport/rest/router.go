package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"troll/internal/service"
	"troll/internal/transport/rest/handler"
	"troll/internal/transport/rest/middleware"
	"troll/internal/transport/ws"
)

// Container holds all dependencies for the router.
type Container struct {
	AuthService *service.AuthService
	GameService *service.GameService
	WSHub       *ws.Hub
	Log         zerolog.Logger
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.GameService, c.WSHub)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.GameService, c.Log)
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(corsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes: creating and joining is how a token is obtained.
	v1.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	v1.HandleFunc("/sessions/{code}/join", sessionHandler.Join).Methods("POST", "OPTIONS")

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/sessions/{code}", wsHandler.SessionWS).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Participant routes
	participantRoutes := v1.NewRoute().Subrouter()
	participantRoutes.Use(authMW.RequireParticipant)

	participantRoutes.HandleFunc("/sessions/{code}/answers", sessionHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/selections", sessionHandler.Select).Methods("POST", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/ready", sessionHandler.Ready).Methods("POST", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/proceed", sessionHandler.Proceed).Methods("POST", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/results", sessionHandler.Results).Methods("POST", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/state", sessionHandler.State).Methods("GET", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/scoreboard", sessionHandler.Scoreboard).Methods("GET", "OPTIONS")
	participantRoutes.HandleFunc("/sessions/{code}/leave", sessionHandler.Leave).Methods("POST", "OPTIONS")

	// Creator routes
	creatorRoutes := v1.NewRoute().Subrouter()
	creatorRoutes.Use(authMW.RequireCreator)

	creatorRoutes.HandleFunc("/sessions/{code}/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	creatorRoutes.HandleFunc("/sessions/{code}/advance", sessionHandler.Advance).Methods("POST", "OPTIONS")
	creatorRoutes.HandleFunc("/sessions/{code}/end", sessionHandler.End).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
