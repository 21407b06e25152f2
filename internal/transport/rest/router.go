package rest

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"buzzhost/internal/service"
	"buzzhost/internal/transport/rest/handler"
	"buzzhost/internal/transport/rest/middleware"
	"buzzhost/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService     *service.AuthService
	GameService     *service.GameService
	QuestionService *service.QuestionService
	WSHub           *ws.Hub
	Logger          *slog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	gameHandler := handler.NewGameHandler(c.GameService, c.Logger)
	playerHandler := handler.NewPlayerHandler(c.GameService, c.AuthService)
	questionHandler := handler.NewQuestionHandler(c.QuestionService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.GameService, c.Logger)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware)

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
	v1.HandleFunc("/rooms/{id}/join", playerHandler.Join).Methods("POST", "OPTIONS")
	v1.HandleFunc("/rooms/{id}", gameHandler.Get).Methods("GET", "OPTIONS")
	v1.HandleFunc("/rooms/{id}/players", playerHandler.Players).Methods("GET", "OPTIONS")
	v1.HandleFunc("/rooms/{id}/scores", gameHandler.Scores).Methods("GET", "OPTIONS")
	v1.HandleFunc("/questions", questionHandler.Generate).Methods("POST", "OPTIONS")

	// WebSocket routes (public with token in query param)
	v1.HandleFunc("/ws/rooms/{id}/host", wsHandler.HostWS).Methods("GET")
	v1.HandleFunc("/ws/rooms/{id}/player", wsHandler.PlayerWS).Methods("GET")

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// Host routes (require host auth)
	hostRoutes := v1.NewRoute().Subrouter()
	hostRoutes.Use(authMW.RequireHost)

	hostRoutes.HandleFunc("/rooms/{id}/start", gameHandler.Start).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/rooms/{id}/next", gameHandler.Next).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/rooms/{id}/judge", gameHandler.Judge).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/rooms/{id}/reset-buzzers", gameHandler.ResetBuzzers).Methods("POST", "OPTIONS")
	hostRoutes.HandleFunc("/rooms/{id}/restart", gameHandler.Restart).Methods("POST", "OPTIONS")

	// Player routes (require player auth)
	playerRoutes := v1.NewRoute().Subrouter()
	playerRoutes.Use(authMW.RequirePlayer)

	playerRoutes.HandleFunc("/rooms/{id}/buzz", playerHandler.Buzz).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{id}/presence", playerHandler.Presence).Methods("POST", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		allowedMethods := os.Getenv("CORS_ALLOWED_METHODS")
		if allowedMethods == "" {
			allowedMethods = "GET, POST, PUT, DELETE, OPTIONS"
		}

		allowedHeaders := os.Getenv("CORS_ALLOWED_HEADERS")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Authorization"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
