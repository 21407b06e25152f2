package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"buzzhost/internal/model"
	"buzzhost/internal/service"
	"buzzhost/internal/transport/rest/middleware"
)

// GameHandler handles room state and host command endpoints
type GameHandler struct {
	engine *service.GameService
	logger *slog.Logger
}

// NewGameHandler creates a new game handler
func NewGameHandler(engine *service.GameService, logger *slog.Logger) *GameHandler {
	return &GameHandler{engine: engine, logger: logger}
}

// Get handles GET /v1/rooms/{id}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	game, err := h.engine.Snapshot(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// Scores handles GET /v1/rooms/{id}/scores
func (h *GameHandler) Scores(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	limit := 0
	if topStr := r.URL.Query().Get("top"); topStr != "" {
		if n, err := strconv.Atoi(topStr); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.engine.Scores(r.Context(), roomID, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scores": entries})
}

// Start handles POST /v1/rooms/{id}/start
func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	game, err := h.engine.StartGame(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("game started", "room", roomID, "host", middleware.GetHostID(r.Context()))
	writeJSON(w, http.StatusOK, game)
}

// Next handles POST /v1/rooms/{id}/next
func (h *GameHandler) Next(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	game, err := h.engine.NextQuestion(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// JudgeRequest is the request body for judging a buzzed answer
type JudgeRequest struct {
	Status        string `json:"status"`
	StealPlayerID string `json:"stealPlayerId,omitempty"`
}

// Judge handles POST /v1/rooms/{id}/judge
func (h *GameHandler) Judge(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	var req JudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := h.engine.JudgeAnswer(r.Context(), roomID, model.AnswerStatus(req.Status), req.StealPlayerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// ResetBuzzers handles POST /v1/rooms/{id}/reset-buzzers
func (h *GameHandler) ResetBuzzers(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	game, err := h.engine.ResetBuzzers(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// Restart handles POST /v1/rooms/{id}/restart
func (h *GameHandler) Restart(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	game, err := h.engine.RestartGame(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.logger.Info("game restarted", "room", roomID, "host", middleware.GetHostID(r.Context()))
	writeJSON(w, http.StatusOK, game)
}
