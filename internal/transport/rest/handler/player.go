package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"buzzhost/internal/model"
	"buzzhost/internal/service"
	"buzzhost/internal/transport/rest/middleware"
)

// PlayerHandler handles player join, buzz and presence endpoints
type PlayerHandler struct {
	engine  *service.GameService
	authSvc *service.AuthService
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(engine *service.GameService, authSvc *service.AuthService) *PlayerHandler {
	return &PlayerHandler{engine: engine, authSvc: authSvc}
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
}

// Join handles POST /v1/rooms/{id}/join
func (h *PlayerHandler) Join(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Subject == "" {
		writeError(w, http.StatusBadRequest, "subject is required")
		return
	}

	player, rejoined, game, err := h.engine.AddPlayer(r.Context(), roomID, req.Name, req.Subject)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	token, err := h.authSvc.GeneratePlayerToken(roomID, player.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, &model.JoinResponse{
		PlayerID: player.ID,
		Token:    token,
		Rejoined: rejoined,
		Game:     game,
	})
}

// Buzz handles POST /v1/rooms/{id}/buzz
func (h *PlayerHandler) Buzz(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	playerID := middleware.GetPlayerID(r.Context())

	if middleware.GetRoomID(r.Context()) != roomID {
		writeError(w, http.StatusForbidden, "token not valid for this room")
		return
	}

	game, err := h.engine.Buzz(r.Context(), roomID, playerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// PresenceRequest is the request body for a presence update
type PresenceRequest struct {
	Online bool `json:"online"`
}

// Presence handles POST /v1/rooms/{id}/presence
func (h *PlayerHandler) Presence(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	playerID := middleware.GetPlayerID(r.Context())

	if middleware.GetRoomID(r.Context()) != roomID {
		writeError(w, http.StatusForbidden, "token not valid for this room")
		return
	}

	var req PresenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.SetPlayerOnline(r.Context(), roomID, playerID, req.Online); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

// Players handles GET /v1/rooms/{id}/players
func (h *PlayerHandler) Players(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	players, err := h.engine.Players(r.Context(), roomID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"players": players})
}
