package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"buzzhost/internal/service"
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

// Handler handles WebSocket connections
type Handler struct {
	hub     *Hub
	authSvc *service.AuthService
	engine  *service.GameService
	logger  *slog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, engine *service.GameService, logger *slog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		authSvc: authSvc,
		engine:  engine,
		logger:  logger,
	}
}

// HostWS handles GET /v1/ws/rooms/{id}/host
func (h *Handler) HostWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateHostToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	conn := &Connection{
		RoomID: roomID,
		IsHost: true,
		Send:   make(chan []byte, 256),
	}
	h.hub.Register(conn)
	h.logger.Info("host websocket open", "room", roomID, "host", claims.HostID)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn, nil)
}

// PlayerWS handles GET /v1/ws/rooms/{id}/player
func (h *Handler) PlayerWS(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidatePlayerToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if claims.RoomID != roomID {
		http.Error(w, "token not valid for this room", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "room", roomID, "error", err)
		return
	}

	conn := &Connection{
		RoomID:   roomID,
		PlayerID: claims.PlayerID,
		Send:     make(chan []byte, 256),
	}
	h.hub.Register(conn)
	h.logger.Info("player websocket open", "room", roomID, "player", claims.PlayerID)

	// A reconnecting player may have fallen out of the game document, for
	// example after a host restart from an archived copy. Repair before
	// marking presence so the game doc carries the entry again.
	if err := h.engine.EnsurePlayerInGame(r.Context(), roomID, claims.PlayerID); err != nil {
		h.logger.Warn("restoring player in game failed", "room", roomID, "player", claims.PlayerID, "error", err)
	}
	if err := h.engine.SetPlayerOnline(r.Context(), roomID, claims.PlayerID, true); err != nil {
		h.logger.Warn("marking player online failed", "room", roomID, "player", claims.PlayerID, "error", err)
	}

	offline := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.engine.SetPlayerOnline(ctx, roomID, claims.PlayerID, false); err != nil {
			h.logger.Warn("marking player offline failed", "room", roomID, "player", claims.PlayerID, "error", err)
		}
	}

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn, offline)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection, onClose func()) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
		if onClose != nil {
			onClose()
		}
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", "room", conn.RoomID, "error", err)
			}
			break
		}
		// Incoming messages are ignored; all game actions go through the
		// REST API
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
