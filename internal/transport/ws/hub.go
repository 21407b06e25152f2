package ws

import (
	"encoding/json"
	"log/slog"

	"buzzhost/internal/model"
	"buzzhost/internal/store"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgGameState MessageType = "game_state"
	MsgPlayers   MessageType = "players"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Connection represents a WebSocket connection
type Connection struct {
	RoomID   string
	PlayerID string // Empty for host connections
	IsHost   bool
	Send     chan []byte
}

type broadcastMessage struct {
	roomID string
	data   []byte
}

// Hub manages WebSocket connections per room and relays the store's change
// stream to them. The first connection to a room opens the store
// subscriptions; the last disconnect closes them.
type Hub struct {
	store  store.GameStore
	logger *slog.Logger

	// Owned by the run goroutine
	hostConns   map[string]*Connection
	playerConns map[string]map[string]*Connection // roomID -> playerID -> conn
	unsubs      map[string][]func()

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan broadcastMessage
}

// NewHub creates a new WebSocket hub
func NewHub(st store.GameStore, logger *slog.Logger) *Hub {
	h := &Hub{
		store:       st,
		logger:      logger,
		hostConns:   make(map[string]*Connection),
		playerConns: make(map[string]map[string]*Connection),
		unsubs:      make(map[string][]func()),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan broadcastMessage, 256),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			if h.roomConns(conn.RoomID) == 0 {
				h.watch(conn.RoomID)
			}
			if conn.IsHost {
				if existing, ok := h.hostConns[conn.RoomID]; ok {
					close(existing.Send)
				}
				h.hostConns[conn.RoomID] = conn
				h.logger.Info("host connected", "room", conn.RoomID)
			} else {
				if h.playerConns[conn.RoomID] == nil {
					h.playerConns[conn.RoomID] = make(map[string]*Connection)
				}
				if existing, ok := h.playerConns[conn.RoomID][conn.PlayerID]; ok {
					close(existing.Send)
				}
				h.playerConns[conn.RoomID][conn.PlayerID] = conn
				h.logger.Info("player connected", "room", conn.RoomID, "player", conn.PlayerID)
			}

		case conn := <-h.unregister:
			if conn.IsHost {
				if existing, ok := h.hostConns[conn.RoomID]; ok && existing == conn {
					delete(h.hostConns, conn.RoomID)
					close(conn.Send)
					h.logger.Info("host disconnected", "room", conn.RoomID)
				}
			} else {
				if players, ok := h.playerConns[conn.RoomID]; ok {
					if existing, ok := players[conn.PlayerID]; ok && existing == conn {
						delete(players, conn.PlayerID)
						close(conn.Send)
						h.logger.Info("player disconnected", "room", conn.RoomID, "player", conn.PlayerID)
					}
					if len(players) == 0 {
						delete(h.playerConns, conn.RoomID)
					}
				}
			}
			if h.roomConns(conn.RoomID) == 0 {
				h.unwatch(conn.RoomID)
			}

		case msg := <-h.broadcast:
			if conn, ok := h.hostConns[msg.roomID]; ok {
				h.send(conn, msg.data)
			}
			for _, conn := range h.playerConns[msg.roomID] {
				h.send(conn, msg.data)
			}
		}
	}
}

func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
		// Drop message if buffer full
	}
}

func (h *Hub) roomConns(roomID string) int {
	n := len(h.playerConns[roomID])
	if _, ok := h.hostConns[roomID]; ok {
		n++
	}
	return n
}

// watch opens the store subscriptions for a room and relays every committed
// change into the broadcast channel.
func (h *Hub) watch(roomID string) {
	unsubGame, err := h.store.SubscribeGame(roomID, func(g *model.GameState) {
		h.push(roomID, MsgGameState, g)
	})
	if err != nil {
		h.logger.Error("subscribing to game stream failed", "room", roomID, "error", err)
		return
	}
	unsubPlayers, err := h.store.SubscribePlayers(roomID, func(players []model.Player) {
		h.push(roomID, MsgPlayers, players)
	})
	if err != nil {
		h.logger.Error("subscribing to player stream failed", "room", roomID, "error", err)
		unsubGame()
		return
	}
	h.unsubs[roomID] = []func(){unsubGame, unsubPlayers}
}

func (h *Hub) unwatch(roomID string) {
	for _, unsub := range h.unsubs[roomID] {
		unsub()
	}
	delete(h.unsubs, roomID)
}

func (h *Hub) push(roomID string, msgType MessageType, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding broadcast payload failed", "room", roomID, "error", err)
		return
	}
	data, _ := json.Marshal(&Message{Type: msgType, Payload: body})
	select {
	case h.broadcast <- broadcastMessage{roomID: roomID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "room", roomID)
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}
