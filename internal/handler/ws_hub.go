package handler

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// Event types sent over WebSocket. Engine events are forwarded with the
// engine's own type names.
const (
	EventConnected       = "connected"
	EventSubscribed      = "subscribed"
	EventSubscribeFailed = "subscribe_failed"
	EventPhaseChanged    = service.EventPhaseChanged
	EventGameStarted     = service.EventGameStarted
	EventGameEnded       = service.EventGameEnded
	EventPlayerPassed    = service.EventPlayerPassed
	EventPlayerJoined    = "player_joined"
	EventCommandResult   = "command_result"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"game_id"`
}

// WSConn wraps a WebSocket connection with its user and subscriptions.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub manages WebSocket connections and game-channel subscriptions. Each
// subscription remembers the seat the user holds in that game; spectators
// subscribe with an empty seat.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	games       map[string]map[*WSConn]civ.PlayerID // gameID -> connection -> seat
	dropped     atomic.Int64
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		games:       make(map[string]map[*WSConn]civ.PlayerID),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = true
}

// Unregister removes a connection from the hub and all its subscriptions.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	for gameID, conns := range h.games {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.games, gameID)
		}
	}
	close(c.send)
}

// Subscribe adds a connection to a game channel as seat. Subscribing again
// replaces the seat.
func (h *Hub) Subscribe(c *WSConn, gameID string, seat civ.PlayerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.games[gameID] == nil {
		h.games[gameID] = make(map[*WSConn]civ.PlayerID)
	}
	h.games[gameID][c] = seat
}

// Unsubscribe removes a connection from a game channel.
func (h *Hub) Unsubscribe(c *WSConn, gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.games[gameID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.games, gameID)
		}
	}
}

func (h *Hub) marshal(event WSEvent) ([]byte, bool) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("gameId", event.GameID).Str("type", event.Type).Msg("Failed to marshal WebSocket event")
		return nil, false
	}
	return data, true
}

// deliver queues data without blocking; a full buffer drops the message.
func (h *Hub) deliver(c *WSConn, data []byte, gameID string) {
	select {
	case c.send <- data:
	default:
		h.dropped.Add(1)
		log.Warn().Str("userId", c.userID).Str("gameId", gameID).Msg("Dropping WebSocket message, buffer full")
	}
}

// BroadcastToGame sends an event to all connections subscribed to a game.
func (h *Hub) BroadcastToGame(gameID string, event WSEvent) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.games[gameID] {
		h.deliver(c, data, gameID)
	}
}

// BroadcastToSeat sends an event only to the connections subscribed to a game
// as seat.
func (h *Hub) BroadcastToSeat(gameID string, seat civ.PlayerID, event WSEvent) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c, s := range h.games[gameID] {
		if s == seat {
			h.deliver(c, data, gameID)
		}
	}
}

// BroadcastToUser sends an event to a specific user across all their connections.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.connections {
		if c.userID == userID {
			h.deliver(c, data, event.GameID)
		}
	}
}

// SendTo queues an event for one connection.
func (h *Hub) SendTo(c *WSConn, event WSEvent) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.connections[c] {
		h.deliver(c, data, event.GameID)
	}
}

// SubscriptionCount returns how many games c is subscribed to.
func (h *Hub) SubscriptionCount(c *WSConn) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.games {
		if _, ok := conns[c]; ok {
			n++
		}
	}
	return n
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// GameSubscriberCount returns the number of connections subscribed to a game.
func (h *Hub) GameSubscriberCount(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.games[gameID])
}

// Dropped returns how many messages were discarded on full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
