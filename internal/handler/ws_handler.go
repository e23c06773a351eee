package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256

	// maxSubscriptions caps the games one connection may watch at once.
	maxSubscriptions = 16
)

// originChecker accepts the origins in a comma-separated list, or any origin
// for "*". Requests without an Origin header are not from browsers and pass.
func originChecker(allowedOrigins string) func(*http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}
	if allowed["*"] {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub      *Hub
	jwtMgr   *auth.JWTManager
	gameRepo repository.GameRepository
	upgrader websocket.Upgrader
}

// NewWSHandler creates a WSHandler. Subscriptions are only accepted for games
// known to gameRepo; upgrades only from allowedOrigins.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, gameRepo repository.GameRepository, allowedOrigins string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		jwtMgr:   jwtMgr,
		gameRepo: gameRepo,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// seatFor looks up the seat userID holds in gameID. A user without a seat
// may still watch; ok is false only when the game does not exist.
func (h *WSHandler) seatFor(gameID, userID string) (seat civ.PlayerID, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	game, err := h.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Subscription lookup failed")
		return "", false
	}
	if game == nil {
		return "", false
	}
	if p := game.PlayerFor(userID); p != nil {
		seat = civ.PlayerID(p.PlayerID)
	}
	return seat, true
}

// ServeWS handles GET /api/v1/ws and upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers).
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, `{"error":"missing token parameter"}`, http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtMgr.ValidateKind(tokenStr, auth.KindAccess)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		userID: claims.UserID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is live.
	welcome, _ := json.Marshal(WSEvent{Type: EventConnected, Data: map[string]any{}})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Action {
		case "subscribe":
			if h.hub.SubscriptionCount(c) >= maxSubscriptions {
				h.hub.SendTo(c, WSEvent{Type: EventSubscribeFailed, GameID: msg.GameID, Data: map[string]string{"error": "too many subscriptions"}})
				continue
			}
			seat, ok := h.seatFor(msg.GameID, c.userID)
			if msg.GameID == "" || !ok {
				h.hub.SendTo(c, WSEvent{Type: EventSubscribeFailed, GameID: msg.GameID, Data: map[string]string{"error": "game not found"}})
				continue
			}
			h.hub.Subscribe(c, msg.GameID, seat)
			h.hub.SendTo(c, WSEvent{Type: EventSubscribed, GameID: msg.GameID, Data: map[string]string{"player": string(seat)}})
		case "unsubscribe":
			if msg.GameID != "" {
				h.hub.Unsubscribe(c, msg.GameID)
			}
		}
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One JSON event per frame.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
