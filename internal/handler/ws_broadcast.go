package handler

import "github.com/freeeve/mare-nostrum/pkg/civ"

// seatOnly lists engine signals addressed to a single player. They reach only
// that player's connections; everything else goes to the whole game.
var seatOnly = map[string]bool{
	string(civ.EventMovesRecalculated): true,
}

// BroadcastGameEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastGameEvent(gameID string, eventType string, data any) {
	event := WSEvent{Type: eventType, GameID: gameID, Data: data}
	if seatOnly[eventType] {
		if e, ok := data.(civ.Event); ok && e.Player != "" {
			h.BroadcastToSeat(gameID, e.Player, event)
			return
		}
	}
	h.BroadcastToGame(gameID, event)
}
