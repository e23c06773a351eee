package service

import (
	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
}

// NoopBroadcaster drops every event. Used in tests and headless runs.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}

// LogBroadcaster records events at debug level, so a game can be followed
// from the server log alone.
type LogBroadcaster struct{}

func (LogBroadcaster) BroadcastGameEvent(gameID string, eventType string, data any) {
	ev := log.Debug().Str("gameId", gameID).Str("event", eventType)
	if e, ok := data.(civ.Event); ok {
		if e.Player != "" {
			ev = ev.Str("player", string(e.Player))
		}
		if e.Area != "" {
			ev = ev.Str("area", string(e.Area))
		}
	}
	ev.Msg("Game event")
}

type fanout []Broadcaster

func (f fanout) BroadcastGameEvent(gameID string, eventType string, data any) {
	for _, b := range f {
		b.BroadcastGameEvent(gameID, eventType, data)
	}
}

// Fanout delivers every event to each of bs in order. Nil entries are skipped.
func Fanout(bs ...Broadcaster) Broadcaster {
	out := make(fanout, 0, len(bs))
	for _, b := range bs {
		if b != nil {
			out = append(out, b)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
