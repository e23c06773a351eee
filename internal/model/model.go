package model

import (
	"encoding/json"
	"time"
)

// Game statuses.
const (
	StatusWaiting  = "waiting"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Command results.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultDefault  = "default" // applied by the server at a deadline
	ResultDealt    = "dealt"   // calamity dealt by the server with trade cards
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id" db:"id"`
	Provider    string    `json:"provider" db:"provider"`
	ProviderID  string    `json:"provider_id" db:"provider_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Game represents a game and its lobby.
type Game struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	CreatorID    string       `json:"creator_id" db:"creator_id"`
	Status       string       `json:"status" db:"status"`
	MapID        string       `json:"map_id" db:"map_id"`
	MaxPlayers   int          `json:"max_players" db:"max_players"`
	MaxTurns     int          `json:"max_turns" db:"max_turns"`
	PhaseSeconds int          `json:"phase_seconds" db:"phase_seconds"`
	Winner       string       `json:"winner,omitempty" db:"winner"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty" db:"started_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty" db:"finished_at"`
	Players      []GamePlayer `json:"players,omitempty" db:"-"`
	PassedCount  int          `json:"passed_count,omitempty" db:"-"`
}

// PhaseDuration is the time allowed for each activity that waits on players.
func (g *Game) PhaseDuration() time.Duration {
	return time.Duration(g.PhaseSeconds) * time.Second
}

// PlayerFor returns the membership of userID, or nil.
func (g *Game) PlayerFor(userID string) *GamePlayer {
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return &g.Players[i]
		}
	}
	return nil
}

// GamePlayer represents a user's seat in a game.
type GamePlayer struct {
	GameID    string    `json:"game_id" db:"game_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	PlayerID  string    `json:"player_id" db:"player_id"`
	Name      string    `json:"name" db:"name"`
	StartArea string    `json:"start_area" db:"start_area"`
	JoinedAt  time.Time `json:"joined_at" db:"joined_at"`
}

// Phase is one activity of one turn. StateBefore is the snapshot taken when
// the activity was entered, StateAfter when it was left.
type Phase struct {
	ID          string          `json:"id" db:"id"`
	GameID      string          `json:"game_id" db:"game_id"`
	Turn        int             `json:"turn" db:"turn"`
	Activity    string          `json:"activity" db:"activity"`
	StateBefore json.RawMessage `json:"state_before" db:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty" db:"state_after"`
	Deadline    time.Time       `json:"deadline" db:"deadline"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Command is an input command as received and its outcome.
type Command struct {
	ID        string          `json:"id" db:"id"`
	GameID    string          `json:"game_id" db:"game_id"`
	PhaseID   string          `json:"phase_id" db:"phase_id"`
	UserID    string          `json:"user_id,omitempty" db:"user_id"`
	PlayerID  string          `json:"player_id" db:"player_id"`
	Type      string          `json:"type" db:"type"`
	Payload   json.RawMessage `json:"payload" db:"payload"`
	Result    string          `json:"result" db:"result"`
	Error     string          `json:"error,omitempty" db:"error"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
