package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/mare-nostrum/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// NewGame holds the settings of a game being created.
type NewGame struct {
	Name         string
	CreatorID    string
	MapID        string
	MaxPlayers   int
	MaxTurns     int
	PhaseSeconds int
}

// GameRepository defines game and seat data operations. FindByID returns
// nil, nil for an unknown game.
type GameRepository interface {
	Create(ctx context.Context, g NewGame) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)
	JoinGame(ctx context.Context, seat model.GamePlayer) error
	PlayerCount(ctx context.Context, gameID string) (int, error)
	SetStarted(ctx context.Context, gameID string) error
	SetFinished(ctx context.Context, gameID, winner string) error
}

// PhaseRepository defines phase history operations.
type PhaseRepository interface {
	CreatePhase(ctx context.Context, gameID string, turn int, activity string, stateBefore json.RawMessage, deadline time.Time) (*model.Phase, error)
	CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error)
	FindPhase(ctx context.Context, phaseID string) (*model.Phase, error)
	ListPhases(ctx context.Context, gameID string) ([]model.Phase, error)
	ResolvePhase(ctx context.Context, phaseID string, stateAfter json.RawMessage) error
	ListExpired(ctx context.Context) ([]model.Phase, error)
}

// CommandRepository stores the command log.
type CommandRepository interface {
	SaveCommand(ctx context.Context, cmd *model.Command) error
	CommandsByPhase(ctx context.Context, phaseID string) ([]model.Command, error)
}

// GameCache defines live game state operations.
type GameCache interface {
	SetGameState(ctx context.Context, gameID string, state json.RawMessage) error
	GetGameState(ctx context.Context, gameID string) (json.RawMessage, error)
	MarkPassed(ctx context.Context, gameID, playerID string) error
	PassedPlayers(ctx context.Context, gameID string) ([]string, error)
	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
	ClearPhaseData(ctx context.Context, gameID string) error
	DeleteGameData(ctx context.Context, gameID string) error
}

// Store bundles the repositories of one storage backend.
type Store struct {
	Users    UserRepository
	Games    GameRepository
	Phases   PhaseRepository
	Commands CommandRepository
	Cache    GameCache
	Close    func() error
}
