package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameNotWaiting  = errors.New("game is not in waiting status")
	ErrGameFull        = errors.New("game is full")
	ErrNotEnough       = errors.New("need at least 2 players to start")
	ErrNotCreator      = errors.New("only the creator can do this")
	ErrGameNotActive   = errors.New("game is not active")
	ErrAlreadyJoined   = errors.New("already joined this game")
	ErrNotInGame       = errors.New("you are not in this game")
	ErrInvalidSettings = errors.New("invalid game settings")
)

// Game defaults.
const (
	DefaultMaxTurns = 10
	MinPlayers      = 2
)

// GameSettings are the optional settings of a new game. Zero values take the
// defaults.
type GameSettings struct {
	Name         string `json:"name"`
	MapID        string `json:"map_id"`
	MaxPlayers   int    `json:"max_players"`
	MaxTurns     int    `json:"max_turns"`
	PhaseSeconds int    `json:"phase_seconds"`
}

// GameInitializer prepares the live state of a game that just started.
type GameInitializer interface {
	InitializeGame(ctx context.Context, game *model.Game) error
}

// GameService handles the lobby: creating, joining, starting and listing games.
type GameService struct {
	gameRepo     repository.GameRepository
	userRepo     repository.UserRepository
	cache        repository.GameCache
	init         GameInitializer
	phaseSeconds int
}

// NewGameService creates a GameService. phaseDuration is the default time per
// waiting activity.
func NewGameService(gameRepo repository.GameRepository, userRepo repository.UserRepository, cache repository.GameCache, init GameInitializer, phaseDuration time.Duration) *GameService {
	secs := int(phaseDuration / time.Second)
	if secs <= 0 {
		secs = 120
	}
	return &GameService{gameRepo: gameRepo, userRepo: userRepo, cache: cache, init: init, phaseSeconds: secs}
}

// StartAreas returns the areas new players start in, in seat order: the
// board's city sites.
func StartAreas(b *civ.Board) []civ.AreaID {
	var sites []civ.AreaID
	for _, id := range b.IDs() {
		if b.Area(id).CitySite {
			sites = append(sites, id)
		}
	}
	return sites
}

// CreateGame creates a game in waiting status and seats its creator.
func (s *GameService) CreateGame(ctx context.Context, creatorID string, set GameSettings) (*model.Game, error) {
	if set.MapID == "" {
		set.MapID = civ.AegeanMapID
	}
	b, err := civ.BoardByID(set.MapID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	seats := len(StartAreas(b))
	if set.MaxPlayers == 0 {
		set.MaxPlayers = seats
	}
	if set.MaxPlayers < MinPlayers || set.MaxPlayers > seats {
		return nil, fmt.Errorf("%w: max_players must be between %d and %d", ErrInvalidSettings, MinPlayers, seats)
	}
	if set.MaxTurns == 0 {
		set.MaxTurns = DefaultMaxTurns
	}
	if set.PhaseSeconds == 0 {
		set.PhaseSeconds = s.phaseSeconds
	}
	if set.MaxTurns < 0 || set.PhaseSeconds < 0 {
		return nil, fmt.Errorf("%w: max_turns and phase_seconds must be positive", ErrInvalidSettings)
	}
	if set.Name == "" {
		set.Name = "Untitled"
	}

	game, err := s.gameRepo.Create(ctx, repository.NewGame{
		Name:         set.Name,
		CreatorID:    creatorID,
		MapID:        set.MapID,
		MaxPlayers:   set.MaxPlayers,
		MaxTurns:     set.MaxTurns,
		PhaseSeconds: set.PhaseSeconds,
	})
	if err != nil {
		return nil, err
	}
	if err := s.JoinGame(ctx, game.ID, creatorID); err != nil {
		return nil, err
	}
	return s.gameRepo.FindByID(ctx, game.ID)
}

// JoinGame seats a user in a waiting game. Seats get player IDs p1, p2, ...
// and the start areas of the board in order.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != model.StatusWaiting {
		return ErrGameNotWaiting
	}
	if game.PlayerFor(userID) != nil {
		return ErrAlreadyJoined
	}
	n := len(game.Players)
	if n >= game.MaxPlayers {
		return ErrGameFull
	}
	b, err := civ.BoardByID(game.MapID)
	if err != nil {
		return err
	}

	name := userID
	if u, err := s.userRepo.FindByID(ctx, userID); err == nil && u != nil {
		name = u.DisplayName
	}
	seat := model.GamePlayer{
		GameID:    gameID,
		UserID:    userID,
		PlayerID:  fmt.Sprintf("p%d", n+1),
		Name:      name,
		StartArea: string(StartAreas(b)[n]),
	}
	if err := s.gameRepo.JoinGame(ctx, seat); err != nil {
		return err
	}
	log.Info().Str("gameId", gameID).Str("userId", userID).Str("player", seat.PlayerID).Msg("Player joined")
	return nil
}

// StartGame activates a waiting game and hands it to the initializer, which
// creates the first phase.
func (s *GameService) StartGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != model.StatusWaiting {
		return nil, ErrGameNotWaiting
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if len(game.Players) < MinPlayers {
		return nil, ErrNotEnough
	}

	if err := s.gameRepo.SetStarted(ctx, gameID); err != nil {
		return nil, err
	}
	game.Status = model.StatusActive
	if err := s.init.InitializeGame(ctx, game); err != nil {
		return nil, fmt.Errorf("initialize game: %w", err)
	}
	return s.gameRepo.FindByID(ctx, gameID)
}

// GetGame returns a game with the number of players that passed the current
// activity.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status == model.StatusActive {
		passed, err := s.cache.PassedPlayers(ctx, gameID)
		if err != nil {
			log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to read passed players")
		}
		game.PassedCount = len(passed)
	}
	return game, nil
}

// ListGames returns open games, or the games of userID for filter "my", or
// active games for filter "active".
func (s *GameService) ListGames(ctx context.Context, userID, filter string) ([]model.Game, error) {
	switch filter {
	case "my":
		return s.gameRepo.ListByUser(ctx, userID)
	case "active":
		return s.gameRepo.ListActive(ctx)
	default:
		return s.gameRepo.ListOpen(ctx)
	}
}
