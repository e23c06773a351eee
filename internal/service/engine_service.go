package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/logger"
	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// ErrNoPhase is returned for an active game without an open phase.
var ErrNoPhase = errors.New("game has no current phase")

// DefaultMaxTicks bounds one settle run.
const DefaultMaxTicks = 500

// Broadcast event types sent in addition to the engine's own events.
const (
	EventGameStarted  = "game_started"
	EventPhaseChanged = "phase_changed"
	EventGameEnded    = "game_ended"
	EventPlayerPassed = "player_passed"
)

// CommandResult is the outcome of an accepted command.
type CommandResult struct {
	Turn     int          `json:"turn"`
	Activity civ.Activity `json:"activity"`
	Events   []civ.Event  `json:"events"`
	Finished bool         `json:"finished,omitempty"`
}

// EngineService runs the orchestrator for live games: it applies player
// commands, settles the turn sequence, records one phase row per waiting
// activity and applies the default decisions when a deadline passes.
type EngineService struct {
	gameRepo    repository.GameRepository
	phaseRepo   repository.PhaseRepository
	cmdRepo     repository.CommandRepository
	cache       repository.GameCache
	cards       *civ.CardSet
	broadcaster Broadcaster
	maxTicks    int
	now         func() time.Time

	// gameLocks serializes work on one game. The keyspace listener, the
	// poller and player commands can all arrive at once.
	gameLocks sync.Map
}

// NewEngineService creates an EngineService. A nil card set uses the built-in
// cards.
func NewEngineService(
	gameRepo repository.GameRepository,
	phaseRepo repository.PhaseRepository,
	cmdRepo repository.CommandRepository,
	cache repository.GameCache,
	cards *civ.CardSet,
	broadcaster Broadcaster,
) *EngineService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if cards == nil {
		cards = civ.DefaultCards()
	}
	return &EngineService{
		gameRepo:    gameRepo,
		phaseRepo:   phaseRepo,
		cmdRepo:     cmdRepo,
		cache:       cache,
		cards:       cards,
		broadcaster: broadcaster,
		maxTicks:    DefaultMaxTicks,
		now:         time.Now,
	}
}

func (s *EngineService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// session is one game loaded for a single operation.
type session struct {
	game  *model.Game
	phase *model.Phase
	orch  *civ.Orchestrator
}

func (ss *session) state() *civ.GameState { return ss.orch.State() }

// moved reports whether the game left the activity of its open phase.
func (ss *session) moved() bool {
	gs := ss.state()
	return gs.Turn != ss.phase.Turn || string(gs.Activity) != ss.phase.Activity
}

func (s *EngineService) orchestrator(mapID string, raw json.RawMessage) (*civ.Orchestrator, error) {
	b, err := civ.BoardByID(mapID)
	if err != nil {
		return nil, err
	}
	var gs civ.GameState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return civ.NewOrchestrator(b, &gs, s.cards), nil
}

// load reads an active game, its open phase and its live state. The cached
// state is preferred; without one the state is rebuilt from the phase
// snapshot and the phase's command log.
func (s *EngineService) load(ctx context.Context, gameID string) (*session, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != model.StatusActive {
		return nil, ErrGameNotActive
	}
	phase, err := s.phaseRepo.CurrentPhase(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("get current phase: %w", err)
	}
	if phase == nil {
		return nil, ErrNoPhase
	}

	raw, err := s.cache.GetGameState(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("get cached state: %w", err)
	}
	var o *civ.Orchestrator
	if raw == nil {
		o, err = s.replay(ctx, game, phase)
	} else {
		o, err = s.orchestrator(game.MapID, raw)
	}
	if err != nil {
		return nil, err
	}
	return &session{game: game, phase: phase, orch: o}, nil
}

// replay rebuilds the live state of a phase from its snapshot and the
// commands that were applied during it.
func (s *EngineService) replay(ctx context.Context, game *model.Game, phase *model.Phase) (*civ.Orchestrator, error) {
	o, err := s.orchestrator(game.MapID, phase.StateBefore)
	if err != nil {
		return nil, err
	}
	cmds, err := s.cmdRepo.CommandsByPhase(ctx, phase.ID)
	if err != nil {
		return nil, fmt.Errorf("load command log: %w", err)
	}
	ss := &session{game: game, phase: phase, orch: o}
	applied := 0
	for _, rec := range cmds {
		if rec.Result == model.ResultRejected {
			continue
		}
		var cmd civ.Command
		if err := json.Unmarshal(rec.Payload, &cmd); err != nil {
			return nil, fmt.Errorf("unmarshal command %s: %w", rec.ID, err)
		}
		apply := cmd.Apply
		if rec.Result != model.ResultAccepted {
			apply = cmd.ApplyEngine
		}
		if err := apply(o); err != nil {
			return nil, fmt.Errorf("replay command %s: %w", rec.ID, err)
		}
		if err := s.settle(ss); err != nil {
			return nil, fmt.Errorf("replay settle: %w", err)
		}
		applied++
	}
	o.Events()
	log.Info().Str("gameId", game.ID).Str("phaseId", phase.ID).Int("commands", applied).
		Msg("Rebuilt game state from command log")
	return o, nil
}

// settle ticks until the game waits for commands or ends.
func (s *EngineService) settle(ss *session) error {
	for i := 0; i < s.maxTicks; i++ {
		res, err := ss.orch.Tick()
		if err != nil {
			return err
		}
		if over, _ := GameOver(ss.game, ss.state()); over {
			return nil
		}
		if !res.Progress() {
			return nil
		}
	}
	log.Warn().Str("gameId", ss.game.ID).Int("maxTicks", s.maxTicks).Msg("Settle stopped at tick limit")
	return nil
}

// GameOver reports whether a game has ended: the turn limit has passed or at
// most one player is still on the board.
func GameOver(game *model.Game, gs *civ.GameState) (bool, string) {
	if game.MaxTurns > 0 && gs.Turn > game.MaxTurns {
		return true, "turn_limit"
	}
	if len(gs.PlayerOrder) > 1 && len(gs.AlivePlayers()) <= 1 {
		return true, "last_player"
	}
	return false, ""
}

func (s *EngineService) deadline(game *model.Game) time.Time {
	return s.now().Add(game.PhaseDuration())
}

// InitializeGame creates the engine state of a game that just started, runs
// the turn sequence up to the first activity that waits for players and opens
// its phase.
func (s *EngineService) InitializeGame(ctx context.Context, game *model.Game) error {
	mu := s.gameLock(game.ID)
	mu.Lock()
	defer mu.Unlock()

	b, err := civ.BoardByID(game.MapID)
	if err != nil {
		return err
	}
	setups := make([]civ.PlayerSetup, 0, len(game.Players))
	for _, p := range game.Players {
		setups = append(setups, civ.PlayerSetup{ID: civ.PlayerID(p.PlayerID), Name: p.Name, Start: civ.AreaID(p.StartArea)})
	}
	gs, err := civ.NewGame(b, setups)
	if err != nil {
		return err
	}
	o := civ.NewOrchestrator(b, gs, s.cards)
	if err := o.Start(); err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	ss := &session{game: game, orch: o}
	if err := s.settle(ss); err != nil {
		return fmt.Errorf("settle first turn: %w", err)
	}

	raw, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("marshal initial state: %w", err)
	}
	deadline := s.deadline(game)
	if _, err := s.phaseRepo.CreatePhase(ctx, game.ID, gs.Turn, string(gs.Activity), raw, deadline); err != nil {
		return err
	}
	if err := s.cache.SetGameState(ctx, game.ID, raw); err != nil {
		return fmt.Errorf("set game state: %w", err)
	}
	if err := s.cache.SetTimer(ctx, game.ID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	l := logger.ForGame(ctx, game.ID)
	l.Info().Int("players", len(setups)).Str("activity", string(gs.Activity)).
		Time("deadline", deadline).Msg("Game initialized")
	s.broadcaster.BroadcastGameEvent(game.ID, EventGameStarted, map[string]any{
		"turn":     gs.Turn,
		"activity": gs.Activity,
		"deadline": deadline.Format(time.RFC3339),
	})
	s.broadcastEvents(game.ID, o.Events())
	return nil
}

// ApplyCommand applies a command on behalf of userID, who must hold a seat in
// the game; the command's player is always the user's own. A rejected command
// is logged and returned as a *civ.CommandError with the state unchanged.
func (s *EngineService) ApplyCommand(ctx context.Context, gameID, userID string, cmd civ.Command) (*CommandResult, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	seat := ss.game.PlayerFor(userID)
	if seat == nil {
		return nil, ErrNotInGame
	}
	cmd.Player = civ.PlayerID(seat.PlayerID)
	l := logger.ForGame(ctx, gameID)

	if err := cmd.Apply(ss.orch); err != nil {
		var cerr *civ.CommandError
		if !errors.As(err, &cerr) {
			l.Error().Err(err).Str("command", string(cmd.Type)).Msg("Command failed")
			return nil, fmt.Errorf("apply command: %w", err)
		}
		if serr := s.saveCommand(ctx, ss, userID, cmd, model.ResultRejected, cerr.Error()); serr != nil {
			l.Warn().Err(serr).Msg("Failed to log rejected command")
		}
		l.Debug().Str("command", string(cmd.Type)).Str("player", seat.PlayerID).Str("reason", cerr.Message).Msg("Command rejected")
		return nil, err
	}
	if err := s.settle(ss); err != nil {
		l.Error().Err(err).Str("command", string(cmd.Type)).Msg("Settle failed after command")
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := s.saveCommand(ctx, ss, userID, cmd, model.ResultAccepted, ""); err != nil {
		return nil, err
	}
	if cmd.Type == civ.CmdPass {
		if err := s.cache.MarkPassed(ctx, gameID, seat.PlayerID); err != nil {
			l.Warn().Err(err).Msg("Failed to mark player passed")
		}
		s.broadcaster.BroadcastGameEvent(gameID, EventPlayerPassed, map[string]any{"player": seat.PlayerID})
	}
	return s.commit(ctx, ss)
}

// DealCalamity hands player a calamity that resolves in the calamity
// activity of this turn. Calamities arrive with trade cards, so only the
// server deals them; the command is logged without a user.
func (s *EngineService) DealCalamity(ctx context.Context, gameID string, player civ.PlayerID, kind civ.CalamityKind) (*CommandResult, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	l := logger.ForGame(ctx, gameID)
	cmd := civ.Command{Type: civ.CmdHoldCalamity, Player: player, Calamity: kind}
	if err := cmd.ApplyEngine(ss.orch); err != nil {
		return nil, err
	}
	if err := s.settle(ss); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if err := s.saveCommand(ctx, ss, "", cmd, model.ResultDealt, ""); err != nil {
		return nil, err
	}
	l.Info().Str("player", string(player)).Str("calamity", string(kind)).Msg("Calamity dealt")
	return s.commit(ctx, ss)
}

func (s *EngineService) saveCommand(ctx context.Context, ss *session, userID string, cmd civ.Command, result, errMsg string) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return s.cmdRepo.SaveCommand(ctx, &model.Command{
		GameID:   ss.game.ID,
		PhaseID:  ss.phase.ID,
		UserID:   userID,
		PlayerID: string(cmd.Player),
		Type:     string(cmd.Type),
		Payload:  payload,
		Result:   result,
		Error:    errMsg,
	})
}

// commit persists the state of a session. Leaving the activity of the open
// phase resolves that phase and opens the next one with a fresh deadline.
func (s *EngineService) commit(ctx context.Context, ss *session) (*CommandResult, error) {
	gs := ss.state()
	gameID := ss.game.ID
	raw, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	events := ss.orch.Events()
	res := &CommandResult{Turn: gs.Turn, Activity: gs.Activity, Events: events}

	if over, reason := GameOver(ss.game, gs); over {
		if err := s.finish(ctx, ss, raw, reason); err != nil {
			return nil, err
		}
		res.Finished = true
		s.broadcastEvents(gameID, events)
		s.broadcastEnd(gameID, gs, reason)
		return res, nil
	}

	if ss.moved() {
		if err := s.phaseRepo.ResolvePhase(ctx, ss.phase.ID, raw); err != nil {
			return nil, fmt.Errorf("resolve phase: %w", err)
		}
		deadline := s.deadline(ss.game)
		next, err := s.phaseRepo.CreatePhase(ctx, gameID, gs.Turn, string(gs.Activity), raw, deadline)
		if err != nil {
			return nil, fmt.Errorf("create next phase: %w", err)
		}
		if err := s.cache.ClearPhaseData(ctx, gameID); err != nil {
			return nil, fmt.Errorf("clear phase data: %w", err)
		}
		if err := s.cache.SetTimer(ctx, gameID, deadline); err != nil {
			return nil, fmt.Errorf("set timer: %w", err)
		}
		if err := s.cache.SetGameState(ctx, gameID, raw); err != nil {
			return nil, fmt.Errorf("set state: %w", err)
		}
		l := logger.ForGame(ctx, gameID)
		l.Info().
			Str("from", ss.phase.Activity).
			Int("turn", gs.Turn).
			Str("activity", string(gs.Activity)).
			Time("deadline", deadline).
			Msg("Game advanced to next activity")

		s.broadcastEvents(gameID, events)
		s.broadcaster.BroadcastGameEvent(gameID, EventPhaseChanged, map[string]any{
			"phase_id": next.ID,
			"turn":     gs.Turn,
			"activity": gs.Activity,
			"deadline": deadline.Format(time.RFC3339),
		})
		return res, nil
	}

	if err := s.cache.SetGameState(ctx, gameID, raw); err != nil {
		return nil, fmt.Errorf("set state: %w", err)
	}
	s.broadcastEvents(gameID, events)
	return res, nil
}

func (s *EngineService) finish(ctx context.Context, ss *session, raw json.RawMessage, reason string) error {
	gs := ss.state()
	winner := ""
	if st := civ.Standings(gs); len(st) > 0 {
		winner = string(st[0].Player)
	}
	if err := s.phaseRepo.ResolvePhase(ctx, ss.phase.ID, raw); err != nil {
		return fmt.Errorf("resolve final phase: %w", err)
	}
	if err := s.gameRepo.SetFinished(ctx, ss.game.ID, winner); err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	l := logger.ForGame(ctx, ss.game.ID)
	l.Info().Str("winner", winner).Str("reason", reason).Int("turn", gs.Turn).Msg("Game finished")
	return s.cache.DeleteGameData(ctx, ss.game.ID)
}

func (s *EngineService) broadcastEnd(gameID string, gs *civ.GameState, reason string) {
	standings := civ.Standings(gs)
	winner := ""
	if len(standings) > 0 {
		winner = string(standings[0].Player)
	}
	s.broadcaster.BroadcastGameEvent(gameID, EventGameEnded, map[string]any{
		"winner":    winner,
		"reason":    reason,
		"standings": standings,
	})
}

func (s *EngineService) broadcastEvents(gameID string, events []civ.Event) {
	for _, e := range events {
		s.broadcaster.BroadcastGameEvent(gameID, string(e.Type), e)
	}
}

// HandleDeadline applies the default decisions to a game whose phase deadline
// has passed. Games that are no longer active are ignored.
func (s *EngineService) HandleDeadline(ctx context.Context, gameID string) error {
	_, err := s.advance(ctx, gameID, false)
	if errors.Is(err, ErrGameNotActive) || errors.Is(err, ErrGameNotFound) {
		log.Info().Str("gameId", gameID).Msg("Skipping deadline for inactive game")
		return nil
	}
	return err
}

// Advance applies the default decisions immediately. Only the creator of the
// game may do this.
func (s *EngineService) Advance(ctx context.Context, gameID, userID string) (*CommandResult, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.CreatorID != userID {
		return nil, ErrNotCreator
	}
	return s.advance(ctx, gameID, true)
}

// advance settles every pending decision with its default and, if the game
// still waits in the same activity, forces the orchestrator onward.
func (s *EngineService) advance(ctx context.Context, gameID string, early bool) (*CommandResult, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	l := logger.ForGame(ctx, gameID)
	if !early && s.now().Before(ss.phase.Deadline) {
		l.Debug().Time("deadline", ss.phase.Deadline).Msg("Phase deadline not yet reached, skipping")
		return nil, nil
	}
	l.Info().Bool("early", early).Str("activity", ss.phase.Activity).Int("turn", ss.phase.Turn).Msg("Applying default decisions")

	applied, err := civ.ApplyDefaults(ss.orch)
	for _, cmd := range applied {
		if serr := s.saveCommand(ctx, ss, "", cmd, model.ResultDefault, ""); serr != nil {
			l.Warn().Err(serr).Str("player", string(cmd.Player)).Msg("Failed to log default command")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := s.settle(ss); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	if over, _ := GameOver(ss.game, ss.state()); !over && !ss.moved() {
		l.Warn().Str("activity", ss.phase.Activity).Msg("Activity still waiting after defaults, forcing advance")
		if err := ss.orch.ForceAdvance(); err != nil {
			return nil, fmt.Errorf("force advance: %w", err)
		}
		if err := s.settle(ss); err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
	}
	return s.commit(ctx, ss)
}

// State returns the current state of an active game, or the final state of a
// finished one.
func (s *EngineService) State(ctx context.Context, gameID string) (*civ.GameState, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	switch game.Status {
	case model.StatusActive:
		mu := s.gameLock(gameID)
		mu.Lock()
		defer mu.Unlock()
		ss, err := s.load(ctx, gameID)
		if err != nil {
			return nil, err
		}
		return ss.state(), nil
	case model.StatusFinished:
		phases, err := s.phaseRepo.ListPhases(ctx, gameID)
		if err != nil {
			return nil, err
		}
		if len(phases) == 0 {
			return nil, ErrNoPhase
		}
		last := phases[len(phases)-1]
		raw := last.StateAfter
		if raw == nil {
			raw = last.StateBefore
		}
		var gs civ.GameState
		if err := json.Unmarshal(raw, &gs); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		return &gs, nil
	default:
		return nil, ErrGameNotActive
	}
}

// Moves returns the movement options of userID's player.
func (s *EngineService) Moves(ctx context.Context, gameID, userID string) ([]civ.MoveOption, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	seat := ss.game.PlayerFor(userID)
	if seat == nil {
		return nil, ErrNotInGame
	}
	return civ.AvailableMoves(ss.orch.Board(), ss.state(), civ.PlayerID(seat.PlayerID)), nil
}

// RecoverActiveGames restores the cached state and timers of active games
// after a restart. State missing from the cache is rebuilt from the phase
// history.
func (s *EngineService) RecoverActiveGames(ctx context.Context) error {
	games, err := s.gameRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active games: %w", err)
	}
	if len(games) == 0 {
		log.Info().Msg("No active games to recover")
		return nil
	}
	log.Info().Int("count", len(games)).Msg("Recovering active games after restart")

	for _, g := range games {
		if err := s.recover(ctx, g.ID); err != nil {
			log.Error().Err(err).Str("gameId", g.ID).Msg("Failed to recover game")
		}
	}
	return nil
}

func (s *EngineService) recover(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.load(ctx, gameID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(ss.state())
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.cache.SetGameState(ctx, gameID, raw); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if s.now().Before(ss.phase.Deadline) {
		if err := s.cache.SetTimer(ctx, gameID, ss.phase.Deadline); err != nil {
			return fmt.Errorf("restore timer: %w", err)
		}
	}
	log.Info().Str("gameId", gameID).Int("turn", ss.phase.Turn).Str("activity", ss.phase.Activity).
		Time("deadline", ss.phase.Deadline).Msg("Recovered game state")
	return nil
}
