// Package sim plays scripted games through the engine service for soak
// testing and record generation.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// ArenaConfig configures a single scripted game.
type ArenaConfig struct {
	GameName     string
	Players      int     // seats, 2..number of city sites
	MaxTurns     int     // game ends once this turn is complete
	Seed         int64   // 0 = random
	CalamityRate float64 // chance per player and turn of drawing a calamity
	MoveRate     float64 // chance of marching out of each occupied area
}

// ArenaResult describes the outcome of a completed arena game.
type ArenaResult struct {
	GameID      string         `json:"game_id"`
	Winner      string         `json:"winner"`
	Reason      string         `json:"reason"`
	FinalTurn   int            `json:"final_turn"`
	TotalPhases int            `json:"total_phases"`
	Commands    int            `json:"commands"`
	Rejected    int            `json:"rejected"`
	Calamities  int            `json:"calamities"`
	Standings   []civ.Standing `json:"standings"`
	Events      map[string]int `json:"events"`
}

// recorder counts broadcast events and keeps the end of game summary.
type recorder struct {
	mu     sync.Mutex
	counts map[string]int
	winner string
	reason string
}

func newRecorder() *recorder {
	return &recorder{counts: make(map[string]int)}
}

func (r *recorder) BroadcastGameEvent(gameID string, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[eventType]++
	if eventType != service.EventGameEnded {
		return
	}
	if m, ok := data.(map[string]any); ok {
		r.winner, _ = m["winner"].(string)
		r.reason, _ = m["reason"].(string)
	}
	log.Debug().Str("gameId", gameID).Str("winner", r.winner).Str("reason", r.reason).Msg("Arena game ended")
}

// maxActivitiesPerTurn bounds the drive loop; a turn has four waiting
// activities plus the occasional reduction.
const maxActivitiesPerTurn = 12

// RunGame plays a full game with scripted players against store and returns
// the outcome. Every command goes through the engine service, so the phase
// history and command log are recorded exactly as for a served game.
func RunGame(ctx context.Context, cfg ArenaConfig, store *repository.Store, deck *civ.CardSet) (*ArenaResult, error) {
	if cfg.Players == 0 {
		cfg.Players = 3
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = service.DefaultMaxTurns
	}
	if cfg.GameName == "" {
		cfg.GameName = "civsim"
	}
	if cfg.MoveRate == 0 {
		cfg.MoveRate = 0.6
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if deck == nil {
		deck = civ.DefaultCards()
	}

	rec := newRecorder()
	engine := service.NewEngineService(store.Games, store.Phases, store.Commands, store.Cache, deck, rec)
	games := service.NewGameService(store.Games, store.Users, store.Cache, engine, time.Hour)

	game, err := createArenaGame(ctx, cfg, games, store.Users)
	if err != nil {
		return nil, fmt.Errorf("create arena game: %w", err)
	}
	b, err := civ.BoardByID(game.MapID)
	if err != nil {
		return nil, err
	}

	d := &driver{
		engine: engine,
		board:  b,
		deck:   deck,
		rng:    rand.New(rand.NewSource(seed)),
		cfg:    cfg,
		game:   game,
		seats:  make(map[civ.PlayerID]string),
	}
	for _, p := range game.Players {
		d.seats[civ.PlayerID(p.PlayerID)] = p.UserID
	}
	result := &ArenaResult{GameID: game.ID}

	limit := cfg.MaxTurns*maxActivitiesPerTurn + maxActivitiesPerTurn
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i >= limit {
			return nil, fmt.Errorf("game %s did not finish within %d activities", game.ID, limit)
		}
		current, err := store.Games.FindByID(ctx, game.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusFinished {
			break
		}

		gs, err := engine.State(ctx, game.ID)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		turn, activity := gs.Turn, gs.Activity
		if err := d.play(ctx, gs); err != nil {
			return nil, fmt.Errorf("turn %d %s: %w", turn, activity, err)
		}

		current, err = store.Games.FindByID(ctx, game.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == model.StatusFinished {
			break
		}
		gs, err = engine.State(ctx, game.ID)
		if err != nil {
			return nil, fmt.Errorf("load state: %w", err)
		}
		if gs.Turn == turn && gs.Activity == activity {
			// Someone still owes a decision; let the defaults take it.
			if _, err := engine.Advance(ctx, game.ID, game.CreatorID); err != nil {
				return nil, fmt.Errorf("advance turn %d %s: %w", turn, activity, err)
			}
		}
	}

	final, err := engine.State(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("final state: %w", err)
	}
	phases, err := store.Phases.ListPhases(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	result.Winner = rec.winner
	result.Reason = rec.reason
	result.Events = rec.counts
	rec.mu.Unlock()
	result.FinalTurn = final.Turn
	result.TotalPhases = len(phases)
	result.Standings = civ.Standings(final)
	result.Commands = d.commands
	result.Rejected = d.rejected
	result.Calamities = d.calamities

	log.Info().Str("gameId", game.ID).Str("winner", result.Winner).Str("reason", result.Reason).
		Int("turn", result.FinalTurn).Int("phases", result.TotalPhases).Msg("Arena game finished")
	return result, nil
}

// createArenaGame seats cfg.Players scripted users and starts the game.
func createArenaGame(ctx context.Context, cfg ArenaConfig, games *service.GameService, users repository.UserRepository) (*model.Game, error) {
	var ids []string
	for i := range cfg.Players {
		user, err := users.Upsert(ctx, "sim", fmt.Sprintf("civsim-%d", i+1), fmt.Sprintf("Sim %d", i+1), "")
		if err != nil {
			return nil, fmt.Errorf("upsert sim user %d: %w", i+1, err)
		}
		ids = append(ids, user.ID)
	}

	game, err := games.CreateGame(ctx, ids[0], service.GameSettings{
		Name:       cfg.GameName,
		MaxPlayers: cfg.Players,
		MaxTurns:   cfg.MaxTurns,
	})
	if err != nil {
		return nil, err
	}
	for _, id := range ids[1:] {
		if err := games.JoinGame(ctx, game.ID, id); err != nil {
			return nil, fmt.Errorf("join %s: %w", id, err)
		}
	}
	return games.StartGame(ctx, game.ID, ids[0])
}

// driver issues the scripted commands of every seat.
type driver struct {
	engine *service.EngineService
	board  *civ.Board
	deck   *civ.CardSet
	rng    *rand.Rand
	cfg    ArenaConfig
	game   *model.Game
	seats  map[civ.PlayerID]string

	commands   int
	rejected   int
	calamities int
}

var calamityKinds = []civ.CalamityKind{civ.VolcanoEarthquake, civ.Famine, civ.Flood, civ.Epidemic}

// play acts for every player still pending in the current activity. Activities
// without a script are left to the deadline defaults.
func (d *driver) play(ctx context.Context, gs *civ.GameState) error {
	for _, pid := range gs.PlayerOrder {
		p := gs.Players[pid]
		if p == nil || p.Mark != civ.PlayerPending {
			continue
		}
		var err error
		switch gs.Activity {
		case civ.Movement:
			err = d.march(ctx, pid)
		case civ.CityConstruction:
			err = d.build(ctx, gs, pid)
		case civ.AcquireCivilizationCards:
			err = d.acquire(ctx, p)
		default:
			continue
		}
		if err != nil {
			return err
		}
		if err := d.send(ctx, pid, civ.Command{Type: civ.CmdPass}); err != nil {
			return err
		}
	}
	return nil
}

// march moves a random share of each movable stack to a random neighbour.
func (d *driver) march(ctx context.Context, pid civ.PlayerID) error {
	moves, err := d.engine.Moves(ctx, d.game.ID, d.seats[pid])
	if err != nil {
		return err
	}
	for _, m := range moves {
		if len(m.To) == 0 || m.Tokens == 0 || d.rng.Float64() >= d.cfg.MoveRate {
			continue
		}
		cmd := civ.Command{
			Type:  civ.CmdMoveTokens,
			Area:  m.From,
			To:    m.To[d.rng.Intn(len(m.To))],
			Count: 1 + d.rng.Intn(m.Tokens),
		}
		if err := d.send(ctx, pid, cmd); err != nil {
			return err
		}
	}
	return nil
}

// build founds a city wherever pid holds enough tokens, then draws a
// calamity at the configured rate.
func (d *driver) build(ctx context.Context, gs *civ.GameState, pid civ.PlayerID) error {
	for _, id := range d.board.IDs() {
		need := civ.CityCost
		if d.board.Area(id).CitySite {
			need = civ.CitySiteCost
		}
		if st := gs.Areas[id]; st == nil || st.City != nil || len(gs.AreaTokens(id, pid)) < need {
			continue
		}
		if err := d.send(ctx, pid, civ.Command{Type: civ.CmdBuildCity, Area: id}); err != nil {
			return err
		}
	}
	if d.rng.Float64() < d.cfg.CalamityRate {
		kind := calamityKinds[d.rng.Intn(len(calamityKinds))]
		d.commands++
		_, err := d.engine.DealCalamity(ctx, d.game.ID, pid, kind)
		if err := d.tally(err); err != nil {
			return err
		}
		d.calamities++
	}
	return nil
}

// acquire takes the first card p does not own yet, half of the time.
func (d *driver) acquire(ctx context.Context, p *civ.Player) error {
	if d.rng.Intn(2) == 0 {
		return nil
	}
	for _, id := range d.deck.CardIDs() {
		if !p.HasCivCard(id) {
			return d.send(ctx, p.ID, civ.Command{Type: civ.CmdAcquireCivCard, Card: id})
		}
	}
	return nil
}

// send applies cmd for pid. Rejections are counted, not fatal; the scripts
// work from a snapshot that earlier commands may have made stale.
func (d *driver) send(ctx context.Context, pid civ.PlayerID, cmd civ.Command) error {
	d.commands++
	_, err := d.engine.ApplyCommand(ctx, d.game.ID, d.seats[pid], cmd)
	return d.tally(err)
}

// tally counts a rejection and passes any other failure through.
func (d *driver) tally(err error) error {
	var cmdErr *civ.CommandError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cmdErr), errors.Is(err, service.ErrGameNotActive):
		d.rejected++
		return nil
	default:
		return err
	}
}
