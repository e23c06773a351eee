package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/repository/memory"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

type engineFixture struct {
	store  *repository.Store
	cache  *memory.Cache
	engine *EngineService
	bc     *mockBroadcaster
	clock  time.Time
	alice  string
	bob    string
	game   *model.Game
}

// newEngineFixture starts a two player game: alice (p1, att) created it and
// bob (p2, cre) joined.
func newEngineFixture(t *testing.T, maxTurns int) *engineFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New().Store()
	f := &engineFixture{
		store: store,
		cache: store.Cache.(*memory.Cache),
		bc:    &mockBroadcaster{},
		clock: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = f.newEngine(store.Cache)

	alice, _ := store.Users.Upsert(ctx, "dev", "alice", "Alice", "")
	bob, _ := store.Users.Upsert(ctx, "dev", "bob", "Bob", "")
	f.alice, f.bob = alice.ID, bob.ID

	games := NewGameService(store.Games, store.Users, store.Cache, f.engine, time.Minute)
	g, err := games.CreateGame(ctx, f.alice, GameSettings{Name: "test", MaxTurns: maxTurns})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	if err := games.JoinGame(ctx, g.ID, f.bob); err != nil {
		t.Fatalf("JoinGame: %v", err)
	}
	if f.game, err = games.StartGame(ctx, g.ID, f.alice); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return f
}

func (f *engineFixture) newEngine(cache repository.GameCache) *EngineService {
	e := NewEngineService(f.store.Games, f.store.Phases, f.store.Commands, cache, nil, f.bc)
	e.now = func() time.Time { return f.clock }
	return e
}

func (f *engineFixture) apply(t *testing.T, userID string, cmd civ.Command) *CommandResult {
	t.Helper()
	res, err := f.engine.ApplyCommand(context.Background(), f.game.ID, userID, cmd)
	if err != nil {
		t.Fatalf("ApplyCommand(%s): %v", cmd.Type, err)
	}
	return res
}

func (f *engineFixture) passBoth(t *testing.T) *CommandResult {
	t.Helper()
	f.apply(t, f.alice, civ.Command{Type: civ.CmdPass})
	return f.apply(t, f.bob, civ.Command{Type: civ.CmdPass})
}

func (f *engineFixture) state(t *testing.T) *civ.GameState {
	t.Helper()
	gs, err := f.engine.State(context.Background(), f.game.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	return gs
}

func (f *engineFixture) currentPhase(t *testing.T) *model.Phase {
	t.Helper()
	p, err := f.store.Phases.CurrentPhase(context.Background(), f.game.ID)
	if err != nil || p == nil {
		t.Fatalf("CurrentPhase: %+v, %v", p, err)
	}
	return p
}

func TestInitializeGameOpensMovementPhase(t *testing.T) {
	f := newEngineFixture(t, 0)
	p := f.currentPhase(t)
	if p.Turn != 1 || p.Activity != string(civ.Movement) {
		t.Errorf("expected turn 1 movement, got %d %s", p.Turn, p.Activity)
	}
	if want := f.clock.Add(time.Minute); !p.Deadline.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, p.Deadline)
	}
	if d, ok := f.cache.Deadline(f.game.ID); !ok || !d.Equal(p.Deadline) {
		t.Errorf("expected cached timer %v, got %v", p.Deadline, d)
	}
	gs := f.state(t)
	if gs.PopulationOf("p1") != 2 || gs.PopulationOf("p2") != 2 {
		t.Errorf("expected expansion to 2 tokens each, got %d and %d", gs.PopulationOf("p1"), gs.PopulationOf("p2"))
	}
	if f.bc.count(EventGameStarted) != 1 {
		t.Errorf("expected one game_started event")
	}
	if f.bc.count(string(civ.EventMovesRecalculated)) == 0 {
		t.Errorf("expected engine events to be broadcast")
	}
}

func TestApplyCommandPassAdvancesWhenAllPassed(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()
	first := f.currentPhase(t)

	res := f.apply(t, f.alice, civ.Command{Type: civ.CmdPass})
	if res.Activity != civ.Movement {
		t.Fatalf("expected to wait for bob in movement, got %s", res.Activity)
	}
	if passed, _ := f.cache.PassedPlayers(ctx, f.game.ID); len(passed) != 1 || passed[0] != "p1" {
		t.Errorf("expected p1 passed, got %v", passed)
	}

	f.clock = f.clock.Add(10 * time.Second)
	res = f.apply(t, f.bob, civ.Command{Type: civ.CmdPass})
	if res.Activity != civ.CityConstruction {
		t.Fatalf("expected city construction, got %s", res.Activity)
	}

	phases, _ := f.store.Phases.ListPhases(ctx, f.game.ID)
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if phases[0].ID != first.ID || phases[0].ResolvedAt == nil || phases[0].StateAfter == nil {
		t.Errorf("expected first phase resolved, got %+v", phases[0])
	}
	if phases[1].Activity != string(civ.CityConstruction) || !phases[1].Deadline.Equal(f.clock.Add(time.Minute)) {
		t.Errorf("unexpected next phase %+v", phases[1])
	}
	if passed, _ := f.cache.PassedPlayers(ctx, f.game.ID); len(passed) != 0 {
		t.Errorf("expected passed set cleared, got %v", passed)
	}
	if f.bc.count(EventPhaseChanged) != 1 {
		t.Errorf("expected one phase_changed event, got %d", f.bc.count(EventPhaseChanged))
	}

	cmds, _ := f.store.Commands.CommandsByPhase(ctx, first.ID)
	if len(cmds) != 2 || cmds[0].Result != model.ResultAccepted || cmds[1].PlayerID != "p2" {
		t.Errorf("unexpected command log %+v", cmds)
	}
}

func TestApplyCommandRejected(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()

	_, err := f.engine.ApplyCommand(ctx, f.game.ID, f.alice, civ.Command{Type: civ.CmdBuildCity, Area: "att"})
	var cerr *civ.CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CommandError, got %v", err)
	}

	cmds, _ := f.store.Commands.CommandsByPhase(ctx, f.currentPhase(t).ID)
	if len(cmds) != 1 || cmds[0].Result != model.ResultRejected || cmds[0].Error == "" {
		t.Errorf("expected a logged rejection, got %+v", cmds)
	}
	if gs := f.state(t); gs.Players["p1"].Mark != civ.PlayerPending {
		t.Errorf("state should be unchanged, p1 is %s", gs.Players["p1"].Mark)
	}
}

func TestApplyCommandActsForOwnPlayer(t *testing.T) {
	f := newEngineFixture(t, 0)
	f.apply(t, f.alice, civ.Command{Type: civ.CmdPass, Player: "p2"})

	gs := f.state(t)
	if gs.Players["p1"].Mark != civ.PlayerSettled || gs.Players["p2"].Mark != civ.PlayerPending {
		t.Errorf("expected only p1 settled, got p1=%s p2=%s", gs.Players["p1"].Mark, gs.Players["p2"].Mark)
	}
}

func TestApplyCommandErrors(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()

	if _, err := f.engine.ApplyCommand(ctx, f.game.ID, "stranger", civ.Command{Type: civ.CmdPass}); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
	if _, err := f.engine.ApplyCommand(ctx, "missing", f.alice, civ.Command{Type: civ.CmdPass}); !errors.Is(err, ErrGameNotFound) {
		t.Errorf("expected ErrGameNotFound, got %v", err)
	}
}

func TestApplyCommandMoveTokens(t *testing.T) {
	f := newEngineFixture(t, 0)
	f.apply(t, f.alice, civ.Command{Type: civ.CmdMoveTokens, Area: "att", To: "boe", Count: 1})

	gs := f.state(t)
	if n := len(gs.AreaTokens("boe", "p1")); n != 1 {
		t.Errorf("expected 1 token in boe, got %d", n)
	}
	if n := len(gs.AreaTokens("att", "p1")); n != 1 {
		t.Errorf("expected 1 token left in att, got %d", n)
	}
}

func TestHandleDeadline(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()
	first := f.currentPhase(t)

	if err := f.engine.HandleDeadline(ctx, f.game.ID); err != nil {
		t.Fatalf("HandleDeadline: %v", err)
	}
	if p := f.currentPhase(t); p.ID != first.ID {
		t.Fatalf("deadline not reached, phase should not change")
	}

	f.clock = f.clock.Add(2 * time.Minute)
	if err := f.engine.HandleDeadline(ctx, f.game.ID); err != nil {
		t.Fatalf("HandleDeadline: %v", err)
	}
	if p := f.currentPhase(t); p.Activity != string(civ.CityConstruction) {
		t.Errorf("expected city construction after deadline, got %s", p.Activity)
	}
	cmds, _ := f.store.Commands.CommandsByPhase(ctx, first.ID)
	if len(cmds) != 2 {
		t.Fatalf("expected 2 default commands, got %+v", cmds)
	}
	for _, c := range cmds {
		if c.Result != model.ResultDefault || c.Type != string(civ.CmdPass) || c.UserID != "" {
			t.Errorf("unexpected default command %+v", c)
		}
	}
}

func TestHandleDeadlineIgnoresInactiveGame(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()
	_ = f.store.Games.SetFinished(ctx, f.game.ID, "")
	if err := f.engine.HandleDeadline(ctx, f.game.ID); err != nil {
		t.Errorf("expected nil for a finished game, got %v", err)
	}
}

func TestAdvance(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()

	if _, err := f.engine.Advance(ctx, f.game.ID, f.bob); !errors.Is(err, ErrNotCreator) {
		t.Errorf("expected ErrNotCreator, got %v", err)
	}
	res, err := f.engine.Advance(ctx, f.game.ID, f.alice)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Activity != civ.CityConstruction {
		t.Errorf("expected city construction, got %s", res.Activity)
	}
}

func TestStateRebuiltFromCommandLog(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()
	f.apply(t, f.alice, civ.Command{Type: civ.CmdMoveTokens, Area: "att", To: "boe", Count: 1})
	f.apply(t, f.alice, civ.Command{Type: civ.CmdPass})
	_, _ = f.engine.ApplyCommand(ctx, f.game.ID, f.bob, civ.Command{Type: civ.CmdBuildCity, Area: "cre"})

	if err := f.cache.DeleteGameData(ctx, f.game.ID); err != nil {
		t.Fatal(err)
	}
	gs := f.state(t)
	if gs.Players["p1"].Mark != civ.PlayerSettled {
		t.Errorf("expected p1 settled after replay, got %s", gs.Players["p1"].Mark)
	}
	if n := len(gs.AreaTokens("boe", "p1")); n != 1 {
		t.Errorf("expected replayed move, got %d tokens in boe", n)
	}
	if err := gs.CheckConsistency(); err != nil {
		t.Errorf("replayed state inconsistent: %v", err)
	}
}

func TestDealCalamity(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()

	_, err := f.engine.ApplyCommand(ctx, f.game.ID, f.bob, civ.Command{Type: civ.CmdHoldCalamity, Calamity: civ.Famine})
	var cerr *civ.CommandError
	if !errors.As(err, &cerr) {
		t.Fatalf("players cannot deal themselves calamities, got %v", err)
	}
	if _, err := f.engine.DealCalamity(ctx, f.game.ID, "p2", civ.Famine); err != nil {
		t.Fatalf("DealCalamity: %v", err)
	}

	cmds, _ := f.store.Commands.CommandsByPhase(ctx, f.currentPhase(t).ID)
	if len(cmds) != 2 || cmds[0].Result != model.ResultRejected || cmds[1].Result != model.ResultDealt || cmds[1].UserID != "" {
		t.Fatalf("expected a rejection then a dealt calamity, got %+v", cmds)
	}

	if err := f.cache.DeleteGameData(ctx, f.game.ID); err != nil {
		t.Fatal(err)
	}
	gs := f.state(t)
	if held := gs.Players["p2"].Calamities; len(held) != 1 || held[0] != civ.Famine {
		t.Errorf("expected the dealt famine to survive replay, got %v", held)
	}
}

func TestGameEndsAtTurnLimit(t *testing.T) {
	f := newEngineFixture(t, 1)
	ctx := context.Background()

	f.passBoth(t) // movement
	f.passBoth(t) // city construction
	res := f.passBoth(t)
	if !res.Finished {
		t.Fatalf("expected game to finish, got %s in turn %d", res.Activity, res.Turn)
	}

	game, _ := f.store.Games.FindByID(ctx, f.game.ID)
	if game.Status != model.StatusFinished || game.Winner != "p1" {
		t.Errorf("expected finished game won by p1, got %s / %q", game.Status, game.Winner)
	}
	call, ok := f.bc.last(EventGameEnded)
	if !ok {
		t.Fatal("expected game_ended event")
	}
	if data := call.Data.(map[string]any); data["reason"] != "turn_limit" {
		t.Errorf("unexpected end event %+v", data)
	}
	if raw, _ := f.cache.GetGameState(ctx, f.game.ID); raw != nil {
		t.Error("expected cached state deleted")
	}
	if gs := f.state(t); gs.Turn != 2 {
		t.Errorf("expected final state in turn 2, got %d", gs.Turn)
	}
	if _, err := f.engine.ApplyCommand(ctx, f.game.ID, f.alice, civ.Command{Type: civ.CmdPass}); !errors.Is(err, ErrGameNotActive) {
		t.Errorf("expected ErrGameNotActive, got %v", err)
	}
}

func TestRecoverActiveGames(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()
	f.apply(t, f.alice, civ.Command{Type: civ.CmdPass})

	fresh := memory.NewCache()
	restarted := f.newEngine(fresh)
	if err := restarted.RecoverActiveGames(ctx); err != nil {
		t.Fatalf("RecoverActiveGames: %v", err)
	}
	if raw, _ := fresh.GetGameState(ctx, f.game.ID); raw == nil {
		t.Fatal("expected state restored")
	}
	if d, ok := fresh.Deadline(f.game.ID); !ok || !d.Equal(f.currentPhase(t).Deadline) {
		t.Errorf("expected timer restored, got %v %v", d, ok)
	}
	gs, err := restarted.State(ctx, f.game.ID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if gs.Players["p1"].Mark != civ.PlayerSettled {
		t.Errorf("expected p1 pass replayed, got %s", gs.Players["p1"].Mark)
	}
}

func TestMoves(t *testing.T) {
	f := newEngineFixture(t, 0)
	ctx := context.Background()

	moves, err := f.engine.Moves(ctx, f.game.ID, f.alice)
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	if len(moves) == 0 {
		t.Error("expected movement options for p1")
	}
	if _, err := f.engine.Moves(ctx, f.game.ID, "stranger"); !errors.Is(err, ErrNotInGame) {
		t.Errorf("expected ErrNotInGame, got %v", err)
	}
}

func TestGameOver(t *testing.T) {
	newState := func(turn int, alive ...civ.PlayerID) *civ.GameState {
		var setups []civ.PlayerSetup
		for _, id := range []civ.PlayerID{"p1", "p2"} {
			s := civ.PlayerSetup{ID: id}
			for _, a := range alive {
				if a == id {
					s.Start = map[civ.PlayerID]civ.AreaID{"p1": "att", "p2": "ion"}[id]
				}
			}
			setups = append(setups, s)
		}
		gs, err := civ.NewGame(civ.SampleBoard(), setups)
		if err != nil {
			t.Fatal(err)
		}
		gs.Turn = turn
		return gs
	}
	tests := []struct {
		name       string
		maxTurns   int
		gs         *civ.GameState
		wantOver   bool
		wantReason string
	}{
		{"in progress", 10, newState(3, "p1", "p2"), false, ""},
		{"turn limit", 3, newState(4, "p1", "p2"), true, "turn_limit"},
		{"no limit", 0, newState(40, "p1", "p2"), false, ""},
		{"last player", 10, newState(2, "p1"), true, "last_player"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			over, reason := GameOver(&model.Game{MaxTurns: tt.maxTurns}, tt.gs)
			if over != tt.wantOver || reason != tt.wantReason {
				t.Errorf("GameOver = %v %q, want %v %q", over, reason, tt.wantOver, tt.wantReason)
			}
		})
	}
}
