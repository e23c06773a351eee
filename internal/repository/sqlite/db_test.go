package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

func openTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db.Store()
}

func createTestUser(t *testing.T, s *repository.Store, suffix string) *model.User {
	t.Helper()
	u, err := s.Users.Upsert(context.Background(), "google", "provider-"+suffix, "User "+suffix, "")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

func createTestGame(t *testing.T, s *repository.Store, creator *model.User) *model.Game {
	t.Helper()
	g, err := s.Games.Create(context.Background(), repository.NewGame{
		Name: "Test Game", CreatorID: creator.ID, MapID: "aegean",
		MaxPlayers: 3, MaxTurns: 10, PhaseSeconds: 120,
	})
	if err != nil {
		t.Fatalf("create test game: %v", err)
	}
	return g
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		db.Close()
	}
}

func TestUserUpsertCreatesAndUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.Users.Upsert(ctx, "google", "goog-123", "Alice", "https://avatar/alice")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if u.ID == "" || u.DisplayName != "Alice" || u.AvatarURL != "https://avatar/alice" {
		t.Fatalf("unexpected user %+v", u)
	}

	u2, err := s.Users.Upsert(ctx, "google", "goog-123", "Alice B", "")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if u2.ID != u.ID {
		t.Errorf("expected same ID, got %s and %s", u.ID, u2.ID)
	}
	if u2.DisplayName != "Alice B" {
		t.Errorf("expected updated name, got %s", u2.DisplayName)
	}

	if err := s.Users.UpdateDisplayName(ctx, u.ID, "Renamed"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.Users.FindByID(ctx, u.ID)
	if err != nil || got == nil || got.DisplayName != "Renamed" {
		t.Errorf("expected Renamed, got %+v (%v)", got, err)
	}
	missing, err := s.Users.FindByID(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for a missing user, got %+v, %v", missing, err)
	}
}

func TestGameCreateJoinAndLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "a")
	bob := createTestUser(t, s, "b")
	g := createTestGame(t, s, alice)

	if g.Status != model.StatusWaiting || g.MapID != "aegean" || g.MaxPlayers != 3 {
		t.Fatalf("unexpected game %+v", g)
	}
	if err := s.Games.JoinGame(ctx, model.GamePlayer{GameID: g.ID, UserID: alice.ID, PlayerID: "p1", Name: "Alice", StartArea: "att"}); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := s.Games.JoinGame(ctx, model.GamePlayer{GameID: g.ID, UserID: bob.ID, PlayerID: "p2", Name: "Bob", StartArea: "ion"}); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if err := s.Games.JoinGame(ctx, model.GamePlayer{GameID: g.ID, UserID: bob.ID, PlayerID: "p3", Name: "dup", StartArea: "pel"}); err == nil {
		t.Error("expected duplicate seat to fail")
	}
	if n, err := s.Games.PlayerCount(ctx, g.ID); err != nil || n != 2 {
		t.Fatalf("expected 2 players, got %d (%v)", n, err)
	}

	open, _ := s.Games.ListOpen(ctx)
	if len(open) != 1 {
		t.Fatalf("expected 1 open game, got %d", len(open))
	}
	if err := s.Games.SetStarted(ctx, g.ID); err != nil {
		t.Fatalf("set started: %v", err)
	}
	if err := s.Games.SetStarted(ctx, g.ID); err == nil {
		t.Error("starting twice should fail")
	}
	active, _ := s.Games.ListActive(ctx)
	if len(active) != 1 || active[0].StartedAt == nil {
		t.Fatalf("expected 1 active game, got %+v", active)
	}
	for _, u := range []*model.User{alice, bob} {
		mine, _ := s.Games.ListByUser(ctx, u.ID)
		if len(mine) != 1 {
			t.Errorf("%s should see one game, got %d", u.DisplayName, len(mine))
		}
	}

	if err := s.Games.SetFinished(ctx, g.ID, "p2"); err != nil {
		t.Fatalf("set finished: %v", err)
	}
	done, err := s.Games.FindByID(ctx, g.ID)
	if err != nil || done == nil {
		t.Fatalf("find: %v", err)
	}
	if done.Status != model.StatusFinished || done.Winner != "p2" || done.FinishedAt == nil {
		t.Errorf("unexpected finished game %+v", done)
	}
	if len(done.Players) != 2 || done.Players[0].PlayerID != "p1" {
		t.Errorf("unexpected players %+v", done.Players)
	}
}

func TestPhaseHistoryAndCommands(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	g := createTestGame(t, s, createTestUser(t, s, "a"))
	if err := s.Games.SetStarted(ctx, g.ID); err != nil {
		t.Fatalf("set started: %v", err)
	}

	first, err := s.Phases.CreatePhase(ctx, g.ID, 1, "movement", json.RawMessage(`{"turn":1}`), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("create phase: %v", err)
	}
	if first.StateAfter != nil || first.ResolvedAt != nil {
		t.Fatalf("new phase should be unresolved, got %+v", first)
	}

	expired, err := s.Phases.ListExpired(ctx)
	if err != nil || len(expired) != 1 || expired[0].ID != first.ID {
		t.Fatalf("expected first phase expired, got %+v (%v)", expired, err)
	}

	cmd := &model.Command{GameID: g.ID, PhaseID: first.ID, PlayerID: "p1", Type: "pass",
		Payload: json.RawMessage(`{"type":"pass"}`), Result: model.ResultDefault}
	if err := s.Commands.SaveCommand(ctx, cmd); err != nil {
		t.Fatalf("save command: %v", err)
	}
	if cmd.ID == "" || cmd.CreatedAt.IsZero() {
		t.Errorf("expected ID and time filled in, got %+v", cmd)
	}

	if err := s.Phases.ResolvePhase(ctx, first.ID, json.RawMessage(`{"turn":1,"done":true}`)); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := s.Phases.CreatePhase(ctx, g.ID, 1, "conflict", json.RawMessage(`{"turn":1}`), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create second phase: %v", err)
	}

	cur, err := s.Phases.CurrentPhase(ctx, g.ID)
	if err != nil || cur == nil || cur.ID != second.ID {
		t.Fatalf("expected current phase %s, got %+v (%v)", second.ID, cur, err)
	}
	if expired, _ := s.Phases.ListExpired(ctx); len(expired) != 0 {
		t.Errorf("expected nothing expired, got %+v", expired)
	}

	phases, err := s.Phases.ListPhases(ctx, g.ID)
	if err != nil || len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d (%v)", len(phases), err)
	}
	if phases[0].ID != first.ID || phases[0].ResolvedAt == nil || string(phases[0].StateAfter) != `{"turn":1,"done":true}` {
		t.Errorf("unexpected resolved phase %+v", phases[0])
	}

	cmds, err := s.Commands.CommandsByPhase(ctx, first.ID)
	if err != nil || len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d (%v)", len(cmds), err)
	}
	if cmds[0].Result != model.ResultDefault || cmds[0].UserID != "" || string(cmds[0].Payload) != `{"type":"pass"}` {
		t.Errorf("unexpected command %+v", cmds[0])
	}
}
