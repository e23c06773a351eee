package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/freeeve/mare-nostrum/internal/auth"
	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
	"github.com/freeeve/mare-nostrum/internal/repository/memory"
	"github.com/freeeve/mare-nostrum/internal/service"
	"github.com/freeeve/mare-nostrum/pkg/civ"
)

// --- Fixture ---

type fixture struct {
	store    *repository.Store
	hub      *Hub
	games    *GameHandler
	commands *CommandHandler
	phases   *PhaseHandler
	users    *UserHandler
	alice    string
	bob      string
	carol    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New().Store()
	hub := NewHub()
	engine := service.NewEngineService(store.Games, store.Phases, store.Commands, store.Cache, nil, hub)
	gameSvc := service.NewGameService(store.Games, store.Users, store.Cache, engine, time.Minute)

	f := &fixture{
		store:    store,
		hub:      hub,
		games:    NewGameHandler(gameSvc, engine, store.Phases, hub),
		commands: NewCommandHandler(engine, hub),
		phases:   NewPhaseHandler(store.Phases, store.Commands),
		users:    NewUserHandler(store.Users, store.Games),
	}
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		u, err := store.Users.Upsert(ctx, "dev", "dev-"+name, name, "")
		if err != nil {
			t.Fatalf("Upsert(%s): %v", name, err)
		}
		switch name {
		case "Alice":
			f.alice = u.ID
		case "Bob":
			f.bob = u.ID
		default:
			f.carol = u.ID
		}
	}
	return f
}

// do runs a handler with the caller and path values set. pathValues holds
// key, value pairs.
func do(h http.HandlerFunc, method, path, body, userID string, pathValues ...string) *httptest.ResponseRecorder {
	req := reqWithUserID(method, path, body, userID)
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.WithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (f *fixture) createGame(t *testing.T, body string) model.Game {
	t.Helper()
	rec := do(f.games.CreateGame, http.MethodPost, "/api/v1/games", body, f.alice)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[model.Game](t, rec)
}

// startedGame returns a two player game: alice created it, bob joined.
func (f *fixture) startedGame(t *testing.T) model.Game {
	t.Helper()
	g := f.createGame(t, `{"name":"aegean"}`)
	if rec := do(f.games.JoinGame, http.MethodPost, "/", "", f.bob, "id", g.ID); rec.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(f.games.StartGame, http.MethodPost, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[model.Game](t, rec)
}

// --- User Handler Tests ---

func TestGetMe(t *testing.T) {
	f := newFixture(t)
	rec := do(f.users.GetMe, http.MethodGet, "/users/me", "", f.alice)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if user := decode[model.User](t, rec); user.DisplayName != "Alice" {
		t.Errorf("expected Alice, got %s", user.DisplayName)
	}
}

func TestGetMeGameRecord(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	f.createGame(t, `{"name":"lobby"}`)

	rec := do(f.users.GetMe, http.MethodGet, "/users/me", "", f.bob)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var profile struct {
		DisplayName string `json:"display_name"`
		Games       []struct {
			GameID   string `json:"game_id"`
			Status   string `json:"status"`
			PlayerID string `json:"player_id"`
		} `json:"games"`
		Finished int `json:"finished"`
		Wins     int `json:"wins"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.DisplayName != "Bob" {
		t.Errorf("expected Bob, got %s", profile.DisplayName)
	}
	if len(profile.Games) != 1 {
		t.Fatalf("expected bob in 1 game, got %d", len(profile.Games))
	}
	seat := profile.Games[0]
	if seat.GameID != g.ID || seat.Status != model.StatusActive || seat.PlayerID == "" {
		t.Errorf("unexpected seat record %+v", seat)
	}
	if profile.Finished != 0 || profile.Wins != 0 {
		t.Errorf("expected empty record, got %d finished %d wins", profile.Finished, profile.Wins)
	}
}

func TestGetMeNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.users.GetMe, http.MethodGet, "/users/me", "", "nonexistent")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateMe(t *testing.T) {
	f := newFixture(t)
	rec := do(f.users.UpdateMe, http.MethodPatch, "/users/me", `{"display_name":"Themistocles"}`, f.alice)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if user := decode[model.User](t, rec); user.DisplayName != "Themistocles" {
		t.Errorf("expected Themistocles, got %s", user.DisplayName)
	}
}

func TestUpdateMeRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`{"display_name":""}`, `{"display_name":"   "}`, "not json",
		`{"display_name":"` + strings.Repeat("n", maxDisplayName+1) + `"}`} {
		rec := do(f.users.UpdateMe, http.MethodPatch, "/users/me", body, f.alice)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestGetUser(t *testing.T) {
	f := newFixture(t)
	rec := do(f.users.GetUser, http.MethodGet, "/", "", f.alice, "id", f.bob)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if user := decode[model.User](t, rec); user.DisplayName != "Bob" {
		t.Errorf("expected Bob, got %s", user.DisplayName)
	}
	if strings.Contains(rec.Body.String(), "provider") {
		t.Errorf("public profile leaks provider identity: %s", rec.Body.String())
	}
}

func TestGetUserNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.users.GetUser, http.MethodGet, "/", "", f.alice, "id", "nobody")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

// --- Game Handler Tests ---

func TestCreateGameDefaults(t *testing.T) {
	f := newFixture(t)
	g := f.createGame(t, `{"name":"first"}`)

	if g.Status != model.StatusWaiting {
		t.Errorf("expected waiting, got %s", g.Status)
	}
	if g.MapID != civ.AegeanMapID {
		t.Errorf("expected map %s, got %s", civ.AegeanMapID, g.MapID)
	}
	if g.MaxTurns != service.DefaultMaxTurns {
		t.Errorf("expected %d turns, got %d", service.DefaultMaxTurns, g.MaxTurns)
	}
	if g.PhaseSeconds != 60 {
		t.Errorf("expected 60s phases, got %d", g.PhaseSeconds)
	}
	if len(g.Players) != 1 || g.Players[0].UserID != f.alice || g.Players[0].PlayerID != "p1" {
		t.Errorf("expected creator seated as p1, got %+v", g.Players)
	}
}

func TestCreateGameValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"max_turns":3}`},
		{"bad json", `{`},
		{"too many players", `{"name":"x","max_players":9}`},
		{"unknown map", `{"name":"x","map_id":"atlantis"}`},
		{"negative turns", `{"name":"x","max_turns":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := do(f.games.CreateGame, http.MethodPost, "/api/v1/games", tt.body, f.alice)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListGamesEmpty(t *testing.T) {
	f := newFixture(t)
	rec := do(f.games.ListGames, http.MethodGet, "/api/v1/games", "", f.alice)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestListGamesFilters(t *testing.T) {
	f := newFixture(t)
	f.startedGame(t)
	f.createGame(t, `{"name":"lobby"}`)

	tests := []struct {
		filter string
		userID string
		want   int
	}{
		{"", f.carol, 1},
		{"active", f.carol, 1},
		{"my", f.alice, 2},
		{"my", f.bob, 1},
		{"my", f.carol, 0},
	}
	for _, tt := range tests {
		rec := do(f.games.ListGames, http.MethodGet, "/api/v1/games?filter="+tt.filter, "", tt.userID)
		if got := len(decode[[]model.Game](t, rec)); got != tt.want {
			t.Errorf("filter %q for %s: expected %d games, got %d", tt.filter, tt.userID, tt.want, got)
		}
	}
}

func TestGetGameNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.games.GetGame, http.MethodGet, "/", "", f.alice, "id", "missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJoinGame(t *testing.T) {
	f := newFixture(t)
	g := f.createGame(t, `{"name":"lobby","max_players":2}`)

	watcher := newTestConn(f.alice)
	f.hub.Register(watcher)
	defer f.hub.Unregister(watcher)
	f.hub.Subscribe(watcher, g.ID, "p1")

	rec := do(f.games.JoinGame, http.MethodPost, "/", "", f.bob, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	joined := decode[model.Game](t, rec)
	seat := joined.PlayerFor(f.bob)
	if seat == nil || seat.PlayerID != "p2" || seat.Name != "Bob" {
		t.Fatalf("expected bob seated as p2, got %+v", joined.Players)
	}

	select {
	case msg := <-watcher.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != EventPlayerJoined {
			t.Errorf("expected player_joined, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Error("no player_joined broadcast")
	}

	tests := []struct {
		name   string
		userID string
		gameID string
		want   int
	}{
		{"already joined", f.bob, g.ID, http.StatusBadRequest},
		{"full", f.carol, g.ID, http.StatusBadRequest},
		{"not found", f.carol, "missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(f.games.JoinGame, http.MethodPost, "/", "", tt.userID, "id", tt.gameID)
		if rec.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, rec.Code)
		}
	}
}

func TestStartGame(t *testing.T) {
	f := newFixture(t)
	g := f.createGame(t, `{"name":"lobby"}`)

	if rec := do(f.games.StartGame, http.MethodPost, "/", "", f.alice, "id", g.ID); rec.Code != http.StatusBadRequest {
		t.Errorf("single player: expected 400, got %d", rec.Code)
	}
	do(f.games.JoinGame, http.MethodPost, "/", "", f.bob, "id", g.ID)
	if rec := do(f.games.StartGame, http.MethodPost, "/", "", f.bob, "id", g.ID); rec.Code != http.StatusBadRequest {
		t.Errorf("non-creator: expected 400, got %d", rec.Code)
	}

	rec := do(f.games.StartGame, http.MethodPost, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if started := decode[model.Game](t, rec); started.Status != model.StatusActive {
		t.Errorf("expected active, got %s", started.Status)
	}
	if rec := do(f.games.JoinGame, http.MethodPost, "/", "", f.carol, "id", g.ID); rec.Code != http.StatusBadRequest {
		t.Errorf("join after start: expected 400, got %d", rec.Code)
	}
}

func TestGameStateWaiting(t *testing.T) {
	f := newFixture(t)
	g := f.createGame(t, `{"name":"lobby"}`)
	rec := do(f.games.GameState, http.MethodGet, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestGameState(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	rec := do(f.games.GameState, http.MethodGet, "/", "", f.bob, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[stateResponse](t, rec)
	if resp.Player != "p2" {
		t.Errorf("expected caller p2, got %q", resp.Player)
	}
	if resp.State == nil || resp.State.Activity != civ.Movement || resp.State.Turn != 1 {
		t.Fatalf("expected turn 1 movement, got %+v", resp.State)
	}
	if len(resp.Standings) != 2 {
		t.Errorf("expected 2 standings, got %d", len(resp.Standings))
	}
	if resp.Phase == nil || resp.Phase.Activity != string(civ.Movement) {
		t.Errorf("expected current movement phase, got %+v", resp.Phase)
	}
	if resp.Phase != nil && len(resp.Phase.StateBefore) > 0 && string(resp.Phase.StateBefore) != "null" {
		t.Error("expected phase snapshot to be omitted")
	}
}

func TestMoves(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	rec := do(f.games.Moves, http.MethodGet, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	moves := decode[[]civ.MoveOption](t, rec)
	if len(moves) == 0 || moves[0].From != "att" {
		t.Errorf("expected moves out of att, got %+v", moves)
	}

	if rec := do(f.games.Moves, http.MethodGet, "/", "", f.carol, "id", g.ID); rec.Code != http.StatusForbidden {
		t.Errorf("non-member: expected 403, got %d", rec.Code)
	}
}

func TestAdvance(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	if rec := do(f.games.Advance, http.MethodPost, "/", "", f.bob, "id", g.ID); rec.Code != http.StatusBadRequest {
		t.Errorf("non-creator: expected 400, got %d", rec.Code)
	}
	rec := do(f.games.Advance, http.MethodPost, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[service.CommandResult](t, rec); res.Activity != civ.CityConstruction {
		t.Errorf("expected city construction, got %s", res.Activity)
	}
}

// --- Command Handler Tests ---

func TestSubmitCommandValidation(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	tests := []struct {
		name   string
		body   string
		userID string
		want   int
	}{
		{"bad json", `{`, f.alice, http.StatusBadRequest},
		{"missing type", `{"area":"att"}`, f.alice, http.StatusBadRequest},
		{"unknown type", `{"type":"sail"}`, f.alice, http.StatusUnprocessableEntity},
		{"wrong activity", `{"type":"build_city","area":"att"}`, f.alice, http.StatusUnprocessableEntity},
		{"not adjacent", `{"type":"move_tokens","area":"att","to":"nile","count":1}`, f.alice, http.StatusUnprocessableEntity},
		{"not in game", `{"type":"pass"}`, f.carol, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.commands.SubmitCommand, http.MethodPost, "/", tt.body, tt.userID, "id", g.ID)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}

	rec := do(f.commands.SubmitCommand, http.MethodPost, "/", `{"type":"pass"}`, f.alice, "id", "missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown game: expected 404, got %d", rec.Code)
	}
}

func TestSubmitCommandActsForCaller(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	body := `{"type":"move_tokens","player":"p2","area":"att","to":"boe","count":1}`
	rec := do(f.commands.SubmitCommand, http.MethodPost, "/", body, f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(f.games.GameState, http.MethodGet, "/", "", f.alice, "id", g.ID)
	gs := decode[stateResponse](t, rec).State
	if n := len(gs.AreaTokens("boe", "p1")); n != 1 {
		t.Errorf("expected 1 p1 token in boe, got %d", n)
	}
	if n := len(gs.AreaTokens("boe", "p2")); n != 0 {
		t.Errorf("expected no p2 tokens in boe, got %d", n)
	}
}

func TestPassAdvancesActivity(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	player := newTestConn(f.alice)
	f.hub.Register(player)
	defer f.hub.Unregister(player)

	rec := do(f.commands.Pass, http.MethodPost, "/", "", f.alice, "id", g.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[service.CommandResult](t, rec); res.Activity != civ.Movement {
		t.Errorf("expected movement after one pass, got %s", res.Activity)
	}
	select {
	case msg := <-player.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != EventCommandResult {
			t.Errorf("expected command_result, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Error("caller did not receive command result")
	}

	rec = do(f.games.GetGame, http.MethodGet, "/", "", f.alice, "id", g.ID)
	if got := decode[model.Game](t, rec); got.PassedCount != 1 {
		t.Errorf("expected 1 passed, got %d", got.PassedCount)
	}

	rec = do(f.commands.Pass, http.MethodPost, "/", "", f.bob, "id", g.ID)
	if res := decode[service.CommandResult](t, rec); res.Activity != civ.CityConstruction {
		t.Errorf("expected city construction, got %s", res.Activity)
	}
}

// --- Phase Handler Tests ---

func TestListPhasesEmpty(t *testing.T) {
	f := newFixture(t)
	rec := do(f.phases.ListPhases, http.MethodGet, "/", "", f.alice, "id", "missing")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestCurrentPhaseNotFound(t *testing.T) {
	f := newFixture(t)
	rec := do(f.phases.CurrentPhase, http.MethodGet, "/", "", f.alice, "id", "missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPhaseHistoryAndCommands(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)

	do(f.commands.SubmitCommand, http.MethodPost, "/", `{"type":"build_city","area":"att"}`, f.alice, "id", g.ID)
	do(f.commands.Pass, http.MethodPost, "/", "", f.alice, "id", g.ID)
	do(f.commands.Pass, http.MethodPost, "/", "", f.bob, "id", g.ID)

	rec := do(f.phases.ListPhases, http.MethodGet, "/", "", f.alice, "id", g.ID)
	phases := decode[[]model.Phase](t, rec)
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if phases[0].Activity != string(civ.Movement) || phases[0].ResolvedAt == nil {
		t.Errorf("expected resolved movement phase first, got %+v", phases[0])
	}

	rec = do(f.phases.CurrentPhase, http.MethodGet, "/", "", f.alice, "id", g.ID)
	if cur := decode[model.Phase](t, rec); cur.ID != phases[1].ID {
		t.Errorf("expected current phase %s, got %s", phases[1].ID, cur.ID)
	}

	rec = do(f.phases.PhaseCommands, http.MethodGet, "/", "", f.alice, "id", g.ID, "phaseId", phases[0].ID)
	cmds := decode[[]model.Command](t, rec)
	if len(cmds) != 3 {
		t.Fatalf("expected 3 logged commands, got %d", len(cmds))
	}
	if cmds[0].Result != model.ResultRejected || cmds[0].Error == "" {
		t.Errorf("expected rejected build first, got %+v", cmds[0])
	}
	for _, c := range cmds[1:] {
		if c.Result != model.ResultAccepted || c.Type != string(civ.CmdPass) {
			t.Errorf("expected accepted pass, got %+v", c)
		}
	}

	rec = do(f.phases.PhaseCommands, http.MethodGet, "/", "", f.alice, "id", "other-game", "phaseId", phases[0].ID)
	if rec.Code != http.StatusNotFound {
		t.Errorf("phase of another game: expected 404, got %d", rec.Code)
	}
}

// --- Auth Handler Tests ---

func newAuthHandler(t *testing.T) (*AuthHandler, *auth.JWTManager, *fixture) {
	t.Helper()
	f := newFixture(t)
	jwtMgr := auth.NewJWTManager("test-secret")
	google := auth.NewGoogleOAuth("", "", "http://localhost/auth/google/callback")
	return NewAuthHandler(google, jwtMgr, f.store.Users), jwtMgr, f
}

func TestRefreshTokenValid(t *testing.T) {
	h, jwtMgr, f := newAuthHandler(t)

	refresh, _ := jwtMgr.GenerateRefreshToken(f.alice)
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, refresh)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if tokens := decode[auth.TokenPair](t, rec); tokens.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
}

func TestRefreshTokenRejected(t *testing.T) {
	h, jwtMgr, f := newAuthHandler(t)
	access, _ := jwtMgr.GenerateAccessToken(f.alice)
	orphan, _ := jwtMgr.GenerateRefreshToken("deleted-user")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"garbage token", `{"refresh_token":"invalid"}`, http.StatusUnauthorized},
		{"access token", fmt.Sprintf(`{"refresh_token":"%s"}`, access), http.StatusUnauthorized},
		{"unknown user", fmt.Sprintf(`{"refresh_token":"%s"}`, orphan), http.StatusUnauthorized},
		{"bad body", "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.RefreshToken(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestDevLogin(t *testing.T) {
	h, jwtMgr, f := newAuthHandler(t)

	t.Setenv("DEV_MODE", "")
	rec := httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/dev?name=Alice", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("dev mode off: expected 404, got %d", rec.Code)
	}

	t.Setenv("DEV_MODE", "true")
	rec = httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/dev?name=Alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	tokens := decode[auth.TokenPair](t, rec)
	claims, err := jwtMgr.ValidateKind(tokens.AccessToken, auth.KindAccess)
	if err != nil {
		t.Fatalf("ValidateKind: %v", err)
	}
	if claims.UserID != f.alice {
		t.Errorf("expected existing dev user %s, got %s", f.alice, claims.UserID)
	}

	long := strings.Repeat("x", maxDisplayName+1)
	rec = httptest.NewRecorder()
	h.DevLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/dev?name="+long, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("long name: expected 400, got %d", rec.Code)
	}
}

func TestGoogleLoginNotConfigured(t *testing.T) {
	h, _, _ := newAuthHandler(t)
	rec := httptest.NewRecorder()
	h.GoogleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGoogleCallbackStateMismatch(t *testing.T) {
	h, _, _ := newAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc&state=forged", nil)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- WebSocket Tests ---

func TestServeWSSubscribeAndReceive(t *testing.T) {
	f := newFixture(t)
	g := f.startedGame(t)
	jwtMgr := auth.NewJWTManager("test-secret")
	srv := httptest.NewServer(http.HandlerFunc(NewWSHandler(f.hub, jwtMgr, f.store.Games, "*").ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	refresh, _ := jwtMgr.GenerateRefreshToken(f.alice)
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token="+refresh, nil); err == nil {
		t.Fatal("expected refresh token to be refused")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}

	access, _ := jwtMgr.GenerateAccessToken(f.alice)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+access, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var event WSEvent
	if err := conn.ReadJSON(&event); err != nil || event.Type != EventConnected {
		t.Fatalf("expected connected event, got %+v (%v)", event, err)
	}

	conn.WriteJSON(ClientMessage{Action: "subscribe", GameID: "unknown"})
	if err := conn.ReadJSON(&event); err != nil || event.Type != EventSubscribeFailed {
		t.Fatalf("expected subscribe_failed, got %+v (%v)", event, err)
	}
	conn.WriteJSON(ClientMessage{Action: "subscribe", GameID: g.ID})
	var ack struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != EventSubscribed || ack.Data["player"] != "p1" {
		t.Fatalf("expected subscribed as p1, got %+v (%v)", ack, err)
	}
	if n := f.hub.GameSubscriberCount(g.ID); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	if n := f.hub.GameSubscriberCount("unknown"); n != 0 {
		t.Errorf("expected unknown game to be refused, got %d subscribers", n)
	}

	do(f.commands.Pass, http.MethodPost, "/", "", f.bob, "id", g.ID)
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Type != EventPlayerPassed || event.GameID != g.ID {
		t.Errorf("expected player_passed for %s, got %+v", g.ID, event)
	}
}
