package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

type mockGameRepo struct {
	games   map[string]*model.Game
	players map[string][]model.GamePlayer
}

func newMockGameRepo() *mockGameRepo {
	return &mockGameRepo{
		games:   make(map[string]*model.Game),
		players: make(map[string][]model.GamePlayer),
	}
}

func (m *mockGameRepo) Create(_ context.Context, ng repository.NewGame) (*model.Game, error) {
	g := &model.Game{
		ID:           fmt.Sprintf("game-%d", len(m.games)+1),
		Name:         ng.Name,
		CreatorID:    ng.CreatorID,
		Status:       model.StatusWaiting,
		MapID:        ng.MapID,
		MaxPlayers:   ng.MaxPlayers,
		MaxTurns:     ng.MaxTurns,
		PhaseSeconds: ng.PhaseSeconds,
		CreatedAt:    time.Now(),
	}
	m.games[g.ID] = g
	return g, nil
}

func (m *mockGameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.Players = append([]model.GamePlayer(nil), m.players[id]...)
	return &cp, nil
}

func (m *mockGameRepo) listWhere(keep func(*model.Game) bool) []model.Game {
	var result []model.Game
	for _, g := range m.games {
		if keep(g) {
			result = append(result, *g)
		}
	}
	return result
}

func (m *mockGameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	return m.listWhere(func(g *model.Game) bool { return g.Status == model.StatusWaiting }), nil
}

func (m *mockGameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	return m.listWhere(func(g *model.Game) bool {
		for _, p := range m.players[g.ID] {
			if p.UserID == userID {
				return true
			}
		}
		return g.CreatorID == userID
	}), nil
}

func (m *mockGameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	return m.listWhere(func(g *model.Game) bool { return g.Status == model.StatusActive }), nil
}

func (m *mockGameRepo) JoinGame(_ context.Context, seat model.GamePlayer) error {
	seat.JoinedAt = time.Now()
	m.players[seat.GameID] = append(m.players[seat.GameID], seat)
	return nil
}

func (m *mockGameRepo) PlayerCount(_ context.Context, gameID string) (int, error) {
	return len(m.players[gameID]), nil
}

func (m *mockGameRepo) SetStarted(_ context.Context, gameID string) error {
	g, ok := m.games[gameID]
	if !ok || g.Status != model.StatusWaiting {
		return errors.New("not waiting")
	}
	now := time.Now()
	g.Status, g.StartedAt = model.StatusActive, &now
	return nil
}

func (m *mockGameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	if g, ok := m.games[gameID]; ok {
		now := time.Now()
		g.Status, g.Winner, g.FinishedAt = model.StatusFinished, winner, &now
	}
	return nil
}

type mockUserRepo struct {
	users map[string]*model.User
}

func newMockUserRepo(names ...string) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*model.User)}
	for i, n := range names {
		id := fmt.Sprintf("user-%d", i+1)
		m.users[id] = &model.User{ID: id, DisplayName: n}
	}
	return m
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	u := &model.User{ID: fmt.Sprintf("user-%d", len(m.users)+1), Provider: provider, ProviderID: providerID, DisplayName: displayName, AvatarURL: avatarURL}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

// mockInitializer records the games it was asked to initialize.
type mockInitializer struct {
	games []string
	err   error
}

func (m *mockInitializer) InitializeGame(_ context.Context, game *model.Game) error {
	m.games = append(m.games, game.ID)
	return m.err
}

type broadcastCall struct {
	GameID    string
	EventType string
	Data      any
}

// mockBroadcaster records every event it is given.
type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{GameID: gameID, EventType: eventType, Data: data})
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.EventType == eventType {
			n++
		}
	}
	return n
}

func (m *mockBroadcaster) last(eventType string) (broadcastCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].EventType == eventType {
			return m.calls[i], true
		}
	}
	return broadcastCall{}, false
}

// mockDeadlineHandler records the games whose deadline was handled.
type mockDeadlineHandler struct {
	mu    sync.Mutex
	games []string
}

func (m *mockDeadlineHandler) HandleDeadline(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games = append(m.games, gameID)
	return nil
}

// mockExpiredRepo returns a fixed list of expired phases.
type mockExpiredRepo struct {
	repository.PhaseRepository
	expired []model.Phase
	err     error
}

func (m *mockExpiredRepo) ListExpired(context.Context) ([]model.Phase, error) {
	return m.expired, m.err
}
