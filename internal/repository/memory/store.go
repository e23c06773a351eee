// Package memory keeps users, games, phases and commands in process memory.
// It backs tests and the civsim driver; nothing survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

// DB holds every table behind one lock.
type DB struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	games    map[string]*model.Game
	seats    map[string][]model.GamePlayer
	phases   map[string][]*model.Phase
	commands map[string][]model.Command
	now      func() time.Time
}

// New returns an empty database.
func New() *DB {
	return &DB{
		users:    make(map[string]*model.User),
		games:    make(map[string]*model.Game),
		seats:    make(map[string][]model.GamePlayer),
		phases:   make(map[string][]*model.Phase),
		commands: make(map[string][]model.Command),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the repositories backed by db together with a fresh
// in-memory cache.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Users:    &UserRepo{db: db},
		Games:    &GameRepo{db: db},
		Phases:   &PhaseRepo{db: db},
		Commands: &CommandRepo{db: db},
		Cache:    NewCache(),
		Close:    func() error { return nil },
	}
}

// UserRepo handles users.
type UserRepo struct {
	db *DB
}

// FindByID looks up a user by ID.
func (r *UserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if u, ok := r.db.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// FindByProviderID looks up a user by OAuth provider and provider-specific ID.
func (r *UserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if u := r.byProvider(provider, providerID); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *UserRepo) byProvider(provider, providerID string) *model.User {
	for _, u := range r.db.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u
		}
	}
	return nil
}

// Upsert creates a user or refreshes the display name and avatar of an
// existing one.
func (r *UserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	u := r.byProvider(provider, providerID)
	if u == nil {
		u = &model.User{ID: uuid.NewString(), Provider: provider, ProviderID: providerID, CreatedAt: now}
		r.db.users[u.ID] = u
	}
	u.DisplayName, u.AvatarURL, u.UpdatedAt = displayName, avatarURL, now
	cp := *u
	return &cp, nil
}

// UpdateDisplayName updates a user's display name.
func (r *UserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return fmt.Errorf("update display name: user %s not found", id)
	}
	u.DisplayName, u.UpdatedAt = displayName, r.db.now()
	return nil
}

// GameRepo handles games and seats.
type GameRepo struct {
	db *DB
}

func (r *GameRepo) snapshot(g *model.Game) model.Game {
	cp := *g
	cp.Players = append([]model.GamePlayer(nil), r.db.seats[g.ID]...)
	return cp
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(_ context.Context, ng repository.NewGame) (*model.Game, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g := &model.Game{
		ID:           uuid.NewString(),
		Name:         ng.Name,
		CreatorID:    ng.CreatorID,
		Status:       model.StatusWaiting,
		MapID:        ng.MapID,
		MaxPlayers:   ng.MaxPlayers,
		MaxTurns:     ng.MaxTurns,
		PhaseSeconds: ng.PhaseSeconds,
		CreatedAt:    r.db.now(),
	}
	r.db.games[g.ID] = g
	cp := r.snapshot(g)
	return &cp, nil
}

// FindByID returns a game with its seats, or nil when it does not exist.
func (r *GameRepo) FindByID(_ context.Context, id string) (*model.Game, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	g, ok := r.db.games[id]
	if !ok {
		return nil, nil
	}
	cp := r.snapshot(g)
	return &cp, nil
}

func (r *GameRepo) list(keep func(*model.Game) bool, less func(a, b *model.Game) bool, limit int) []model.Game {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var matched []*model.Game
	for _, g := range r.db.games {
		if keep(g) {
			matched = append(matched, g)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	games := make([]model.Game, 0, len(matched))
	for _, g := range matched {
		cp := *g
		games = append(games, cp)
	}
	return games
}

func newestFirst(a, b *model.Game) bool { return a.CreatedAt.After(b.CreatedAt) }

// ListOpen returns games in waiting status.
func (r *GameRepo) ListOpen(_ context.Context) ([]model.Game, error) {
	return r.list(func(g *model.Game) bool { return g.Status == model.StatusWaiting }, newestFirst, 50), nil
}

// ListByUser returns all games a user sits in or created.
func (r *GameRepo) ListByUser(_ context.Context, userID string) ([]model.Game, error) {
	return r.list(func(g *model.Game) bool {
		if g.CreatorID == userID {
			return true
		}
		for _, s := range r.db.seats[g.ID] {
			if s.UserID == userID {
				return true
			}
		}
		return false
	}, newestFirst, 50), nil
}

// ListActive returns all games in progress.
func (r *GameRepo) ListActive(_ context.Context) ([]model.Game, error) {
	return r.list(func(g *model.Game) bool { return g.Status == model.StatusActive },
		func(a, b *model.Game) bool { return a.StartedAt.Before(*b.StartedAt) }, 0), nil
}

// JoinGame seats a user in a game. A user, player ID or start area may only
// appear once per game.
func (r *GameRepo) JoinGame(_ context.Context, seat model.GamePlayer) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.games[seat.GameID]; !ok {
		return fmt.Errorf("join game: game %s not found", seat.GameID)
	}
	for _, s := range r.db.seats[seat.GameID] {
		if s.UserID == seat.UserID || s.PlayerID == seat.PlayerID || s.StartArea == seat.StartArea {
			return fmt.Errorf("join game: seat conflicts with %s", s.PlayerID)
		}
	}
	seat.JoinedAt = r.db.now()
	r.db.seats[seat.GameID] = append(r.db.seats[seat.GameID], seat)
	return nil
}

// PlayerCount returns the number of seats taken in a game.
func (r *GameRepo) PlayerCount(_ context.Context, gameID string) (int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return len(r.db.seats[gameID]), nil
}

// SetStarted moves a waiting game to active.
func (r *GameRepo) SetStarted(_ context.Context, gameID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.games[gameID]
	if !ok || g.Status != model.StatusWaiting {
		return fmt.Errorf("set started: game %s is not waiting", gameID)
	}
	now := r.db.now()
	g.Status, g.StartedAt = model.StatusActive, &now
	return nil
}

// SetFinished marks a game as finished with an optional winner.
func (r *GameRepo) SetFinished(_ context.Context, gameID, winner string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.games[gameID]
	if !ok {
		return fmt.Errorf("set finished: game %s not found", gameID)
	}
	now := r.db.now()
	g.Status, g.Winner, g.FinishedAt = model.StatusFinished, winner, &now
	return nil
}

// PhaseRepo handles phase history.
type PhaseRepo struct {
	db *DB
}

// CreatePhase appends a new phase to a game's history.
func (r *PhaseRepo) CreatePhase(_ context.Context, gameID string, turn int, activity string, stateBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p := &model.Phase{
		ID:          uuid.NewString(),
		GameID:      gameID,
		Turn:        turn,
		Activity:    activity,
		StateBefore: append(json.RawMessage(nil), stateBefore...),
		Deadline:    deadline,
		CreatedAt:   r.db.now(),
	}
	r.db.phases[gameID] = append(r.db.phases[gameID], p)
	cp := *p
	return &cp, nil
}

func (r *PhaseRepo) current(gameID string) *model.Phase {
	list := r.db.phases[gameID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ResolvedAt == nil {
			return list[i]
		}
	}
	return nil
}

// CurrentPhase returns the latest unresolved phase for a game.
func (r *PhaseRepo) CurrentPhase(_ context.Context, gameID string) (*model.Phase, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	if p := r.current(gameID); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

// FindPhase returns a phase by ID.
func (r *PhaseRepo) FindPhase(_ context.Context, phaseID string) (*model.Phase, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, list := range r.db.phases {
		for _, p := range list {
			if p.ID == phaseID {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, nil
}

// ListPhases returns all phases for a game in the order they were entered.
func (r *PhaseRepo) ListPhases(_ context.Context, gameID string) ([]model.Phase, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	phases := make([]model.Phase, 0, len(r.db.phases[gameID]))
	for _, p := range r.db.phases[gameID] {
		phases = append(phases, *p)
	}
	return phases, nil
}

// ResolvePhase marks a phase as resolved and stores the resulting state.
// Resolving twice keeps the first result.
func (r *PhaseRepo) ResolvePhase(_ context.Context, phaseID string, stateAfter json.RawMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, list := range r.db.phases {
		for _, p := range list {
			if p.ID == phaseID && p.ResolvedAt == nil {
				now := r.db.now()
				p.StateAfter = append(json.RawMessage(nil), stateAfter...)
				p.ResolvedAt = &now
				return nil
			}
		}
	}
	return nil
}

// ListExpired returns the latest unresolved phase per active game where the
// deadline has passed.
func (r *PhaseRepo) ListExpired(_ context.Context) ([]model.Phase, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	now := r.db.now()
	var expired []model.Phase
	for gameID, g := range r.db.games {
		if g.Status != model.StatusActive {
			continue
		}
		list := r.db.phases[gameID]
		if len(list) == 0 {
			continue
		}
		if p := list[len(list)-1]; p.ResolvedAt == nil && p.Deadline.Before(now) {
			expired = append(expired, *p)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].GameID < expired[j].GameID })
	return expired, nil
}

// CommandRepo stores the command log.
type CommandRepo struct {
	db *DB
}

// SaveCommand appends a command and fills in its ID and creation time.
func (r *CommandRepo) SaveCommand(_ context.Context, c *model.Command) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID, c.CreatedAt = uuid.NewString(), r.db.now()
	r.db.commands[c.PhaseID] = append(r.db.commands[c.PhaseID], *c)
	return nil
}

// CommandsByPhase returns the commands of a phase in arrival order.
func (r *CommandRepo) CommandsByPhase(_ context.Context, phaseID string) ([]model.Command, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	return append([]model.Command(nil), r.db.commands[phaseID]...), nil
}
