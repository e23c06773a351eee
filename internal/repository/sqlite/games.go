package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

const gameColumns = `g.id, g.name, g.creator_id, g.status, g.map_id, g.max_players, g.max_turns,
	g.phase_seconds, g.winner, g.created_at, g.started_at, g.finished_at`

// GameRepo handles game and seat rows.
type GameRepo struct {
	db *DB
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(ctx context.Context, ng repository.NewGame) (*model.Game, error) {
	id := uuid.NewString()
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO games (id, name, creator_id, status, map_id, max_players, max_turns, phase_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ng.Name, ng.CreatorID, model.StatusWaiting, ng.MapID, ng.MaxPlayers, ng.MaxTurns, ng.PhaseSeconds, r.db.now())
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID returns a game with its seats, or nil when it does not exist.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	err := r.db.conn.GetContext(ctx, &g, `SELECT `+gameColumns+` FROM games g WHERE g.id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Players = players
	return &g, nil
}

func (r *GameRepo) listGames(ctx context.Context, op, query string, args ...any) ([]model.Game, error) {
	var games []model.Game
	if err := r.db.conn.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return games, nil
}

// ListOpen returns games in waiting status.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx, "list open games",
		`SELECT `+gameColumns+` FROM games g WHERE g.status = ? ORDER BY g.created_at DESC LIMIT 50`,
		model.StatusWaiting)
}

// ListByUser returns all games a user sits in or created.
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.listGames(ctx, "list user games",
		`SELECT `+gameColumns+` FROM games g
		 WHERE g.creator_id = ? OR EXISTS (SELECT 1 FROM game_players gp WHERE gp.game_id = g.id AND gp.user_id = ?)
		 ORDER BY g.created_at DESC LIMIT 50`, userID, userID)
}

// ListActive returns all games in progress.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx, "list active games",
		`SELECT `+gameColumns+` FROM games g WHERE g.status = ? ORDER BY g.started_at`, model.StatusActive)
}

// ListPlayers returns the seats of a game in join order.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	var players []model.GamePlayer
	err := r.db.conn.SelectContext(ctx, &players,
		`SELECT game_id, user_id, player_id, name, start_area, joined_at
		 FROM game_players WHERE game_id = ? ORDER BY joined_at, player_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

// JoinGame seats a user in a game.
func (r *GameRepo) JoinGame(ctx context.Context, seat model.GamePlayer) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, player_id, name, start_area, joined_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		seat.GameID, seat.UserID, seat.PlayerID, seat.Name, seat.StartArea, r.db.now())
	if err != nil {
		return fmt.Errorf("join game: %w", err)
	}
	return nil
}

// PlayerCount returns the number of seats taken in a game.
func (r *GameRepo) PlayerCount(ctx context.Context, gameID string) (int, error) {
	var n int
	if err := r.db.conn.GetContext(ctx, &n, `SELECT count(*) FROM game_players WHERE game_id = ?`, gameID); err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return n, nil
}

// SetStarted moves a waiting game to active.
func (r *GameRepo) SetStarted(ctx context.Context, gameID string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE games SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		model.StatusActive, r.db.now(), gameID, model.StatusWaiting)
	if err != nil {
		return fmt.Errorf("set started: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set started: game %s is not waiting", gameID)
	}
	return nil
}

// SetFinished marks a game as finished with an optional winner.
func (r *GameRepo) SetFinished(ctx context.Context, gameID, winner string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE games SET status = ?, winner = ?, finished_at = ? WHERE id = ?`,
		model.StatusFinished, winner, r.db.now(), gameID)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}
