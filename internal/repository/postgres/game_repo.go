package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/freeeve/mare-nostrum/internal/model"
	"github.com/freeeve/mare-nostrum/internal/repository"
)

const gameColumns = `g.id, g.name, g.creator_id, g.status, g.map_id, g.max_players, g.max_turns,
	g.phase_seconds, g.winner, g.created_at, g.started_at, g.finished_at`

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(s rowScanner) (model.Game, error) {
	var g model.Game
	var winner sql.NullString
	err := s.Scan(&g.ID, &g.Name, &g.CreatorID, &g.Status, &g.MapID, &g.MaxPlayers, &g.MaxTurns,
		&g.PhaseSeconds, &winner, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	g.Winner = winner.String
	return g, err
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(ctx context.Context, ng repository.NewGame) (*model.Game, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO games AS g (name, creator_id, map_id, max_players, max_turns, phase_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+gameColumns,
		ng.Name, ng.CreatorID, ng.MapID, ng.MaxPlayers, ng.MaxTurns, ng.PhaseSeconds)
	g, err := scanGame(row)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return &g, nil
}

// FindByID returns a game by ID with its players.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games g WHERE g.id = $1`, id)
	g, err := scanGame(row)
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
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListOpen returns games in waiting status.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx, "list open games",
		`SELECT `+gameColumns+` FROM games g WHERE g.status = 'waiting' ORDER BY g.created_at DESC LIMIT 50`)
}

// ListByUser returns all games a user sits in or created.
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	return r.listGames(ctx, "list user games",
		`SELECT DISTINCT `+gameColumns+`
		 FROM games g LEFT JOIN game_players gp ON g.id = gp.game_id AND gp.user_id = $1
		 WHERE gp.user_id = $1 OR g.creator_id = $1
		 ORDER BY g.created_at DESC LIMIT 50`, userID)
}

// ListActive returns all games in progress.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	return r.listGames(ctx, "list active games",
		`SELECT `+gameColumns+` FROM games g WHERE g.status = 'active' ORDER BY g.started_at`)
}

// ListPlayers returns the seats of a game in join order.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.GamePlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, user_id, player_id, name, start_area, joined_at
		 FROM game_players WHERE game_id = $1 ORDER BY joined_at, player_id`, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.GamePlayer
	for rows.Next() {
		var p model.GamePlayer
		if err := rows.Scan(&p.GameID, &p.UserID, &p.PlayerID, &p.Name, &p.StartArea, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// JoinGame seats a user in a game.
func (r *GameRepo) JoinGame(ctx context.Context, seat model.GamePlayer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, user_id, player_id, name, start_area)
		 VALUES ($1, $2, $3, $4, $5)`,
		seat.GameID, seat.UserID, seat.PlayerID, seat.Name, seat.StartArea)
	if err != nil {
		return fmt.Errorf("join game: %w", err)
	}
	return nil
}

// PlayerCount returns the number of seats taken in a game.
func (r *GameRepo) PlayerCount(ctx context.Context, gameID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM game_players WHERE game_id = $1`, gameID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("player count: %w", err)
	}
	return n, nil
}

// SetStarted moves a waiting game to active.
func (r *GameRepo) SetStarted(ctx context.Context, gameID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'active', started_at = now() WHERE id = $1 AND status = 'waiting'`, gameID)
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
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner = $1, finished_at = now() WHERE id = $2`,
		nullStr(winner), gameID)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}
