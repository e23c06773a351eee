// Package sqlite stores users, games, phases and commands in a single SQLite
// file. It backs single-node servers and the civsim driver.
package sqlite

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freeeve/mare-nostrum/internal/repository"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
	now  func() time.Time
}

// Open opens or creates a SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, now: func() time.Time { return time.Now().UTC() }}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Store returns the repositories backed by db. The cache is left for the
// caller to provide.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Users:    &UserRepo{db: db},
		Games:    &GameRepo{db: db},
		Phases:   &PhaseRepo{db: db},
		Commands: &CommandRepo{db: db},
		Close:    db.Close,
	}
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (provider, provider_id)
	);

	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		creator_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'waiting',
		map_id TEXT NOT NULL,
		max_players INTEGER NOT NULL,
		max_turns INTEGER NOT NULL,
		phase_seconds INTEGER NOT NULL,
		winner TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS game_players (
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		player_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_area TEXT NOT NULL,
		joined_at TIMESTAMP NOT NULL,
		PRIMARY KEY (game_id, user_id),
		UNIQUE (game_id, player_id),
		UNIQUE (game_id, start_area)
	);

	CREATE TABLE IF NOT EXISTS phases (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		turn INTEGER NOT NULL,
		activity TEXT NOT NULL,
		state_before BLOB NOT NULL,
		state_after BLOB,
		deadline TIMESTAMP NOT NULL,
		resolved_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS commands (
		id TEXT PRIMARY KEY,
		game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
		phase_id TEXT NOT NULL REFERENCES phases(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL DEFAULT '',
		player_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload BLOB NOT NULL,
		result TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);
	CREATE INDEX IF NOT EXISTS idx_phases_game ON phases(game_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_commands_phase ON commands(phase_id, created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}
