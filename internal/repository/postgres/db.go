package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/freeeve/mare-nostrum/internal/repository"
)

// Connect opens a connection pool to the PostgreSQL database.
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

// NewStore wires the postgres repositories around db. The cache is left
// for the caller to provide.
func NewStore(db *sql.DB) *repository.Store {
	return &repository.Store{
		Users:    NewUserRepo(db),
		Games:    NewGameRepo(db),
		Phases:   NewPhaseRepo(db),
		Commands: NewCommandRepo(db),
		Close:    db.Close,
	}
}
