package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/freeeve/mare-nostrum/internal/model"
)

const phaseColumns = `id, game_id, turn, activity, state_before, state_after, deadline, resolved_at, created_at`

// PhaseRepo handles phase history operations.
type PhaseRepo struct {
	db *sql.DB
}

// NewPhaseRepo creates a PhaseRepo.
func NewPhaseRepo(db *sql.DB) *PhaseRepo {
	return &PhaseRepo{db: db}
}

func scanPhase(s rowScanner) (model.Phase, error) {
	var p model.Phase
	var before []byte
	var after sql.NullString
	if err := s.Scan(&p.ID, &p.GameID, &p.Turn, &p.Activity, &before, &after, &p.Deadline, &p.ResolvedAt, &p.CreatedAt); err != nil {
		return p, err
	}
	p.StateBefore = json.RawMessage(before)
	if after.Valid {
		p.StateAfter = json.RawMessage(after.String)
	}
	return p, nil
}

func (r *PhaseRepo) listPhases(ctx context.Context, op, query string, args ...any) ([]model.Phase, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var phases []model.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

// CreatePhase inserts a new phase.
func (r *PhaseRepo) CreatePhase(ctx context.Context, gameID string, turn int, activity string, stateBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO phases (game_id, turn, activity, state_before, deadline)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+phaseColumns,
		gameID, turn, activity, []byte(stateBefore), deadline)
	p, err := scanPhase(row)
	if err != nil {
		return nil, fmt.Errorf("create phase: %w", err)
	}
	return &p, nil
}

// CurrentPhase returns the latest unresolved phase for a game.
func (r *PhaseRepo) CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+phaseColumns+` FROM phases WHERE game_id = $1 AND resolved_at IS NULL
		 ORDER BY created_at DESC LIMIT 1`, gameID)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current phase: %w", err)
	}
	return &p, nil
}

// FindPhase returns a phase by ID.
func (r *PhaseRepo) FindPhase(ctx context.Context, phaseID string) (*model.Phase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id = $1`, phaseID)
	p, err := scanPhase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find phase: %w", err)
	}
	return &p, nil
}

// ListPhases returns all phases for a game in the order they were entered.
func (r *PhaseRepo) ListPhases(ctx context.Context, gameID string) ([]model.Phase, error) {
	return r.listPhases(ctx, "list phases",
		`SELECT `+phaseColumns+` FROM phases WHERE game_id = $1 ORDER BY created_at`, gameID)
}

// ResolvePhase marks a phase as resolved and stores the resulting state.
func (r *PhaseRepo) ResolvePhase(ctx context.Context, phaseID string, stateAfter json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE phases SET state_after = $1, resolved_at = now() WHERE id = $2 AND resolved_at IS NULL`,
		[]byte(stateAfter), phaseID,
	)
	if err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}
	return nil
}

// ListExpired returns the latest unresolved phase per active game where the
// deadline has passed.
func (r *PhaseRepo) ListExpired(ctx context.Context) ([]model.Phase, error) {
	return r.listPhases(ctx, "list expired phases",
		`SELECT DISTINCT ON (p.game_id) p.id, p.game_id, p.turn, p.activity, p.state_before, p.state_after,
		        p.deadline, p.resolved_at, p.created_at
		 FROM phases p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.resolved_at IS NULL AND p.deadline < now() AND g.status = 'active'
		 ORDER BY p.game_id, p.created_at DESC`)
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
