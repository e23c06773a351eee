package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/mare-nostrum/internal/model"
)

const phaseColumns = `p.id, p.game_id, p.turn, p.activity, p.state_before, p.state_after, p.deadline, p.resolved_at, p.created_at`

// phaseRow mirrors model.Phase with byte slices for the JSON columns, which
// the driver hands back as BLOBs.
type phaseRow struct {
	ID          string     `db:"id"`
	GameID      string     `db:"game_id"`
	Turn        int        `db:"turn"`
	Activity    string     `db:"activity"`
	StateBefore []byte     `db:"state_before"`
	StateAfter  []byte     `db:"state_after"`
	Deadline    time.Time  `db:"deadline"`
	ResolvedAt  *time.Time `db:"resolved_at"`
	CreatedAt   time.Time  `db:"created_at"`
}

func (r phaseRow) model() model.Phase {
	p := model.Phase{
		ID:          r.ID,
		GameID:      r.GameID,
		Turn:        r.Turn,
		Activity:    r.Activity,
		StateBefore: json.RawMessage(r.StateBefore),
		Deadline:    r.Deadline,
		ResolvedAt:  r.ResolvedAt,
		CreatedAt:   r.CreatedAt,
	}
	if r.StateAfter != nil {
		p.StateAfter = json.RawMessage(r.StateAfter)
	}
	return p
}

// PhaseRepo handles phase history rows.
type PhaseRepo struct {
	db *DB
}

func (r *PhaseRepo) get(ctx context.Context, op, query string, args ...any) (*model.Phase, error) {
	var row phaseRow
	err := r.db.conn.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p := row.model()
	return &p, nil
}

func (r *PhaseRepo) list(ctx context.Context, op, query string, args ...any) ([]model.Phase, error) {
	var rows []phaseRow
	if err := r.db.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	phases := make([]model.Phase, 0, len(rows))
	for _, row := range rows {
		phases = append(phases, row.model())
	}
	return phases, nil
}

// CreatePhase inserts a new phase.
func (r *PhaseRepo) CreatePhase(ctx context.Context, gameID string, turn int, activity string, stateBefore json.RawMessage, deadline time.Time) (*model.Phase, error) {
	id := uuid.NewString()
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO phases (id, game_id, turn, activity, state_before, deadline, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, gameID, turn, activity, []byte(stateBefore), deadline.UTC(), r.db.now())
	if err != nil {
		return nil, fmt.Errorf("create phase: %w", err)
	}
	return r.FindPhase(ctx, id)
}

// CurrentPhase returns the latest unresolved phase for a game.
func (r *PhaseRepo) CurrentPhase(ctx context.Context, gameID string) (*model.Phase, error) {
	return r.get(ctx, "current phase",
		`SELECT `+phaseColumns+` FROM phases p WHERE p.game_id = ? AND p.resolved_at IS NULL
		 ORDER BY p.created_at DESC, p.rowid DESC LIMIT 1`, gameID)
}

// FindPhase returns a phase by ID.
func (r *PhaseRepo) FindPhase(ctx context.Context, phaseID string) (*model.Phase, error) {
	return r.get(ctx, "find phase", `SELECT `+phaseColumns+` FROM phases p WHERE p.id = ?`, phaseID)
}

// ListPhases returns all phases for a game in the order they were entered.
func (r *PhaseRepo) ListPhases(ctx context.Context, gameID string) ([]model.Phase, error) {
	return r.list(ctx, "list phases",
		`SELECT `+phaseColumns+` FROM phases p WHERE p.game_id = ? ORDER BY p.created_at, p.rowid`, gameID)
}

// ResolvePhase marks a phase as resolved and stores the resulting state.
func (r *PhaseRepo) ResolvePhase(ctx context.Context, phaseID string, stateAfter json.RawMessage) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE phases SET state_after = ?, resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		[]byte(stateAfter), r.db.now(), phaseID)
	if err != nil {
		return fmt.Errorf("resolve phase: %w", err)
	}
	return nil
}

// ListExpired returns the latest unresolved phase per active game where the
// deadline has passed.
func (r *PhaseRepo) ListExpired(ctx context.Context) ([]model.Phase, error) {
	return r.list(ctx, "list expired phases",
		`SELECT `+phaseColumns+` FROM phases p
		 JOIN games g ON g.id = p.game_id
		 WHERE p.resolved_at IS NULL AND p.deadline < ? AND g.status = ?
		   AND p.rowid = (SELECT q.rowid FROM phases q WHERE q.game_id = p.game_id
		                  ORDER BY q.created_at DESC, q.rowid DESC LIMIT 1)
		 ORDER BY p.game_id`, r.db.now(), model.StatusActive)
}
