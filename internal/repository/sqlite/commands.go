package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/mare-nostrum/internal/model"
)

type commandRow struct {
	ID        string    `db:"id"`
	GameID    string    `db:"game_id"`
	PhaseID   string    `db:"phase_id"`
	UserID    string    `db:"user_id"`
	PlayerID  string    `db:"player_id"`
	Type      string    `db:"type"`
	Payload   []byte    `db:"payload"`
	Result    string    `db:"result"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
}

// CommandRepo stores the command log.
type CommandRepo struct {
	db *DB
}

// SaveCommand inserts a command and fills in its ID and creation time.
func (r *CommandRepo) SaveCommand(ctx context.Context, c *model.Command) error {
	id, now := uuid.NewString(), r.db.now()
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO commands (id, game_id, phase_id, user_id, player_id, type, payload, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.GameID, c.PhaseID, c.UserID, c.PlayerID, c.Type, []byte(c.Payload), c.Result, c.Error, now)
	if err != nil {
		return fmt.Errorf("save command: %w", err)
	}
	c.ID, c.CreatedAt = id, now
	return nil
}

// CommandsByPhase returns the commands of a phase in arrival order.
func (r *CommandRepo) CommandsByPhase(ctx context.Context, phaseID string) ([]model.Command, error) {
	var rows []commandRow
	err := r.db.conn.SelectContext(ctx, &rows,
		`SELECT id, game_id, phase_id, user_id, player_id, type, payload, result, error, created_at
		 FROM commands WHERE phase_id = ? ORDER BY created_at, rowid`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("commands by phase: %w", err)
	}
	cmds := make([]model.Command, 0, len(rows))
	for _, row := range rows {
		cmds = append(cmds, model.Command{
			ID:        row.ID,
			GameID:    row.GameID,
			PhaseID:   row.PhaseID,
			UserID:    row.UserID,
			PlayerID:  row.PlayerID,
			Type:      row.Type,
			Payload:   json.RawMessage(row.Payload),
			Result:    row.Result,
			Error:     row.Error,
			CreatedAt: row.CreatedAt,
		})
	}
	return cmds, nil
}
