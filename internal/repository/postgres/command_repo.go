package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/mare-nostrum/internal/model"
)

// CommandRepo stores the command log.
type CommandRepo struct {
	db *sql.DB
}

// NewCommandRepo creates a CommandRepo.
func NewCommandRepo(db *sql.DB) *CommandRepo {
	return &CommandRepo{db: db}
}

// SaveCommand inserts a command and fills in its ID and creation time.
func (r *CommandRepo) SaveCommand(ctx context.Context, c *model.Command) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO commands (game_id, phase_id, user_id, player_id, type, payload, result, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		c.GameID, c.PhaseID, nullStr(c.UserID), c.PlayerID, c.Type, []byte(c.Payload), c.Result, nullStr(c.Error),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save command: %w", err)
	}
	return nil
}

// CommandsByPhase returns the commands of a phase in arrival order.
func (r *CommandRepo) CommandsByPhase(ctx context.Context, phaseID string) ([]model.Command, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, phase_id, user_id, player_id, type, payload, result, error, created_at
		 FROM commands WHERE phase_id = $1 ORDER BY created_at`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("commands by phase: %w", err)
	}
	defer rows.Close()

	var cmds []model.Command
	for rows.Next() {
		var c model.Command
		var userID, errMsg sql.NullString
		var payload []byte
		if err := rows.Scan(&c.ID, &c.GameID, &c.PhaseID, &userID, &c.PlayerID, &c.Type, &payload, &c.Result, &errMsg, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		c.UserID = userID.String
		c.Error = errMsg.String
		c.Payload = json.RawMessage(payload)
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}
