package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/freeeve/mare-nostrum/internal/model"
)

const userColumns = `id, provider, provider_id, display_name, avatar_url, created_at, updated_at`

// UserRepo handles user rows.
type UserRepo struct {
	db *DB
}

func (r *UserRepo) get(ctx context.Context, op, query string, args ...any) (*model.User, error) {
	var u model.User
	err := r.db.conn.GetContext(ctx, &u, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// FindByID looks up a user by ID.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, "find user by id", `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindByProviderID looks up a user by OAuth provider and provider-specific ID.
func (r *UserRepo) FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	return r.get(ctx, "find user by provider",
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`, provider, providerID)
}

// Upsert creates a user or refreshes the display name and avatar of an
// existing one.
func (r *UserRepo) Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	now := r.db.now()
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, provider, provider_id, display_name, avatar_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET display_name = excluded.display_name, avatar_url = excluded.avatar_url, updated_at = excluded.updated_at`,
		uuid.NewString(), provider, providerID, displayName, avatarURL, now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return r.FindByProviderID(ctx, provider, providerID)
}

// UpdateDisplayName updates a user's display name.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`, displayName, r.db.now(), id)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}
