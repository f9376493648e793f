package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository stores the Spotify profiles of signed-in users.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Upsert records a login. An empty name or email keeps the stored value.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, display_name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
			email        = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			updated_at   = NOW()
		RETURNING display_name, email, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query, user.ID, user.DisplayName, user.Email).
		Scan(&user.DisplayName, &user.Email, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.ID, err)
	}
	return nil
}
