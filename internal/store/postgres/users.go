package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"postbridge/internal/errs"
	"postbridge/internal/models"
)

// Users implements store.Users.
type Users struct{ pool PgxPool }

func NewUsers(pool PgxPool) *Users { return &Users{pool: pool} }

// UpsertByEmail creates the user on first sight of the email and returns the
// existing row otherwise. Two concurrent redemptions for the same email
// resolve through the unique constraint, never through an error.
func (r *Users) UpsertByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
INSERT INTO users (email) VALUES ($1)
ON CONFLICT (email) DO UPDATE SET updated_at = now()
RETURNING id, email, name, avatar_url, connected_platforms, posts_this_month, created_at, updated_at`
	return scanUser(r.pool.QueryRow(ctx, q, email))
}

func (r *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
SELECT id, email, name, avatar_url, connected_platforms, posts_this_month, created_at, updated_at
FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, q, id))
}

func (r *Users) IncrementPostsThisMonth(ctx context.Context, id string) error {
	const q = `UPDATE users SET posts_this_month = posts_this_month + 1, updated_at = now() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &u.ConnectedPlatforms, &u.PostsThisMonth, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
