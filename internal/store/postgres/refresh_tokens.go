package postgres

import (
	"context"

	"postbridge/internal/errs"
	"postbridge/internal/models"
)

// RefreshTokens implements store.RefreshTokens.
type RefreshTokens struct{ pool PgxPool }

func NewRefreshTokens(pool PgxPool) *RefreshTokens { return &RefreshTokens{pool: pool} }

func (r *RefreshTokens) Create(ctx context.Context, userID, hashedToken string) (*models.RefreshToken, error) {
	const q = `
INSERT INTO refresh_tokens (user_id, hashed_token)
VALUES ($1, $2)
RETURNING id, user_id, hashed_token, revoked, created_at`
	var t models.RefreshToken
	err := r.pool.QueryRow(ctx, q, userID, hashedToken).
		Scan(&t.ID, &t.UserID, &t.HashedToken, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *RefreshTokens) ActiveByUser(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	const q = `
SELECT id, user_id, hashed_token, revoked, created_at
FROM refresh_tokens
WHERE user_id = $1 AND NOT revoked
ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RefreshToken
	for rows.Next() {
		var t models.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.HashedToken, &t.Revoked, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Revoke flips the revoked flag; the row itself stays for audit.
func (r *RefreshTokens) Revoke(ctx context.Context, id string) error {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE id = $1 AND NOT revoked`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RevokeAllForUser ends every active session the user has, not just the
// current one.
func (r *RefreshTokens) RevokeAllForUser(ctx context.Context, userID string) error {
	const q = `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`
	_, err := r.pool.Exec(ctx, q, userID)
	return err
}
