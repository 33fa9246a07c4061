package postgres

import (
	"context"

	"postbridge/internal/errs"
	"postbridge/internal/models"
)

// Posts implements store.Posts.
type Posts struct{ pool PgxPool }

func NewPosts(pool PgxPool) *Posts { return &Posts{pool: pool} }

func (r *Posts) Create(ctx context.Context, p *models.Post) error {
	const q = `
INSERT INTO posts
	(user_id, linked_account_id, status, post_type, title, description, media_key, thumbnail_key)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q,
		p.UserID, p.LinkedAccountID, p.Status, p.PostType, p.Title, p.Description, p.MediaKey, p.ThumbnailKey,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *Posts) MarkPublished(ctx context.Context, id, platformPostID, platformURL string) error {
	const q = `
UPDATE posts SET
	status           = $2,
	platform_post_id = $3,
	platform_url     = $4,
	published_at     = now()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, models.PostStatusPublished, platformPostID, platformURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *Posts) MarkFailed(ctx context.Context, id, message string) error {
	const q = `
UPDATE posts SET
	status        = $2,
	error_message = $3,
	retry_count   = retry_count + 1
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, models.PostStatusFailed, message)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
