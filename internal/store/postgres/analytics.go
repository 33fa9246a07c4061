package postgres

import (
	"context"

	"postbridge/internal/models"
)

// Analytics implements store.Analytics.
type Analytics struct{ pool PgxPool }

func NewAnalytics(pool PgxPool) *Analytics { return &Analytics{pool: pool} }

// Upsert writes one daily rollup. The (user, account, date, period) key makes
// re-runs overwrite in place instead of duplicating rows.
func (r *Analytics) Upsert(ctx context.Context, a *models.Analytics) error {
	const q = `
INSERT INTO analytics
	(user_id, linked_account_id, date, period, views, likes, comments, shares,
	 followers, engagement_rate, raw_data)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id, linked_account_id, date, period) DO UPDATE SET
	views           = EXCLUDED.views,
	likes           = EXCLUDED.likes,
	comments        = EXCLUDED.comments,
	shares          = EXCLUDED.shares,
	followers       = EXCLUDED.followers,
	engagement_rate = EXCLUDED.engagement_rate,
	raw_data        = EXCLUDED.raw_data,
	updated_at      = now()`
	_, err := r.pool.Exec(ctx, q,
		a.UserID, a.LinkedAccountID, a.Date, a.Period, a.Views, a.Likes, a.Comments,
		a.Shares, a.Followers, a.EngagementRate, platformDataOrEmpty(a.RawData),
	)
	return err
}
