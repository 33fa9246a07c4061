package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"postbridge/internal/errs"
	"postbridge/internal/models"
	"postbridge/internal/store"
)

// LinkedAccounts implements store.LinkedAccounts.
type LinkedAccounts struct{ pool PgxPool }

func NewLinkedAccounts(pool PgxPool) *LinkedAccounts { return &LinkedAccounts{pool: pool} }

const linkedAccountCols = `
id, user_id, provider, provider_account_id, access_token, refresh_token,
token_expiry, scope, display_name, username, follower_count, platform_data,
is_active, last_sync, created_at, updated_at`

func (r *LinkedAccounts) GetByUserProvider(ctx context.Context, userID string, provider models.Provider) (*models.LinkedAccount, error) {
	q := `SELECT ` + linkedAccountCols + ` FROM linked_accounts WHERE user_id = $1 AND provider = $2`
	return scanLinkedAccount(r.pool.QueryRow(ctx, q, userID, string(provider)))
}

func (r *LinkedAccounts) ListActive(ctx context.Context) ([]models.LinkedAccount, error) {
	q := `SELECT ` + linkedAccountCols + ` FROM linked_accounts WHERE is_active ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.LinkedAccount
	for rows.Next() {
		acc, err := scanLinkedAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

// Link runs the whole linking write set in one serializable transaction so a
// crash can never leave the connected-platform counter and the account row out
// of step.
func (r *LinkedAccounts) Link(ctx context.Context, acc *models.LinkedAccount, profileName, profileAvatar string) (store.LinkResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return store.LinkResult{}, fmt.Errorf("begin link tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingID string
	err = tx.QueryRow(ctx,
		`SELECT id FROM linked_accounts WHERE user_id = $1 AND provider = $2 FOR UPDATE`,
		acc.UserID, string(acc.Provider),
	).Scan(&existingID)
	created := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !created {
		return store.LinkResult{}, err
	}

	const upsert = `
INSERT INTO linked_accounts
	(user_id, provider, provider_account_id, access_token, refresh_token,
	 token_expiry, scope, display_name, username, follower_count,
	 platform_data, is_active, last_sync)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, TRUE, now())
ON CONFLICT (user_id, provider) DO UPDATE SET
	provider_account_id = EXCLUDED.provider_account_id,
	access_token        = EXCLUDED.access_token,
	refresh_token       = COALESCE(EXCLUDED.refresh_token, linked_accounts.refresh_token),
	token_expiry        = EXCLUDED.token_expiry,
	scope               = EXCLUDED.scope,
	display_name        = EXCLUDED.display_name,
	username            = EXCLUDED.username,
	follower_count      = EXCLUDED.follower_count,
	platform_data       = EXCLUDED.platform_data,
	is_active           = TRUE,
	last_sync           = now(),
	updated_at          = now()
RETURNING ` + linkedAccountCols
	saved, err := scanLinkedAccount(tx.QueryRow(ctx, upsert,
		acc.UserID, string(acc.Provider), acc.ProviderAccountID, acc.AccessToken, acc.RefreshToken,
		acc.TokenExpiry, acc.Scope, acc.DisplayName, acc.Username, acc.FollowerCount,
		platformDataOrEmpty(acc.PlatformData),
	))
	if err != nil {
		return store.LinkResult{}, err
	}

	// counter moves exactly once, on first linkage only
	if created {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET connected_platforms = connected_platforms + 1, updated_at = now() WHERE id = $1`,
			acc.UserID,
		); err != nil {
			return store.LinkResult{}, err
		}
	}

	// backfill profile fields only where currently empty
	if _, err := tx.Exec(ctx, `
UPDATE users SET
	name       = COALESCE(name, NULLIF($2, '')),
	avatar_url = COALESCE(avatar_url, NULLIF($3, '')),
	updated_at = now()
WHERE id = $1`,
		acc.UserID, profileName, profileAvatar,
	); err != nil {
		return store.LinkResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.LinkResult{}, fmt.Errorf("commit link tx: %w", err)
	}
	return store.LinkResult{Account: saved, Created: created}, nil
}

func (r *LinkedAccounts) UpdateTokens(ctx context.Context, id, encryptedAccess string, encryptedRefresh *string, expiry *time.Time) error {
	const q = `
UPDATE linked_accounts SET
	access_token  = $2,
	refresh_token = COALESCE($3, refresh_token),
	token_expiry  = COALESCE($4, token_expiry),
	last_sync     = now(),
	updated_at    = now()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, encryptedAccess, encryptedRefresh, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *LinkedAccounts) UpdateProfile(ctx context.Context, id, displayName, username string, followerCount int64, platformData []byte) error {
	const q = `
UPDATE linked_accounts SET
	display_name   = $2,
	username       = $3,
	follower_count = $4,
	platform_data  = $5,
	last_sync      = now(),
	updated_at     = now()
WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, displayName, username, followerCount, platformDataOrEmpty(platformData))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *LinkedAccounts) TouchSync(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE linked_accounts SET last_sync = $2, updated_at = now() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

func platformDataOrEmpty(b []byte) []byte {
	if len(b) == 0 {
		return []byte("{}")
	}
	return b
}

func scanLinkedAccount(row pgx.Row) (*models.LinkedAccount, error) {
	var a models.LinkedAccount
	var provider string
	err := row.Scan(
		&a.ID, &a.UserID, &provider, &a.ProviderAccountID, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiry, &a.Scope, &a.DisplayName, &a.Username, &a.FollowerCount, &a.PlatformData,
		&a.IsActive, &a.LastSync, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	a.Provider = models.Provider(provider)
	return &a, nil
}
