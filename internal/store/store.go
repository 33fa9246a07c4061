// Package store defines the persistence contracts consumed by the auth flows
// and the analytics sync job. Concrete implementations live in store/postgres;
// tests swap in doubles.
package store

import (
	"context"
	"time"

	"postbridge/internal/models"
)

// Users anchors identities. UpsertByEmail never errors on an existing row.
type Users interface {
	// UpsertByEmail returns the user for email, creating the row if absent.
	UpsertByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID loads a user by id.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// IncrementPostsThisMonth bumps the monthly publish counter.
	IncrementPostsThisMonth(ctx context.Context, id string) error
}

// RefreshTokens stores session records. Rows are never deleted; revocation
// flips the flag so the audit trail survives.
type RefreshTokens interface {
	// Create persists the hash of a freshly minted refresh token.
	Create(ctx context.Context, userID, hashedToken string) (*models.RefreshToken, error)
	// ActiveByUser returns all non-revoked records for a user.
	ActiveByUser(ctx context.Context, userID string) ([]models.RefreshToken, error)
	// Revoke marks a single record revoked.
	Revoke(ctx context.Context, id string) error
	// RevokeAllForUser marks every record for the user revoked.
	RevokeAllForUser(ctx context.Context, userID string) error
}

// LinkResult reports what the linking transaction did.
type LinkResult struct {
	Account *models.LinkedAccount
	Created bool
}

// LinkedAccounts stores third-party account bindings.
type LinkedAccounts interface {
	// GetByUserProvider loads the unique (user, provider) row.
	GetByUserProvider(ctx context.Context, userID string, provider models.Provider) (*models.LinkedAccount, error)
	// ListActive returns every account with is_active=true, for the sync job.
	ListActive(ctx context.Context) ([]models.LinkedAccount, error)
	// Link upserts the (user, provider) binding inside one transaction:
	// on first linkage it also increments the user's connected-platform
	// counter, and it backfills the user's name/avatar only if empty.
	Link(ctx context.Context, acc *models.LinkedAccount, profileName, profileAvatar string) (LinkResult, error)
	// UpdateTokens persists freshly rotated provider tokens against the row.
	UpdateTokens(ctx context.Context, id, encryptedAccess string, encryptedRefresh *string, expiry *time.Time) error
	// UpdateProfile refreshes display metadata after a provider fetch.
	UpdateProfile(ctx context.Context, id, displayName, username string, followerCount int64, platformData []byte) error
	// TouchSync stamps last_sync.
	TouchSync(ctx context.Context, id string, at time.Time) error
}

// Analytics upserts daily rollups; re-running a day overwrites in place.
type Analytics interface {
	Upsert(ctx context.Context, a *models.Analytics) error
}

// Posts records publish attempts.
type Posts interface {
	Create(ctx context.Context, p *models.Post) error
	MarkPublished(ctx context.Context, id, platformPostID, platformURL string) error
	MarkFailed(ctx context.Context, id, message string) error
}
