package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"postbridge/internal/google"
	"postbridge/internal/logging"
	"postbridge/internal/models"
	"postbridge/internal/security"
	"postbridge/internal/store"
)

// Linker runs the OAuth account-linking flow: it attaches a provider account
// to an already authenticated user. It is not a login path.
type Linker struct {
	accounts  store.LinkedAccounts
	vault     *security.Vault
	provider  google.Provider
	logger    *slog.Logger
	serverURL string
}

func NewLinker(logger *slog.Logger, accounts store.LinkedAccounts, vault *security.Vault,
	provider google.Provider, serverURL string) *Linker {
	return &Linker{
		accounts:  accounts,
		vault:     vault,
		provider:  provider,
		logger:    logger,
		serverURL: serverURL,
	}
}

// Initiate returns the URL the frontend opens to start linking. The state
// carries the initiating user's id through the provider round trip.
func (l *Linker) Initiate(userID string) string {
	return fmt.Sprintf("%s/connect/google?state=%s", l.serverURL, EncodeState(userID))
}

// AuthorizeURL resolves the provider authorization URL for a state parameter,
// validating the state before the hand-off.
func (l *Linker) AuthorizeURL(state string) (string, error) {
	if _, err := DecodeState(state); err != nil {
		return "", err
	}
	return l.provider.AuthCodeURL(state), nil
}

// HandleCallback finishes the linkage: decode state, exchange the code, fetch
// the channel identity, and upsert the account with encrypted tokens inside
// one transaction.
func (l *Linker) HandleCallback(ctx context.Context, code, state string) (*models.LinkedAccount, error) {
	userID, err := DecodeState(state)
	if err != nil {
		return nil, err
	}

	tokens, err := l.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	// the channel, not the OAuth subject, is the provider-side identity; an
	// account without one cannot be linked
	channel, err := l.provider.FetchChannel(ctx, "", tokens)
	if err != nil {
		return nil, err
	}

	profile, err := l.provider.FetchUserInfo(ctx, "", tokens)
	if err != nil {
		// profile backfill is best-effort; the channel already identified
		// the account
		l.logger.Warn("userinfo_fetch_failed", "user_id", userID, "error", err)
		profile = &google.UserInfo{}
	}

	encAccess, err := l.vault.Encrypt(tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	var encRefresh *string
	if tokens.RefreshToken != "" {
		enc, err := l.vault.Encrypt(tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("encrypt refresh token: %w", err)
		}
		encRefresh = &enc
	}

	platformData, _ := json.Marshal(map[string]any{
		"channelId":  channel.ID,
		"channelUrl": "https://www.youtube.com/channel/" + channel.ID,
		"viewCount":  channel.Views,
		"videoCount": channel.Videos,
	})

	var expiry *time.Time
	if !tokens.Expiry.IsZero() {
		expiry = &tokens.Expiry
	}

	acc := &models.LinkedAccount{
		UserID:            userID,
		Provider:          models.ProviderGoogle,
		ProviderAccountID: channel.ID,
		AccessToken:       encAccess,
		RefreshToken:      encRefresh,
		TokenExpiry:       expiry,
		Scope:             tokens.Scope,
		DisplayName:       channel.Title,
		Username:          channel.CustomURL,
		FollowerCount:     channel.Subscribers,
		PlatformData:      platformData,
	}

	res, err := l.accounts.Link(ctx, acc, profile.Name, profile.Picture)
	if err != nil {
		return nil, fmt.Errorf("link account: %w", err)
	}

	l.logger.Info("account_linked",
		"user_id", userID,
		"provider", string(models.ProviderGoogle),
		"channel_id", channel.ID,
		"created", res.Created,
	)
	return res.Account, nil
}

// TokenRefreshed persists silently rotated provider tokens. It is the single
// subscriber to the provider client's refresh events and can fire from any
// authenticated API call, including the analytics sync job.
func (l *Linker) TokenRefreshed(ctx context.Context, ev google.TokenRefreshed) {
	if ev.AccountID == "" || ev.AccessToken == "" {
		return
	}

	encAccess, err := l.vault.Encrypt(ev.AccessToken)
	if err != nil {
		l.logger.Error("refresh_encrypt_failed", "account_id", ev.AccountID, "error", err)
		return
	}

	var encRefresh *string
	if ev.RefreshToken != "" {
		enc, err := l.vault.Encrypt(ev.RefreshToken)
		if err != nil {
			l.logger.Error("refresh_encrypt_failed", "account_id", ev.AccountID, "error", err)
			return
		}
		encRefresh = &enc
	}

	var expiry *time.Time
	if !ev.Expiry.IsZero() {
		expiry = &ev.Expiry
	}

	if err := l.accounts.UpdateTokens(ctx, ev.AccountID, encAccess, encRefresh, expiry); err != nil {
		l.logger.Error("refresh_persist_failed", "account_id", ev.AccountID, "error", err)
		return
	}

	l.logger.Info("provider_tokens_rotated",
		"account_id", ev.AccountID, "access_token", logging.MaskToken(ev.AccessToken))
}

// DecryptTokens opens the stored envelopes for an account so the provider
// client can authenticate with them.
func (l *Linker) DecryptTokens(acc *models.LinkedAccount) (google.Tokens, error) {
	access, err := l.vault.Decrypt(acc.AccessToken)
	if err != nil {
		return google.Tokens{}, fmt.Errorf("decrypt access token: %w", err)
	}
	t := google.Tokens{AccessToken: access, Scope: acc.Scope}
	if acc.RefreshToken != nil {
		refresh, err := l.vault.Decrypt(*acc.RefreshToken)
		if err != nil {
			return google.Tokens{}, fmt.Errorf("decrypt refresh token: %w", err)
		}
		t.RefreshToken = refresh
	}
	if acc.TokenExpiry != nil {
		t.Expiry = *acc.TokenExpiry
	}
	return t, nil
}
