package auth

import (
	"context"
	"errors"
	"fmt"

	"postbridge/internal/errs"
	"postbridge/internal/token"
)

// ErrInvalidOrRevoked is the single answer for every refresh failure mode:
// bad signature, expired, revoked, rotated, or replayed. A replay after
// rotation is indistinguishable from a stolen token and gets the same answer.
var ErrInvalidOrRevoked = errors.New("invalid or revoked refresh token")

// Refresh rotates a session: the presented refresh token is verified, matched
// against a stored hash, revoked, and replaced by a brand-new pair. Strict
// single use.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Session, error) {
	userID, err := s.tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return Session{}, ErrInvalidOrRevoked
	}

	active, err := s.sessions.ActiveByUser(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("load sessions: %w", err)
	}

	// the cookie value only matches the record it was minted with
	for _, rec := range active {
		if !token.CompareToken(rawRefresh, rec.HashedToken) {
			continue
		}

		if err := s.sessions.Revoke(ctx, rec.ID); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// lost the race to a concurrent rotation; treat as replay
				return Session{}, ErrInvalidOrRevoked
			}
			return Session{}, fmt.Errorf("revoke session: %w", err)
		}

		sess, err := s.mintSession(ctx, userID)
		if err != nil {
			return Session{}, err
		}

		s.logger.Info("session_rotated", "user_id", userID)
		return sess, nil
	}

	s.logger.Warn("refresh_rejected", "user_id", userID)
	return Session{}, ErrInvalidOrRevoked
}

// Logout revokes every active session the user has, a deliberate broad
// invalidation. Outstanding unexpired access tokens stay valid until expiry;
// only minting new ones is cut off.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.logger.Info("logged_out", "user_id", userID)
	return nil
}
