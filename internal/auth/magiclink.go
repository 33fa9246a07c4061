// Package auth implements the authentication and session lifecycle: magic-link
// login, refresh-token rotation, logout and OAuth account linking.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"postbridge/internal/logging"
	"postbridge/internal/store"
	"postbridge/internal/token"
)

// Mailer delivers the magic-link message. Implemented by mail.Client.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Session is what a successful login or rotation hands back to the transport
// layer: the access token for the response body/redirect and the raw refresh
// token for the cookie.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Service runs the magic-link flow and the session state machine.
type Service struct {
	users     store.Users
	sessions  store.RefreshTokens
	tokens    *token.Service
	magicLink *token.MagicLink
	mailer    Mailer
	logger    *slog.Logger
	serverURL string
}

func NewService(logger *slog.Logger, users store.Users, sessions store.RefreshTokens,
	tokens *token.Service, magicLink *token.MagicLink, mailer Mailer, serverURL string) *Service {
	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		magicLink: magicLink,
		mailer:    mailer,
		logger:    logger,
		serverURL: serverURL,
	}
}

// RequestMagicLink mints a time-boxed login token for the email and delivers
// it. A delivery failure is the request's failure; there is no silent success.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	tok, err := s.magicLink.Mint(email)
	if err != nil {
		return fmt.Errorf("mint magic link: %w", err)
	}

	link := fmt.Sprintf("%s/auth/magiclink/callback?token=%s", s.serverURL, tok)
	if err := s.mailer.Send(ctx, email, "Your Secure Login Link", loginEmailHTML(link)); err != nil {
		s.logger.Error("magic_link_send_failed", "email", logging.MaskEmail(email), "error", err)
		return err
	}

	s.logger.Info("magic_link_sent", "email", logging.MaskEmail(email))
	return nil
}

// RedeemMagicLink verifies the emailed token, upserts the user identity and
// mints a session. Redeeming twice for one email never creates two users.
func (s *Service) RedeemMagicLink(ctx context.Context, rawToken string) (Session, error) {
	email, err := s.magicLink.Verify(rawToken)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.UpsertByEmail(ctx, email)
	if err != nil {
		return Session{}, fmt.Errorf("upsert user: %w", err)
	}

	sess, err := s.mintSession(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("magic_link_redeemed", "user_id", user.ID, "email", logging.MaskEmail(email))
	return sess, nil
}

// mintSession generates an access+refresh pair and persists the refresh hash
// as a new session record. The raw refresh token never touches storage.
func (s *Service) mintSession(ctx context.Context, userID string) (Session, error) {
	pair, err := s.tokens.GeneratePair(userID)
	if err != nil {
		return Session{}, fmt.Errorf("generate tokens: %w", err)
	}

	hashed, err := token.HashToken(pair.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("hash refresh token: %w", err)
	}

	if _, err := s.sessions.Create(ctx, userID, hashed); err != nil {
		return Session{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func loginEmailHTML(link string) string {
	return `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Login to Your Account</h2>
  <p>Click the button below to securely log in to your account:</p>
  <a href="` + link + `" style="background-color: #007bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block;">
    Log In
  </a>
  <p style="margin-top: 20px; color: #666;">
    This link will expire in 15 minutes. If you didn't request this login, you can safely ignore this email.
  </p>
</div>`
}
