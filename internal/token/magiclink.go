package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingEmail means a structurally valid magic-link token carried no email.
var ErrMissingEmail = errors.New("magic link token missing email")

// magic links stay valid for 15 minutes
const magicLinkTTL = 15 * time.Minute

type magicLinkClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// MagicLink mints and verifies the single-use login tokens delivered by email.
type MagicLink struct {
	secret []byte
}

func NewMagicLink(secret string) *MagicLink {
	return &MagicLink{secret: []byte(secret)}
}

// Mint binds an email address into a signed, time-boxed login token.
func (m *MagicLink) Mint(email string) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, magicLinkClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(magicLinkTTL)),
		},
	})
	return t.SignedString(m.secret)
}

// Verify returns the email bound into a valid magic-link token.
func (m *MagicLink) Verify(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &magicLinkClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	c, ok := parsed.Claims.(*magicLinkClaims)
	if !ok || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	if c.Email == "" {
		return "", ErrMissingEmail
	}
	return c.Email, nil
}
