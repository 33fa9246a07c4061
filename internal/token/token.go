// Package token issues and verifies the signed bearer tokens used by the
// session lifecycle: short-lived access tokens, long-lived refresh tokens and
// single-use magic-link tokens. Each class signs with its own secret.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// bcrypt cost for refresh-token hashes; slow on purpose, these are only
// compared once per /auth/refresh call.
const hashCost = 10

type Pair struct {
	AccessToken  string
	RefreshToken string
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// GeneratePair mints a fresh access+refresh pair carrying the user id.
func (s *Service) GeneratePair(userID string) (Pair, error) {
	access, err := sign(userID, s.accessSecret, s.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := sign(userID, s.refreshSecret, s.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// VerifyAccess returns the user id carried by a valid access token.
func (s *Service) VerifyAccess(raw string) (string, error) {
	return verify(raw, s.accessSecret)
}

// VerifyRefresh returns the user id carried by a valid refresh token.
func (s *Service) VerifyRefresh(raw string) (string, error) {
	return verify(raw, s.refreshSecret)
}

// HashToken produces the salted one-way hash stored in place of a raw refresh
// token. The raw value is never persisted. A signed JWT is longer than
// bcrypt's 72-byte input limit, so the token is reduced to a fixed-width
// SHA-256 digest before the slow salted hash.
func HashToken(raw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword(tokenDigest(raw), hashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CompareToken checks a raw refresh token against its stored hash in constant
// time.
func CompareToken(raw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), tokenDigest(raw)) == nil
}

func tokenDigest(raw string) []byte {
	sum := sha256.Sum256([]byte(raw))
	return []byte(hex.EncodeToString(sum[:]))
}

func sign(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return t.SignedString(secret)
}

func verify(raw string, secret []byte) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.UserID == "" {
		return "", ErrTokenInvalid
	}
	return c.UserID, nil
}
