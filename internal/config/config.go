package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	DBDSN     string
	HTTPAddr  string
	LogLevel  string
	Env       string // development | production
	ServerURL string // public base URL of this API
	RedisDSN  string

	// frontend origin allowed for CORS and used for post-auth redirects
	FrontendOrigin string

	// raw secrets kept in-memory only; never log these
	AccessTokenSecret  string
	RefreshTokenSecret string
	MagicLinkSecret    string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	// decoded from OAUTH_TOKEN_ENCRYPTION_KEY (64 hex chars, 32 bytes)
	EncryptionKey []byte

	GoogleClientID     string
	GoogleClientSecret string

	ResendAPIKey string
	MailFrom     string

	MediaEndpoint  string
	MediaBucket    string
	MediaPublicURL string
	MediaRegion    string

	// UTC wall-clock time the daily analytics sync fires, "HH:MM"
	SyncRunAt string
}

func Load() (Config, error) {
	cfg := Config{
		DBDSN:              os.Getenv("DB_DSN"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		Env:                getenvDefault("APP_ENV", "development"),
		ServerURL:          getenvDefault("SERVER_URL", "http://localhost:8080"),
		RedisDSN:           getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		FrontendOrigin:     getenvDefault("FRONTEND_ORIGIN", "http://localhost:3000"),
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		MagicLinkSecret:    os.Getenv("MAGIC_LINK_SECRET"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
		MailFrom:           getenvDefault("MAIL_FROM", "Login <onboarding@postbridge.local>"),
		MediaEndpoint:      os.Getenv("MEDIA_ENDPOINT"),
		MediaBucket:        os.Getenv("MEDIA_BUCKET"),
		MediaPublicURL:     os.Getenv("MEDIA_PUBLIC_URL"),
		MediaRegion:        getenvDefault("MEDIA_REGION", "auto"),
		SyncRunAt:          getenvDefault("ANALYTICS_SYNC_AT", "02:00"),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}
	if cfg.AccessTokenSecret == "" {
		return Config{}, errors.New("missing ACCESS_TOKEN_SECRET")
	}
	if cfg.RefreshTokenSecret == "" {
		return Config{}, errors.New("missing REFRESH_TOKEN_SECRET")
	}
	// access and refresh tokens must never share a signing secret
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if cfg.MagicLinkSecret == "" {
		return Config{}, errors.New("missing MAGIC_LINK_SECRET")
	}

	rawKey := os.Getenv("OAUTH_TOKEN_ENCRYPTION_KEY")
	if len(rawKey) != 64 {
		return Config{}, errors.New("OAUTH_TOKEN_ENCRYPTION_KEY must be a 64-character hex string")
	}
	key, err := hex.DecodeString(rawKey)
	if err != nil {
		return Config{}, errors.New("OAUTH_TOKEN_ENCRYPTION_KEY must be valid hex")
	}
	cfg.EncryptionKey = key

	cfg.AccessTokenTTL, err = parseTTL("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.RefreshTokenTTL, err = parseTTL("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return Config{}, err
	}

	if _, err := ParseRunAt(cfg.SyncRunAt); err != nil {
		return Config{}, fmt.Errorf("invalid ANALYTICS_SYNC_AT: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the process runs with production hardening
// (secure cookies, generic error bodies, no sync-on-start).
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ParseRunAt parses an "HH:MM" UTC wall-clock time as an offset from midnight.
func ParseRunAt(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func parseTTL(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration", key)
	}
	return d, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
