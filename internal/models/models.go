package models

import (
	"encoding/json"
	"time"
)

// Provider identifies a third-party platform a user can link.
type Provider string

const ProviderGoogle Provider = "google"

// User is the identity anchor. Rows are created on first magic-link redemption
// and only ever mutated by profile backfill and counters.
type User struct {
	ID                 string
	Email              string
	Name               *string
	AvatarURL          *string
	ConnectedPlatforms int
	PostsThisMonth     int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RefreshToken is one session record. Only the bcrypt hash of the raw token is
// stored; rows are never hard-deleted, revocation flips the flag.
type RefreshToken struct {
	ID          string
	UserID      string
	HashedToken string `json:"-"`
	Revoked     bool
	CreatedAt   time.Time
}

// LinkedAccount binds one third-party identity to one local user. Token fields
// hold encrypted envelopes, never plaintext. At most one row exists per
// (user, provider).
type LinkedAccount struct {
	ID                string
	UserID            string
	Provider          Provider
	ProviderAccountID string
	AccessToken       string  `json:"-"`
	RefreshToken      *string `json:"-"`
	TokenExpiry       *time.Time
	Scope             string
	DisplayName       string
	Username          string
	FollowerCount     int64
	PlatformData      json.RawMessage
	IsActive          bool
	LastSync          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Analytics is a daily rollup keyed by (user, account, date, period); the sync
// job upserts it idempotently.
type Analytics struct {
	ID              string
	UserID          string
	LinkedAccountID string
	Date            time.Time
	Period          string
	Views           int64
	Likes           int64
	Comments        int64
	Shares          int64
	Followers       int64
	EngagementRate  float64
	RawData         json.RawMessage
}

// Post statuses for the publish flow.
const (
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// Post records one publish attempt against a linked account.
type Post struct {
	ID              string
	UserID          string
	LinkedAccountID string
	Status          string
	PostType        string
	Title           string
	Description     string
	MediaKey        string
	ThumbnailKey    *string
	PlatformPostID  *string
	PlatformURL     *string
	ErrorMessage    *string
	RetryCount      int
	PublishedAt     *time.Time
	CreatedAt       time.Time
}
