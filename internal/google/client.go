// Package google integrates the YouTube platform behind a narrow capability
// surface: code exchange, channel profile, daily metrics and video upload.
// The auth flows and the sync job only ever see the Provider interface, so
// they stay testable without network calls.
package google

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

var (
	// ErrNoChannel means the Google account has no YouTube channel; linking
	// requires one.
	ErrNoChannel = errors.New("google account has no youtube channel")
	// ErrProvider wraps unexpected provider API responses.
	ErrProvider = errors.New("provider request failed")
)

const (
	authURL  = "https://accounts.google.com/o/oauth2/auth"
	tokenURL = "https://oauth2.googleapis.com/token"

	channelsURL   = "https://www.googleapis.com/youtube/v3/channels"
	reportsURL    = "https://youtubeanalytics.googleapis.com/v2/reports"
	uploadURL     = "https://www.googleapis.com/upload/youtube/v3/videos"
	thumbnailsURL = "https://www.googleapis.com/upload/youtube/v3/thumbnails/set"
)

// Tokens is the provider token material handed back from an exchange or a
// silent refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	Scope        string
}

// TokenRefreshed is emitted whenever the provider silently rotates an access
// token during an API call. Exactly one subscriber persists it.
type TokenRefreshed struct {
	AccountID    string
	AccessToken  string
	RefreshToken string // empty when the provider kept the old one
	Expiry       time.Time
}

// RefreshListener receives TokenRefreshed events. Implementations must not
// block the API call that triggered the refresh.
type RefreshListener interface {
	TokenRefreshed(ctx context.Context, ev TokenRefreshed)
}

// Channel is the externally visible identity of a YouTube channel.
type Channel struct {
	ID          string
	Title       string
	CustomURL   string
	Subscribers int64
	Views       int64
	Videos      int64
	RawStats    []byte
}

// DayMetrics is one day of the rolling analytics report.
type DayMetrics struct {
	Date           time.Time
	Views          int64
	Likes          int64
	Comments       int64
	Shares         int64
	EngagementRate float64
}

// UserInfo is the OIDC profile of the account owner, used only to backfill
// empty user profile fields.
type UserInfo struct {
	Name    string
	Email   string
	Picture string
}

// VideoMeta describes a video to publish.
type VideoMeta struct {
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
}

// Provider is the capability surface consumed by the linking flow, the upload
// flow and the analytics sync job.
type Provider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (Tokens, error)
	FetchChannel(ctx context.Context, accountID string, tokens Tokens) (*Channel, error)
	FetchUserInfo(ctx context.Context, accountID string, tokens Tokens) (*UserInfo, error)
	FetchDailyMetrics(ctx context.Context, accountID string, tokens Tokens, start, end time.Time) ([]DayMetrics, error)
	UploadVideo(ctx context.Context, accountID string, tokens Tokens, meta VideoMeta, media io.Reader, thumbnail io.Reader) (videoID string, err error)
}

// Client implements Provider against the live YouTube APIs.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	listener   RefreshListener
}

func NewClient(logger *slog.Logger, clientID, clientSecret, redirectURL string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"profile",
				"email",
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube.readonly",
				"https://www.googleapis.com/auth/yt-analytics.readonly",
			},
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
		},
		httpClient: newAPIHTTPClient(),
		// stay well under the provider quota; the sync loop is sequential
		// anyway, this just smooths bursts from concurrent API handlers
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		logger:   logger,
		listener: nil,
	}
}

// SetRefreshListener registers the single subscriber that persists rotated
// tokens. Must be called before any API call is made.
func (c *Client) SetRefreshListener(l RefreshListener) { c.listener = l }

// AuthCodeURL builds the provider authorization URL. Offline access and
// forced consent guarantee a refresh token on every linkage.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode swaps an authorization code for provider tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (Tokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scope:        scopeOf(tok),
	}, nil
}

// apiClient returns an authenticated HTTP client for the account. Silent
// refreshes performed by the token source surface through the listener.
func (c *Client) apiClient(ctx context.Context, accountID string, tokens Tokens) *http.Client {
	base := &oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
		TokenType:    "Bearer",
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := &notifyingTokenSource{
		base:      c.oauth.TokenSource(ctx, base),
		last:      base,
		accountID: accountID,
		client:    c,
		ctx:       ctx,
	}
	return oauth2.NewClient(ctx, src)
}

// notifyingTokenSource wraps the refreshing token source and emits a
// TokenRefreshed event whenever the access token changes.
type notifyingTokenSource struct {
	base      oauth2.TokenSource
	last      *oauth2.Token
	accountID string
	client    *Client
	ctx       context.Context
}

func (s *notifyingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	if tok.AccessToken != s.last.AccessToken {
		ev := TokenRefreshed{
			AccountID:   s.accountID,
			AccessToken: tok.AccessToken,
			Expiry:      tok.Expiry,
		}
		if tok.RefreshToken != "" && tok.RefreshToken != s.last.RefreshToken {
			ev.RefreshToken = tok.RefreshToken
		}
		s.last = tok

		if s.client.listener != nil {
			s.client.listener.TokenRefreshed(s.ctx, ev)
		} else {
			s.client.logger.Warn("token_refresh_unhandled", "account_id", s.accountID)
		}
	}

	return tok, nil
}

func scopeOf(tok *oauth2.Token) string {
	if s, ok := tok.Extra("scope").(string); ok {
		return s
	}
	return ""
}

// newAPIHTTPClient mirrors the pooled, keep-alive client used for every
// outbound provider call.
func newAPIHTTPClient() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Minute, // uploads stream large media bodies
	}
}
