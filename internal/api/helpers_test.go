package api

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"postbridge/internal/auth"
	"postbridge/internal/config"
	"postbridge/internal/errs"
	"postbridge/internal/google"
	"postbridge/internal/models"
	"postbridge/internal/publish"
	"postbridge/internal/security"
	"postbridge/internal/store"
	"postbridge/internal/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUsers struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	byEml map[string]string
	seq   int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*models.User{}, byEml: map[string]string{}}
}

func (f *fakeUsers) UpsertByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byEml[email]; ok {
		u := *f.byID[id]
		return &u, nil
	}
	f.seq++
	id := "user-" + strconv.Itoa(f.seq)
	u := &models.User{ID: id, Email: email, CreatedAt: time.Now()}
	f.byID[id] = u
	f.byEml[email] = id
	out := *u
	return &out, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUsers) IncrementPostsThisMonth(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		u.PostsThisMonth++
	}
	return nil
}

type fakeSessions struct {
	mu   sync.Mutex
	rows map[string]*models.RefreshToken
	seq  int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: map[string]*models.RefreshToken{}}
}

func (f *fakeSessions) Create(_ context.Context, userID, hashedToken string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "rt-" + strconv.Itoa(f.seq)
	rec := &models.RefreshToken{ID: id, UserID: userID, HashedToken: hashedToken, CreatedAt: time.Now()}
	f.rows[id] = rec
	out := *rec
	return &out, nil
}

func (f *fakeSessions) ActiveByUser(_ context.Context, userID string) ([]models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RefreshToken
	for _, rec := range f.rows {
		if rec.UserID == userID && !rec.Revoked {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeSessions) Revoke(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.Revoked {
		return errs.ErrNotFound
	}
	rec.Revoked = true
	return nil
}

func (f *fakeSessions) RevokeAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.rows {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

type fakeAccounts struct {
	mu   sync.Mutex
	rows map[string]*models.LinkedAccount
	seq  int
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{rows: map[string]*models.LinkedAccount{}}
}

func (f *fakeAccounts) GetByUserProvider(_ context.Context, userID string, provider models.Provider) (*models.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.rows {
		if acc.UserID == userID && acc.Provider == provider {
			out := *acc
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeAccounts) ListActive(_ context.Context) ([]models.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LinkedAccount
	for _, acc := range f.rows {
		if acc.IsActive {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (f *fakeAccounts) Link(_ context.Context, acc *models.LinkedAccount, _, _ string) (store.LinkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	copied := *acc
	copied.ID = "acc-" + strconv.Itoa(f.seq)
	copied.IsActive = true
	f.rows[copied.ID] = &copied
	out := copied
	return store.LinkResult{Account: &out, Created: true}, nil
}

func (f *fakeAccounts) UpdateTokens(_ context.Context, id, encryptedAccess string, encryptedRefresh *string, expiry *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	acc.AccessToken = encryptedAccess
	if encryptedRefresh != nil {
		acc.RefreshToken = encryptedRefresh
	}
	acc.TokenExpiry = expiry
	return nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id, displayName, username string, followerCount int64, _ []byte) error {
	return nil
}

func (f *fakeAccounts) TouchSync(_ context.Context, id string, at time.Time) error {
	return nil
}

type fakePosts struct {
	mu   sync.Mutex
	rows map[string]*models.Post
	seq  int
}

func newFakePosts() *fakePosts { return &fakePosts{rows: map[string]*models.Post{}} }

func (f *fakePosts) Create(_ context.Context, p *models.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	p.ID = "post-" + strconv.Itoa(f.seq)
	p.CreatedAt = time.Now()
	copied := *p
	f.rows[p.ID] = &copied
	return nil
}

func (f *fakePosts) MarkPublished(_ context.Context, id, platformPostID, platformURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	now := time.Now()
	p.Status = models.PostStatusPublished
	p.PlatformPostID = &platformPostID
	p.PlatformURL = &platformURL
	p.PublishedAt = &now
	return nil
}

func (f *fakePosts) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.Status = models.PostStatusFailed
	p.ErrorMessage = &message
	p.RetryCount++
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (f *fakeMailer) Send(_ context.Context, to, _ string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeProvider struct {
	tokens     google.Tokens
	channel    *google.Channel
	channelErr error
	uploadID   string
	uploadErr  error
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (f *fakeProvider) ExchangeCode(_ context.Context, _ string) (google.Tokens, error) {
	return f.tokens, nil
}

func (f *fakeProvider) FetchChannel(_ context.Context, _ string, _ google.Tokens) (*google.Channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channel, nil
}

func (f *fakeProvider) FetchUserInfo(_ context.Context, _ string, _ google.Tokens) (*google.UserInfo, error) {
	return &google.UserInfo{}, nil
}

func (f *fakeProvider) FetchDailyMetrics(_ context.Context, _ string, _ google.Tokens, _, _ time.Time) ([]google.DayMetrics, error) {
	return nil, nil
}

func (f *fakeProvider) UploadVideo(_ context.Context, _ string, _ google.Tokens, _ google.VideoMeta, _ io.Reader, _ io.Reader) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadID, nil
}

type fakeMedia struct {
	objects map[string]string
}

func (f *fakeMedia) Fetch(_ context.Context, key string) (io.ReadCloser, error) {
	body, ok := f.objects[key]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeMedia) Store(_ context.Context, key, _ string, body io.Reader) (string, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.objects[key] = string(raw)
	return "https://media.example/" + key, nil
}

type fakeCache struct {
	mu      sync.Mutex
	values  map[string]string
	deleted []string
	pingErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func (f *fakeCache) Ping(context.Context) error { return f.pingErr }

type fakePing struct{ err error }

func (f *fakePing) Ping(context.Context) error { return f.err }

// testEnv bundles the server wired over fakes.
type testEnv struct {
	srv      *Server
	users    *fakeUsers
	sessions *fakeSessions
	accounts *fakeAccounts
	posts    *fakePosts
	mailer   *fakeMailer
	provider *fakeProvider
	media    *fakeMedia
	cache    *fakeCache
	dbPing   *fakePing
	tokens   *token.Service
	magic    *token.MagicLink
	vault    *security.Vault
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Config{
		Env:             "test",
		ServerURL:       "http://localhost:8080",
		FrontendOrigin:  "http://localhost:3000",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}

	logger := testLogger()
	users := newFakeUsers()
	sessions := newFakeSessions()
	accounts := newFakeAccounts()
	posts := newFakePosts()
	mailer := &fakeMailer{}
	provider := &fakeProvider{
		tokens:   google.Tokens{AccessToken: "ya29.access", RefreshToken: "1//refresh"},
		channel:  &google.Channel{ID: "UC123", Title: "Chan", Subscribers: 10},
		uploadID: "vid123",
	}
	media := &fakeMedia{objects: map[string]string{}}
	cacheFake := newFakeCache()
	dbPing := &fakePing{}

	vault, err := security.NewVault(make([]byte, 32))
	require.NoError(t, err)

	tokens := token.NewService("access-secret", "refresh-secret", cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	magic := token.NewMagicLink("magic-secret")
	authSvc := auth.NewService(logger, users, sessions, tokens, magic, mailer, cfg.ServerURL)
	linker := auth.NewLinker(logger, accounts, vault, provider, cfg.ServerURL)
	publisher := publish.NewService(logger, posts, users, accounts, linker, provider, media)

	srv := NewServer(logger, cfg, dbPing, cacheFake, tokens, authSvc, linker, publisher, media, users, accounts)

	return &testEnv{
		srv:      srv,
		users:    users,
		sessions: sessions,
		accounts: accounts,
		posts:    posts,
		mailer:   mailer,
		provider: provider,
		media:    media,
		cache:    cacheFake,
		dbPing:   dbPing,
		tokens:   tokens,
		magic:    magic,
		vault:    vault,
	}
}

// bearer mints a valid access token for the user and registers the identity.
func (e *testEnv) bearer(t *testing.T, email string) (string, string) {
	t.Helper()
	u, err := e.users.UpsertByEmail(context.Background(), email)
	require.NoError(t, err)
	pair, err := e.tokens.GeneratePair(u.ID)
	require.NoError(t, err)
	return u.ID, "Bearer " + pair.AccessToken
}
