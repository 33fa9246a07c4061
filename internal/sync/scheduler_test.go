package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"postbridge/internal/auth"
	"postbridge/internal/errs"
	"postbridge/internal/google"
	"postbridge/internal/models"
	"postbridge/internal/security"
	"postbridge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAccounts struct {
	mu     sync.Mutex
	rows   map[string]*models.LinkedAccount
	synced []string
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
	for _, id := range []string{"acc-1", "acc-2", "acc-3"} {
		if acc, ok := f.rows[id]; ok && acc.IsActive {
			out = append(out, *acc)
		}
	}
	return out, nil
}

func (f *fakeAccounts) Link(_ context.Context, acc *models.LinkedAccount, _, _ string) (store.LinkResult, error) {
	return store.LinkResult{Account: acc}, nil
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
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	acc.DisplayName = displayName
	acc.Username = username
	acc.FollowerCount = followerCount
	return nil
}

func (f *fakeAccounts) TouchSync(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.rows[id]
	if !ok {
		return errs.ErrNotFound
	}
	acc.LastSync = &at
	f.synced = append(f.synced, id)
	return nil
}

type fakeAnalytics struct {
	mu   sync.Mutex
	rows []models.Analytics
}

func (f *fakeAnalytics) Upsert(_ context.Context, a *models.Analytics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *a)
	return nil
}

func (f *fakeAnalytics) byAccount(id string) []models.Analytics {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Analytics
	for _, r := range f.rows {
		if r.LinkedAccountID == id {
			out = append(out, r)
		}
	}
	return out
}

// fakeProvider fails metric fetches for the account ids in failMetrics.
type fakeProvider struct {
	failMetrics map[string]bool
	channel     google.Channel
	days        int
}

func (f *fakeProvider) AuthCodeURL(state string) string { return "https://provider.example/" + state }

func (f *fakeProvider) ExchangeCode(_ context.Context, _ string) (google.Tokens, error) {
	return google.Tokens{}, nil
}

func (f *fakeProvider) FetchChannel(_ context.Context, _ string, _ google.Tokens) (*google.Channel, error) {
	ch := f.channel
	return &ch, nil
}

func (f *fakeProvider) FetchUserInfo(_ context.Context, _ string, _ google.Tokens) (*google.UserInfo, error) {
	return &google.UserInfo{}, nil
}

func (f *fakeProvider) FetchDailyMetrics(_ context.Context, accountID string, _ google.Tokens, start, end time.Time) ([]google.DayMetrics, error) {
	if f.failMetrics[accountID] {
		return nil, errors.New("quota exceeded")
	}
	var out []google.DayMetrics
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, google.DayMetrics{Date: d, Views: 10, Likes: 2, Comments: 1, Shares: 0, EngagementRate: 0.3})
	}
	return out, nil
}

func (f *fakeProvider) UploadVideo(_ context.Context, _ string, _ google.Tokens, _ google.VideoMeta, _ io.Reader, _ io.Reader) (string, error) {
	return "", errors.New("not implemented")
}

func newTestJob(t *testing.T, provider google.Provider) (*Job, *fakeAccounts, *fakeAnalytics) {
	t.Helper()

	vault, err := security.NewVault(make([]byte, 32))
	require.NoError(t, err)

	accounts := &fakeAccounts{rows: map[string]*models.LinkedAccount{}}
	for _, id := range []string{"acc-1", "acc-2", "acc-3"} {
		enc, err := vault.Encrypt("token-" + id)
		require.NoError(t, err)
		accounts.rows[id] = &models.LinkedAccount{
			ID:          id,
			UserID:      "user-" + id,
			Provider:    models.ProviderGoogle,
			AccessToken: enc,
			IsActive:    true,
		}
	}

	analytics := &fakeAnalytics{}
	linker := auth.NewLinker(testLogger(), accounts, vault, provider, "http://localhost:8080")
	job := NewJob(testLogger(), accounts, analytics, linker, provider, 2*time.Hour, false)
	return job, accounts, analytics
}

func TestRun_SyncsEveryActiveAccount(t *testing.T) {
	provider := &fakeProvider{channel: google.Channel{ID: "UC1", Subscribers: 500}}
	job, accounts, analytics := newTestJob(t, provider)

	job.Run(context.Background())

	for _, id := range []string{"acc-1", "acc-2", "acc-3"} {
		rows := analytics.byAccount(id)
		require.Len(t, rows, metricsWindowDays, "account %s", id)
		require.Equal(t, "daily", rows[0].Period)
		require.Equal(t, int64(500), rows[0].Followers)
		require.NotNil(t, accounts.rows[id].LastSync)
	}
}

func TestRun_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	provider := &fakeProvider{
		failMetrics: map[string]bool{"acc-2": true},
		channel:     google.Channel{ID: "UC1", Subscribers: 500},
	}
	job, accounts, analytics := newTestJob(t, provider)

	job.Run(context.Background())

	require.Len(t, analytics.byAccount("acc-1"), metricsWindowDays)
	require.Empty(t, analytics.byAccount("acc-2"))
	require.Len(t, analytics.byAccount("acc-3"), metricsWindowDays)

	require.ElementsMatch(t, []string{"acc-1", "acc-3"}, accounts.synced)
	require.Nil(t, accounts.rows["acc-2"].LastSync)
}

func TestRun_SkipsInactiveAccounts(t *testing.T) {
	provider := &fakeProvider{channel: google.Channel{ID: "UC1"}}
	job, accounts, analytics := newTestJob(t, provider)
	accounts.rows["acc-2"].IsActive = false

	job.Run(context.Background())

	require.Empty(t, analytics.byAccount("acc-2"))
	require.Len(t, analytics.byAccount("acc-1"), metricsWindowDays)
}

func TestRun_WindowEndsYesterday(t *testing.T) {
	provider := &fakeProvider{channel: google.Channel{ID: "UC1"}}
	job, _, analytics := newTestJob(t, provider)

	fixed := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	job.nowFn = func() time.Time { return fixed }

	job.Run(context.Background())

	rows := analytics.byAccount("acc-1")
	require.Len(t, rows, metricsWindowDays)
	require.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), rows[len(rows)-1].Date)
	require.Equal(t, time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), rows[0].Date)
}

func TestUntilNextRun(t *testing.T) {
	provider := &fakeProvider{}
	job, _, _ := newTestJob(t, provider)

	// before today's fire time: wait until 02:00 today
	job.nowFn = func() time.Time { return time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC) }
	require.Equal(t, time.Hour, job.untilNextRun())

	// after today's fire time: wait until 02:00 tomorrow
	job.nowFn = func() time.Time { return time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC) }
	require.Equal(t, 23*time.Hour, job.untilNextRun())

	// exactly at the fire time: schedule the next day, never a zero wait
	job.nowFn = func() time.Time { return time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC) }
	require.Equal(t, 24*time.Hour, job.untilNextRun())
}
