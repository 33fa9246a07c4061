// Package sync runs the scheduled analytics synchronization for linked
// accounts.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"postbridge/internal/auth"
	"postbridge/internal/google"
	"postbridge/internal/models"
	"postbridge/internal/store"
)

// metricsWindowDays is the rolling report width; the window always ends
// yesterday because the provider reports today as incomplete.
const metricsWindowDays = 30

type Job struct {
	accounts  store.LinkedAccounts
	analytics store.Analytics
	linker    *auth.Linker
	provider  google.Provider
	logger    *slog.Logger

	runAt      time.Duration // offset from UTC midnight
	runOnStart bool
	stopChan   chan struct{}
	nowFn      func() time.Time
}

func NewJob(logger *slog.Logger, accounts store.LinkedAccounts, analytics store.Analytics,
	linker *auth.Linker, provider google.Provider, runAt time.Duration, runOnStart bool) *Job {
	return &Job{
		accounts:   accounts,
		analytics:  analytics,
		linker:     linker,
		provider:   provider,
		logger:     logger,
		runAt:      runAt,
		runOnStart: runOnStart,
		stopChan:   make(chan struct{}, 1),
		nowFn:      time.Now,
	}
}

// Start blocks until Stop, firing the sync daily at the configured UTC time.
// Outside production it also fires once immediately.
func (j *Job) Start() {
	j.logger.Info("analytics_sync_job_started", "run_at_utc", j.runAt.String(), "run_on_start", j.runOnStart)

	if j.runOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		j.Run(ctx)
		cancel()
	}

	for {
		wait := j.untilNextRun()
		j.logger.Info("analytics_sync_scheduled", "next_run_in", wait.String())

		select {
		case <-time.After(wait):
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			j.Run(ctx)
			cancel()
		case <-j.stopChan:
			j.logger.Info("analytics_sync_job_stopped")
			return
		}
	}
}

func (j *Job) Stop() {
	select {
	case j.stopChan <- struct{}{}:
	default:
	}
}

// untilNextRun computes the wait until the next daily UTC fire time.
func (j *Job) untilNextRun() time.Duration {
	now := j.nowFn().UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(j.runAt)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// Run walks every active linked account sequentially. One account's failure
// never aborts the batch; start and end markers always log.
func (j *Job) Run(ctx context.Context) {
	j.logger.Info("analytics_sync_run_started")
	defer j.logger.Info("analytics_sync_run_finished")

	accounts, err := j.accounts.ListActive(ctx)
	if err != nil {
		j.logger.Error("analytics_sync_list_failed", "error", err)
		return
	}

	j.logger.Info("analytics_sync_accounts", "total", len(accounts))

	for i := range accounts {
		acc := &accounts[i]
		if err := j.syncAccount(ctx, acc); err != nil {
			j.logger.Error("account_sync_failed",
				"account_id", acc.ID,
				"provider", string(acc.Provider),
				"error", err,
			)
			continue
		}
		j.logger.Info("account_synced", "account_id", acc.ID, "provider", string(acc.Provider))
	}
}

func (j *Job) syncAccount(ctx context.Context, acc *models.LinkedAccount) (err error) {
	// a panic in one provider routine must not take down the batch
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
	}()

	switch acc.Provider {
	case models.ProviderGoogle:
		return j.syncGoogle(ctx, acc)
	default:
		j.logger.Info("sync_skipped_unsupported_provider", "account_id", acc.ID, "provider", string(acc.Provider))
		return nil
	}
}

func (j *Job) syncGoogle(ctx context.Context, acc *models.LinkedAccount) error {
	tokens, err := j.linker.DecryptTokens(acc)
	if err != nil {
		return err
	}

	// rolling window ending yesterday
	today := j.nowFn().UTC().Truncate(24 * time.Hour)
	end := today.AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(metricsWindowDays - 1))

	metrics, err := j.provider.FetchDailyMetrics(ctx, acc.ID, tokens, start, end)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}

	// best-effort follower refresh; its failure is logged, not escalated
	followers := acc.FollowerCount
	if channel, err := j.provider.FetchChannel(ctx, acc.ID, tokens); err != nil {
		j.logger.Warn("follower_refresh_failed", "account_id", acc.ID, "error", err)
	} else {
		followers = channel.Subscribers
		if err := j.accounts.UpdateProfile(ctx, acc.ID, channel.Title, channel.CustomURL, channel.Subscribers, channel.RawStats); err != nil {
			j.logger.Warn("profile_refresh_failed", "account_id", acc.ID, "error", err)
		}
	}

	for _, day := range metrics {
		row := &models.Analytics{
			UserID:          acc.UserID,
			LinkedAccountID: acc.ID,
			Date:            day.Date,
			Period:          "daily",
			Views:           day.Views,
			Likes:           day.Likes,
			Comments:        day.Comments,
			Shares:          day.Shares,
			Followers:       followers,
			EngagementRate:  day.EngagementRate,
		}
		if err := j.analytics.Upsert(ctx, row); err != nil {
			return fmt.Errorf("upsert analytics for %s: %w", day.Date.Format("2006-01-02"), err)
		}
	}

	return j.accounts.TouchSync(ctx, acc.ID, j.nowFn().UTC())
}
