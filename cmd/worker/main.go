package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postbridge/internal/auth"
	"postbridge/internal/config"
	"postbridge/internal/db"
	"postbridge/internal/google"
	"postbridge/internal/logging"
	"postbridge/internal/security"
	"postbridge/internal/store/postgres"
	syncjob "postbridge/internal/sync"
)

// Worker entrypoint: runs only the daily analytics sync, for deployments that
// split it out of the API process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker", "service", "postbridge-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// connect to PostgreSQL (with retry; the worker often boots before the db)
	var dbConn *db.DB
	for i := 0; i < 5; i++ {
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err == nil {
			break
		}
		logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, cfg.DBDSN); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	vault, err := security.NewVault(cfg.EncryptionKey)
	if err != nil {
		logger.Error("vault_init_failed", "error", err)
		os.Exit(1)
	}

	accounts := postgres.NewLinkedAccounts(dbConn.Pool)
	analytics := postgres.NewAnalytics(dbConn.Pool)

	provider := google.NewClient(logger, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.ServerURL+"/connect/google/callback")
	linker := auth.NewLinker(logger, accounts, vault, provider, cfg.ServerURL)
	provider.SetRefreshListener(linker)

	runAt, _ := config.ParseRunAt(cfg.SyncRunAt)
	job := syncjob.NewJob(logger, accounts, analytics, linker, provider, runAt, !cfg.IsProduction())
	go job.Start()

	logger.Info("worker_started", "sync_run_at", cfg.SyncRunAt)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	job.Stop()
	logger.Info("analytics_sync_stopped")

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("worker_stopped")
}
