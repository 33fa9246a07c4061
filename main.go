package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postbridge/internal/api"
	"postbridge/internal/auth"
	"postbridge/internal/cache"
	"postbridge/internal/config"
	"postbridge/internal/db"
	"postbridge/internal/google"
	"postbridge/internal/logging"
	"postbridge/internal/mail"
	"postbridge/internal/publish"
	"postbridge/internal/security"
	"postbridge/internal/storage"
	"postbridge/internal/store/postgres"
	syncjob "postbridge/internal/sync"
	"postbridge/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_service", "service", "postbridge", "http_addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbConn, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("db_connect_failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, cfg.DBDSN); err != nil {
		logger.Error("db_migrate_failed", "error", err)
		os.Exit(1)
	}

	cacheClient, err := cache.New(cfg.RedisDSN)
	if err != nil {
		logger.Error("redis_connect_failed", "error", err)
		os.Exit(1)
	}
	defer cacheClient.Close()

	vault, err := security.NewVault(cfg.EncryptionKey)
	if err != nil {
		logger.Error("vault_init_failed", "error", err)
		os.Exit(1)
	}

	// stores
	users := postgres.NewUsers(dbConn.Pool)
	sessions := postgres.NewRefreshTokens(dbConn.Pool)
	accounts := postgres.NewLinkedAccounts(dbConn.Pool)
	analytics := postgres.NewAnalytics(dbConn.Pool)
	posts := postgres.NewPosts(dbConn.Pool)

	// services
	tokens := token.NewService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	magicLink := token.NewMagicLink(cfg.MagicLinkSecret)
	mailer := mail.NewClient(logger, cfg.ResendAPIKey, cfg.MailFrom)
	authSvc := auth.NewService(logger, users, sessions, tokens, magicLink, mailer, cfg.ServerURL)

	provider := google.NewClient(logger, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.ServerURL+"/connect/google/callback")
	linker := auth.NewLinker(logger, accounts, vault, provider, cfg.ServerURL)
	provider.SetRefreshListener(linker)

	media, err := storage.New(storage.Config{
		Endpoint:  cfg.MediaEndpoint,
		Bucket:    cfg.MediaBucket,
		PublicURL: cfg.MediaPublicURL,
		Region:    cfg.MediaRegion,
	})
	if err != nil {
		logger.Error("storage_init_failed", "error", err)
		os.Exit(1)
	}

	publisher := publish.NewService(logger, posts, users, accounts, linker, provider, media)

	// daily analytics sync; fires immediately outside production
	runAt, _ := config.ParseRunAt(cfg.SyncRunAt)
	job := syncjob.NewJob(logger, accounts, analytics, linker, provider, runAt, !cfg.IsProduction())
	go job.Start()

	srv := api.NewServer(logger, cfg, dbConn, cacheClient, tokens, authSvc, linker, publisher, media, users, accounts)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_server_ready", "addr", cfg.HTTPAddr)

	// graceful shutdown
	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	job.Stop()
	logger.Info("analytics_sync_stopped")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	if err := cacheClient.Close(); err != nil {
		logger.Warn("redis_close_error", "error", err)
	} else {
		logger.Info("redis_closed")
	}

	dbConn.Close()
	logger.Info("db_closed")

	logger.Info("service_stopped")
}
