// Package api is the HTTP boundary: routing, auth middleware, cookie
// handling and error mapping. No business rules live here.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"postbridge/internal/auth"
	"postbridge/internal/config"
	"postbridge/internal/publish"
	"postbridge/internal/storage"
	"postbridge/internal/store"
	"postbridge/internal/token"
)

// Cache is the response-cache surface the handlers need. Implemented by
// cache.Client; tests use in-memory doubles.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Pinger reports backend connectivity for the health endpoint. Implemented by
// db.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	log       *slog.Logger
	cfg       config.Config
	db        Pinger
	cache     Cache
	router    *gin.Engine
	tokens    *token.Service
	auth      *auth.Service
	linker    *auth.Linker
	publisher *publish.Service
	media     storage.MediaStore
	users     store.Users
	accounts  store.LinkedAccounts
}

func NewServer(log *slog.Logger, cfg config.Config, dbConn Pinger, cacheClient Cache,
	tokens *token.Service, authSvc *auth.Service, linker *auth.Linker, publisher *publish.Service,
	media storage.MediaStore, users store.Users, accounts store.LinkedAccounts) *Server {
	s := &Server{
		log:       log,
		cfg:       cfg,
		db:        dbConn,
		cache:     cacheClient,
		router:    gin.New(),
		tokens:    tokens,
		auth:      authSvc,
		linker:    linker,
		publisher: publisher,
		media:     media,
		users:     users,
		accounts:  accounts,
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/magiclink", s.requestMagicLink)
		authGroup.GET("/magiclink/callback", s.magicLinkCallback)
		authGroup.POST("/refresh", s.refreshSession)
		authGroup.POST("/logout", s.authMiddleware(), s.logout)
		authGroup.GET("/profile", s.authMiddleware(), s.profile)
	}

	connect := r.Group("/connect")
	{
		connect.POST("/google/initiate", s.authMiddleware(), s.initiateLink)
		// the two provider-facing hops authenticate via the state parameter,
		// not a bearer token: the browser arrives here without headers
		connect.GET("/google", s.forwardToProvider)
		connect.GET("/google/callback", s.linkCallback)
	}

	user := r.Group("/user", s.authMiddleware())
	{
		user.GET("/connected-accounts", s.connectedAccounts)
	}

	posts := r.Group("/posts", s.authMiddleware())
	{
		posts.POST("/youtube", s.publishYouTube)
		posts.POST("/youtube/media", s.stageMedia)
	}

	r.GET("/health", s.health)
	r.GET("/", func(c *gin.Context) { c.JSON(200, gin.H{"service": "postbridge", "ok": true}) })

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
