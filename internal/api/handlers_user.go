package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"postbridge/internal/errs"
	"postbridge/internal/models"
	"postbridge/internal/publish"
)

const connectedAccountsTTL = 5 * time.Minute

func connectedAccountsKey(userID string) string {
	return "connected-accounts:" + userID
}

func (s *Server) connectedAccounts(c *gin.Context) {
	userID := s.userID(c)

	ctx, cancel := s.ctx(c)
	defer cancel()

	cacheKey := connectedAccountsKey(userID)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	acc, err := s.accounts.GetByUserProvider(ctx, userID, models.ProviderGoogle)
	accounts := []gin.H{}
	switch {
	case err == nil:
		accounts = append(accounts, gin.H{
			"provider":      string(acc.Provider),
			"displayName":   acc.DisplayName,
			"username":      acc.Username,
			"followerCount": acc.FollowerCount,
			"isActive":      acc.IsActive,
			"lastSync":      acc.LastSync,
			"platformData":  json.RawMessage(acc.PlatformData),
		})
	case errors.Is(err, errs.ErrNotFound):
		// no linkage yet; an empty list is the answer, not an error
	default:
		s.internalError(c, err)
		return
	}

	body := gin.H{"user": gin.H{"linkedAccounts": accounts}}
	if raw, err := json.Marshal(body); err == nil {
		if err := s.cache.Set(ctx, cacheKey, string(raw), connectedAccountsTTL); err != nil {
			s.log.Warn("cache_set_failed", "key", cacheKey, "error", err)
		}
	}

	c.JSON(http.StatusOK, body)
}

func (s *Server) publishYouTube(c *gin.Context) {
	var req publish.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "invalid_request",
			"message": "malformed request body",
		}})
		return
	}
	if req.Title == "" || req.MediaKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "invalid_request",
			"message": "title and mediaKey are required",
		}})
		return
	}

	// uploads stream the media body; the default request deadline is too tight
	ctx := c.Request.Context()

	post, err := s.publisher.PublishVideo(ctx, s.userID(c), req)
	if err != nil {
		switch {
		case errors.Is(err, publish.ErrNotLinked):
			c.JSON(http.StatusConflict, gin.H{"error": gin.H{
				"code":    "not_linked",
				"message": "no active YouTube account linked",
			}})
		default:
			s.internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"post": gin.H{
		"id":             post.ID,
		"status":         post.Status,
		"platformPostId": post.PlatformPostID,
		"platformUrl":    post.PlatformURL,
		"publishedAt":    post.PublishedAt,
	}})
}

// stageMedia streams the raw request body into the media bucket and hands
// back the key a later publish call will reference.
func (s *Server) stageMedia(c *gin.Context) {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "invalid_request",
			"message": "request body is required",
		}})
		return
	}

	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := fmt.Sprintf("uploads/%s/%s", s.userID(c), uuid.NewString())

	// large bodies stream straight through; the default deadline is too tight
	url, err := s.media.Store(c.Request.Context(), key, contentType, c.Request.Body)
	if err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"media": gin.H{
		"key": key,
		"url": url,
	}})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbOK := s.db.Ping(ctx) == nil
	cacheOK := s.cache.Ping(ctx) == nil

	status := http.StatusOK
	overall := "ok"
	if !dbOK {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	} else if !cacheOK {
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"db":     dbOK,
		"cache":  cacheOK,
		"time":   fmt.Sprintf("%d", time.Now().Unix()),
	})
}
