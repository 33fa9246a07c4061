package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"postbridge/internal/token"
)

// ctxUserID is the gin context key the auth middleware stores the verified
// subject under.
const ctxUserID = "user_id"

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// credentials mode forbids a wildcard; only the configured frontend
		// may send the refresh cookie cross-origin
		if origin != "" && origin == s.cfg.FrontendOrigin {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		s.log.Info("http_request",
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", clientIP,
		)
	}
}

// authMiddleware requires a valid bearer access token and stashes the user id
// for the handler.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "unauthorized",
				"message": "no token provided",
			}})
			c.Abort()
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		userID, err := s.tokens.VerifyAccess(raw)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, token.ErrTokenExpired) {
				code = "token_expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    code,
				"message": "invalid or expired token",
			}})
			c.Abort()
			return
		}

		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (s *Server) userID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
