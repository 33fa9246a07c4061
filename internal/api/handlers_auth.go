package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"postbridge/internal/auth"
	"postbridge/internal/errs"
	"postbridge/internal/token"
)

// refreshCookie is the session cookie: httpOnly, strict, and scoped to the
// one path that reads it so the token never rides along on other requests.
const (
	refreshCookieName = "refreshToken"
	refreshCookiePath = "/auth/refresh"
)

func (s *Server) setRefreshCookie(c *gin.Context, value string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, value, int(s.cfg.RefreshTokenTTL.Seconds()),
		refreshCookiePath, "", s.cfg.IsProduction(), true)
}

func (s *Server) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", s.cfg.IsProduction(), true)
}

// internalError hides failure detail in production; the log keeps it.
func (s *Server) internalError(c *gin.Context, err error) {
	s.log.Error("request_failed", "path", c.Request.URL.Path, "error", err)
	msg := "internal error"
	if !s.cfg.IsProduction() {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"code":    "internal_error",
		"message": msg,
	}})
}

type magicLinkRequest struct {
	Email string `json:"email"`
}

func (s *Server) requestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil || !strings.Contains(req.Email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    "invalid_email",
			"message": "a valid email is required",
		}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.auth.RequestMagicLink(ctx, strings.TrimSpace(req.Email)); err != nil {
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Magic link sent! Please check your email."})
}

func (s *Server) magicLinkCallback(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    "invalid_token",
			"message": "missing token",
		}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess, err := s.auth.RedeemMagicLink(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) || errors.Is(err, token.ErrTokenInvalid) ||
			errors.Is(err, token.ErrMissingEmail) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "invalid_token",
				"message": "invalid or expired login link",
			}})
			return
		}
		s.internalError(c, err)
		return
	}

	s.setRefreshCookie(c, sess.RefreshToken)
	c.Redirect(http.StatusFound,
		fmt.Sprintf("%s/auth/magiclink/callback?token=%s", s.cfg.FrontendOrigin, sess.AccessToken))
}

func (s *Server) refreshSession(c *gin.Context) {
	raw, err := c.Cookie(refreshCookieName)
	if err != nil || raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    "unauthorized",
			"message": "refresh token not found",
		}})
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	sess, err := s.auth.Refresh(ctx, raw)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidOrRevoked) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "unauthorized",
				"message": "invalid or revoked refresh token",
			}})
			return
		}
		s.internalError(c, err)
		return
	}

	s.setRefreshCookie(c, sess.RefreshToken)
	c.JSON(http.StatusOK, gin.H{"accessToken": sess.AccessToken})
}

func (s *Server) logout(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.auth.Logout(ctx, s.userID(c)); err != nil {
		s.internalError(c, err)
		return
	}

	s.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully."})
}

func (s *Server) profile(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	user, err := s.users.GetByID(ctx, s.userID(c))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{
				"code":    "not_found",
				"message": "user not found",
			}})
			return
		}
		s.internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": gin.H{
		"id":                 user.ID,
		"email":              user.Email,
		"name":               user.Name,
		"avatarUrl":          user.AvatarURL,
		"connectedPlatforms": user.ConnectedPlatforms,
		"postsThisMonth":     user.PostsThisMonth,
		"createdAt":          user.CreatedAt,
	}})
}
