package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"postbridge/internal/auth"
	"postbridge/internal/google"
)

func (s *Server) initiateLink(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"authUrl": s.linker.Initiate(s.userID(c))})
}

// forwardToProvider is the hop the popup lands on first. The state parameter
// is the only credential here; a missing or unreadable one ends the flow.
func (s *Server) forwardToProvider(c *gin.Context) {
	authorizeURL, err := s.linker.AuthorizeURL(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{
			"code":    "invalid_state",
			"message": "authentication required",
		}})
		return
	}
	c.Redirect(http.StatusFound, authorizeURL)
}

// linkCallback finishes the provider round trip inside the popup and reports
// the outcome to the opener via postMessage.
func (s *Server) linkCallback(c *gin.Context) {
	if provErr := c.Query("error"); provErr != "" {
		s.log.Warn("oauth_denied", "error", provErr)
		s.popupResult(c, false, "authorization was denied")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		s.popupResult(c, false, "missing authorization code")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	acc, err := s.linker.HandleCallback(ctx, code, state)
	if err != nil {
		s.log.Error("link_callback_failed", "error", err)
		switch {
		case errors.Is(err, auth.ErrMissingState), errors.Is(err, auth.ErrMissingUser):
			s.popupResult(c, false, "invalid authentication state")
		case errors.Is(err, google.ErrNoChannel):
			s.popupResult(c, false, "this Google account has no YouTube channel")
		default:
			s.popupResult(c, false, "failed to link account")
		}
		return
	}

	// a fresh linkage invalidates whatever the dashboard cached
	if err := s.cache.Delete(ctx, connectedAccountsKey(acc.UserID)); err != nil {
		s.log.Warn("cache_invalidate_failed", "user_id", acc.UserID, "error", err)
	}

	s.popupResult(c, true, "")
}

// popupResult renders the tiny page the OAuth popup ends on. With an opener
// it posts the result and closes; opened as a top-level page it falls back to
// a dashboard redirect.
func (s *Server) popupResult(c *gin.Context, ok bool, message string) {
	var script string
	if ok {
		script = fmt.Sprintf(`<script>
  if (window.opener) {
    window.opener.postMessage({ type: 'OAUTH_SUCCESS', payload: { provider: 'google' } }, '*');
    window.close();
  } else {
    window.location.href = %q;
  }
</script>`, s.cfg.FrontendOrigin+"/dashboard/connections?linked=google")
	} else {
		script = fmt.Sprintf(`<script>
  if (window.opener) {
    window.opener.postMessage({ type: 'OAUTH_ERROR', payload: { provider: 'google', message: %q } }, '*');
    window.close();
  } else {
    window.location.href = %q;
  }
</script>`, message, s.cfg.FrontendOrigin+"/dashboard/connections?error=google")
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(script))
}
