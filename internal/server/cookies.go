package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	visitorCookieName   = "visitor_id"
	visitorCookieMaxAge = 365 * 24 * 60 * 60
)

func visitorToken(c *gin.Context) string {
	token, err := c.Cookie(visitorCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(token)
}

// setVisitorCookie stores the token for a year. SameSite=None lets the
// widget send it back from the embedding page.
func (s *Server) setVisitorCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(visitorCookieName, token, visitorCookieMaxAge, "/", "", s.cfg.CookieSecure, true)
}
