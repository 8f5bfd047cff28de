package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/smallbiznis/tally/internal/enrich"
)

// corsHandler reflects any Origin and allows credentials so the widget can
// send the visitor cookie from third-party pages.
var corsHandler = cors.Handler(cors.Options{
	AllowOriginFunc:  func(*http.Request, string) bool { return true },
	AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
	AllowedHeaders:   []string{"Content-Type", "X-Request-Id"},
	AllowCredentials: true,
	MaxAge:           600,
})

// CORS runs the net/http cors handler inside the gin chain. Preflight
// requests are answered by the handler and never reach a route.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		corsHandler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

func NoCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		setNoCache(c)
		c.Next()
	}
}

func setNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func requestMeta(c *gin.Context) enrich.Meta {
	return enrich.Meta{
		RemoteAddr:     c.Request.RemoteAddr,
		ForwardedFor:   c.GetHeader("X-Forwarded-For"),
		RealIP:         c.GetHeader("X-Real-IP"),
		UserAgent:      c.Request.UserAgent(),
		AcceptLanguage: c.GetHeader("Accept-Language"),
	}
}
