package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tally/internal/badge"
	trackingdomain "github.com/smallbiznis/tally/internal/tracking/domain"
)

const (
	formatJSON      = "json"
	formatText      = "text"
	formatFormatted = "formatted"
)

type trackRequest struct {
	Page     string `json:"page"`
	Referrer string `json:"referrer"`
}

func (s *Server) Track(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	presented := visitorToken(c)
	res, err := s.tracking.Track(c.Request.Context(), trackingdomain.TrackRequest{
		SiteID:   c.Param("siteId"),
		Token:    presented,
		Page:     strings.TrimSpace(req.Page),
		Referrer: strings.TrimSpace(req.Referrer),
		Meta:     requestMeta(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.VisitorToken != presented {
		s.setVisitorCookie(c, res.VisitorToken)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"visitorId":    res.VisitorToken,
		"isNewVisitor": res.IsNewVisitor,
		"needsConsent": res.NeedsConsent,
	})
}

type consentRequest struct {
	VisitorID        string `json:"visitorId"`
	CookieConsent    bool   `json:"cookieConsent"`
	AnalyticsConsent bool   `json:"analyticsConsent"`
}

func (s *Server) UpdateConsent(c *gin.Context) {
	var req consentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	token := strings.TrimSpace(req.VisitorID)
	if token == "" {
		token = visitorToken(c)
	}

	err := s.tracking.UpdateConsent(c.Request.Context(), trackingdomain.ConsentRequest{
		SiteID:           c.Param("siteId"),
		Token:            token,
		CookieConsent:    req.CookieConsent,
		AnalyticsConsent: req.AnalyticsConsent,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "consent updated"})
}

// Count reads the counters without recording a visit. Unknown sites read
// as zero.
func (s *Server) Count(c *gin.Context) {
	counts, err := s.sites.ReadCounts(c.Request.Context(), c.Param("siteId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if writeCountFormat(c, counts.TotalVisits) {
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Increment records a visit and returns the updated counters in one round
// trip. Query page/referrer fall back to the Referer header.
func (s *Server) Increment(c *gin.Context) {
	referer := strings.TrimSpace(c.GetHeader("Referer"))
	page := firstNonEmpty(c.Query("page"), referer)
	referrer := firstNonEmpty(c.Query("referrer"), referer)

	presented := visitorToken(c)
	res, err := s.tracking.IncrementAndRead(c.Request.Context(), trackingdomain.TrackRequest{
		SiteID:   c.Param("siteId"),
		Token:    presented,
		Page:     page,
		Referrer: referrer,
		Meta:     requestMeta(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.VisitorToken != presented {
		s.setVisitorCookie(c, res.VisitorToken)
	}

	if writeCountFormat(c, res.TotalVisits) {
		return
	}
	c.JSON(http.StatusOK, res)
}

// writeCountFormat answers text and formatted requests. It reports false
// for json, which the caller renders itself.
func writeCountFormat(c *gin.Context, total int64) bool {
	switch strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", formatJSON))) {
	case formatText:
		c.String(http.StatusOK, strconv.FormatInt(total, 10))
		return true
	case formatFormatted:
		c.String(http.StatusOK, badge.FormatCount(total))
		return true
	default:
		return false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
