package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tally/internal/report"
	trackingdomain "github.com/smallbiznis/tally/internal/tracking/domain"
)

func (s *Server) Stats(c *gin.Context) {
	req, err := statsRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.tracking.ReadStats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) StatsReport(c *gin.Context) {
	req, err := statsRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	stats, err := s.tracking.ReadStats(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reports.GenerateStats(ctx, report.StatsReport{
		SiteID:      req.SiteID,
		GeneratedAt: s.clock.Now(),
		Stats:       stats,
	})
	if err != nil {
		AbortWithError(c, fmt.Errorf("generate stats report: %w", err))
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, fmt.Errorf("read stats report: %w", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="tally-%s-stats.pdf"`, req.SiteID))
	c.Data(http.StatusOK, "application/pdf", body)
}

func statsRequest(c *gin.Context) (trackingdomain.StatsRequest, error) {
	req := trackingdomain.StatsRequest{SiteID: c.Param("siteId")}
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days == 0 {
			return req, trackingdomain.ErrInvalidWindow
		}
		req.Days = days
	}
	return req, nil
}
