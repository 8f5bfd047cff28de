package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tally/internal/badge"
	sitedomain "github.com/smallbiznis/tally/internal/site/domain"
)

// flexBool accepts true/false as JSON booleans or strings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = flexBool(strings.EqualFold(strings.TrimSpace(s), "true"))
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

type registerRequest struct {
	User         string   `json:"user"`
	Password     string   `json:"password"`
	Customizable flexBool `json:"customizable"`
}

type registerResponse struct {
	Success bool `json:"success"`
	sitedomain.Registration
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := s.admin.Check(req.User, req.Password); err != nil {
		AbortWithError(c, err)
		return
	}

	reg, err := s.sites.Register(c.Request.Context(), sitedomain.RegisterRequest{
		Customizable: bool(req.Customizable),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, registerResponse{Success: true, Registration: reg})
}

// Badge renders the site's counter. Unknown sites render a zero count with
// the deployment defaults so embedded images never break.
func (s *Server) Badge(c *gin.Context) {
	ctx := c.Request.Context()
	siteID := c.Param("siteId")

	cfg, err := s.sites.BadgeConfig(ctx, siteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	counts, err := s.sites.ReadCounts(ctx, siteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	cfg = cfg.Merge(badge.Config{
		Style: badge.Style(c.Query("style")),
		Color: c.Query("color"),
		Label: c.Query("label"),
		Logo:  c.Query("logo"),
	})
	svg := s.badges.Renderer().Render(counts.TotalVisits, cfg)

	style, _ := badge.ParseStyle(string(cfg.Style))
	s.metrics.RecordBadge(ctx, string(style))

	setNoCache(c)
	c.Data(http.StatusOK, "image/svg+xml; charset=utf-8", svg)
}

type updateConfigRequest struct {
	BadgeStyle *string `json:"badgeStyle"`
	BadgeColor *string `json:"badgeColor"`
	BadgeLabel *string `json:"badgeLabel"`
	BadgeLogo  *string `json:"badgeLogo"`
	Domain     *string `json:"domain"`
}

func (s *Server) UpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.sites.UpdateConfig(c.Request.Context(), sitedomain.UpdateConfigRequest{
		SiteID: c.Param("siteId"),
		Style:  nonEmpty(req.BadgeStyle),
		Color:  nonEmpty(req.BadgeColor),
		Label:  nonEmpty(req.BadgeLabel),
		Logo:   req.BadgeLogo,
		Domain: nonEmpty(req.Domain),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "config": cfg})
}

// nonEmpty treats blank strings as absent; only the logo can be cleared.
func nonEmpty(value *string) *string {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil
	}
	return value
}
