package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/tally/internal/badge"
)

type RegisterRequest struct {
	Customizable bool
}

type Endpoints struct {
	Badge     string `json:"badge"`
	Count     string `json:"count"`
	Increment string `json:"increment"`
	Stats     string `json:"stats"`
}

// Registration is returned once, when a site is created.
type Registration struct {
	SiteID       string    `json:"siteId"`
	Customizable bool      `json:"customizable"`
	Script       string    `json:"script"`
	Endpoints    Endpoints `json:"endpoints"`
}

// UpdateConfigRequest carries a partial badge update. Nil fields are left
// untouched; a non-nil empty Logo clears the logo.
type UpdateConfigRequest struct {
	SiteID string
	Style  *string
	Color  *string
	Label  *string
	Logo   *string
	Domain *string
}

type SiteConfig struct {
	BadgeStyle string  `json:"badgeStyle"`
	BadgeColor string  `json:"badgeColor"`
	BadgeLabel string  `json:"badgeLabel"`
	BadgeLogo  *string `json:"badgeLogo"`
	Domain     *string `json:"domain"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (Registration, error)
	GetByID(ctx context.Context, id string) (Site, error)
	// ReadCounts never reports a missing site; it reads as zero.
	ReadCounts(ctx context.Context, id string) (Counts, error)
	UpdateConfig(ctx context.Context, req UpdateConfigRequest) (SiteConfig, error)
	// BadgeConfig falls back to deployment defaults for unknown sites.
	BadgeConfig(ctx context.Context, id string) (badge.Config, error)
	Stats(ctx context.Context) (SiteStats, error)
}

var (
	ErrInvalidID    = errors.New("invalid_id")
	ErrNotFound     = errors.New("not_found")
	ErrInvalidStyle = errors.New("invalid_style")
	ErrInvalidColor = errors.New("invalid_color")
	ErrInvalidLabel = errors.New("invalid_label")
)
