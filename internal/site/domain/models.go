package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Site struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Domain       *string      `json:"domain,omitempty"`
	TotalVisits  int64        `gorm:"not null;default:0" json:"total_visits"`
	UniqueVisits int64        `gorm:"not null;default:0" json:"unique_visits"`
	BadgeStyle   string       `gorm:"not null" json:"badge_style"`
	BadgeColor   string       `gorm:"not null" json:"badge_color"`
	BadgeLabel   string       `gorm:"not null" json:"badge_label"`
	BadgeLogo    *string      `json:"badge_logo,omitempty"`
	Customizable bool         `gorm:"not null;default:false" json:"customizable"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Site) TableName() string { return "sites" }

// Counts is the pair of counters shown on badges.
type Counts struct {
	TotalVisits  int64 `json:"totalVisits"`
	UniqueVisits int64 `json:"uniqueVisits"`
}

// SiteStats are fleet-wide totals used by the metrics pusher.
type SiteStats struct {
	Sites    int64
	Visitors int64
	Visits   int64
}
