package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Visitor is a site-scoped client identified by an opaque token.
type Visitor struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	SiteID           snowflake.ID `gorm:"not null;uniqueIndex:ux_visitors_site_token" json:"site_id"`
	Token            string       `gorm:"not null;uniqueIndex:ux_visitors_site_token" json:"-"`
	CookieConsent    bool         `gorm:"not null;default:false" json:"cookie_consent"`
	AnalyticsConsent bool         `gorm:"not null;default:false" json:"analytics_consent"`
	ConsentDate      *time.Time   `json:"consent_date,omitempty"`
	VisitCount       int64        `gorm:"not null;default:1" json:"visit_count"`
	FirstVisit       time.Time    `gorm:"not null" json:"first_visit"`
	LastVisit        time.Time    `gorm:"not null" json:"last_visit"`
}

func (Visitor) TableName() string { return "visitors" }

// Visit is one recorded page hit. Rows are append-only.
type Visit struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	SiteID          snowflake.ID `gorm:"not null;index" json:"site_id"`
	VisitorID       snowflake.ID `gorm:"not null;index" json:"visitor_id"`
	IPHash          string       `gorm:"column:ip_hash" json:"ip_hash,omitempty"`
	UserAgent       string       `json:"user_agent,omitempty"`
	Referrer        string       `json:"referrer,omitempty"`
	Page            string       `json:"page,omitempty"`
	Country         string       `json:"country,omitempty"`
	Region          string       `json:"region,omitempty"`
	City            string       `json:"city,omitempty"`
	Browser         string       `json:"browser,omitempty"`
	OS              string       `gorm:"column:os" json:"os,omitempty"`
	DeviceType      string       `gorm:"not null" json:"device_type"`
	Language        string       `json:"language,omitempty"`
	HasConsent      bool         `gorm:"not null;default:false" json:"has_consent"`
	SessionDuration *int         `json:"session_duration,omitempty"`
	PagesViewed     int          `gorm:"not null;default:1" json:"pages_viewed"`
	CreatedAt       time.Time    `gorm:"not null;index" json:"created_at"`
}

func (Visit) TableName() string { return "visits" }

type SiteCounts struct {
	TotalVisits  int64
	UniqueVisits int64
}

// Bucket is one grouped count from the visits table.
type Bucket struct {
	Key   string `gorm:"column:bucket_key"`
	Count int64  `gorm:"column:bucket_count"`
}
