package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Dimension names a groupable visits column.
type Dimension string

const (
	DimensionDevice   Dimension = "device_type"
	DimensionBrowser  Dimension = "browser"
	DimensionCountry  Dimension = "country"
	DimensionReferrer Dimension = "referrer"
)

type Repository interface {
	FindVisitor(ctx context.Context, db *gorm.DB, siteID snowflake.ID, token string) (*Visitor, error)
	InsertVisitor(ctx context.Context, db *gorm.DB, visitor *Visitor) error
	TouchVisitor(ctx context.Context, db *gorm.DB, visitorID snowflake.ID, at time.Time) error
	UpdateConsent(ctx context.Context, db *gorm.DB, siteID snowflake.ID, token string, cookieConsent, analyticsConsent bool, at time.Time) (int64, error)
	InsertVisit(ctx context.Context, db *gorm.DB, visit *Visit) error

	// IncrementSiteCounters bumps total_visits by one and unique_visits by
	// unique in a single statement. It returns the affected row count.
	IncrementSiteCounters(ctx context.Context, db *gorm.DB, siteID snowflake.ID, unique int, at time.Time) (int64, error)
	FindSiteCounts(ctx context.Context, db *gorm.DB, siteID snowflake.ID) (*SiteCounts, error)

	CountVisitsSince(ctx context.Context, db *gorm.DB, siteID snowflake.ID, since time.Time) (int64, error)
	GroupVisitsSince(ctx context.Context, db *gorm.DB, siteID snowflake.ID, since time.Time, dim Dimension) ([]Bucket, error)
}
