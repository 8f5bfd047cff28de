package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/tracking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindVisitor(ctx context.Context, db *gorm.DB, siteID snowflake.ID, token string) (*domain.Visitor, error) {
	var visitor domain.Visitor
	err := db.WithContext(ctx).Raw(
		`SELECT id, site_id, token, cookie_consent, analytics_consent, consent_date, visit_count, first_visit, last_visit
		 FROM visitors WHERE site_id = ? AND token = ?`,
		siteID,
		token,
	).Scan(&visitor).Error
	if err != nil {
		return nil, err
	}
	if visitor.ID == 0 {
		return nil, nil
	}
	return &visitor, nil
}

func (r *repo) InsertVisitor(ctx context.Context, db *gorm.DB, visitor *domain.Visitor) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO visitors (id, site_id, token, cookie_consent, analytics_consent, consent_date, visit_count, first_visit, last_visit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		visitor.ID,
		visitor.SiteID,
		visitor.Token,
		visitor.CookieConsent,
		visitor.AnalyticsConsent,
		visitor.ConsentDate,
		visitor.VisitCount,
		visitor.FirstVisit,
		visitor.LastVisit,
	).Error
}

func (r *repo) TouchVisitor(ctx context.Context, db *gorm.DB, visitorID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE visitors SET visit_count = visit_count + 1, last_visit = ? WHERE id = ?`,
		at,
		visitorID,
	).Error
}

func (r *repo) UpdateConsent(ctx context.Context, db *gorm.DB, siteID snowflake.ID, token string, cookieConsent, analyticsConsent bool, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE visitors SET cookie_consent = ?, analytics_consent = ?, consent_date = ?
		 WHERE site_id = ? AND token = ?`,
		cookieConsent,
		analyticsConsent,
		at,
		siteID,
		token,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertVisit(ctx context.Context, db *gorm.DB, visit *domain.Visit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO visits (id, site_id, visitor_id, ip_hash, user_agent, referrer, page, country, region, city, browser, os, device_type, language, has_consent, session_duration, pages_viewed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		visit.ID,
		visit.SiteID,
		visit.VisitorID,
		nullable(visit.IPHash),
		nullable(visit.UserAgent),
		nullable(visit.Referrer),
		nullable(visit.Page),
		nullable(visit.Country),
		nullable(visit.Region),
		nullable(visit.City),
		nullable(visit.Browser),
		nullable(visit.OS),
		visit.DeviceType,
		nullable(visit.Language),
		visit.HasConsent,
		visit.SessionDuration,
		visit.PagesViewed,
		visit.CreatedAt,
	).Error
}

func (r *repo) IncrementSiteCounters(ctx context.Context, db *gorm.DB, siteID snowflake.ID, unique int, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE sites
		 SET total_visits = total_visits + 1, unique_visits = unique_visits + ?, updated_at = ?
		 WHERE id = ?`,
		unique,
		at,
		siteID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) FindSiteCounts(ctx context.Context, db *gorm.DB, siteID snowflake.ID) (*domain.SiteCounts, error) {
	var row struct {
		ID           snowflake.ID
		TotalVisits  int64
		UniqueVisits int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, total_visits, unique_visits FROM sites WHERE id = ?`,
		siteID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.SiteCounts{TotalVisits: row.TotalVisits, UniqueVisits: row.UniqueVisits}, nil
}

func (r *repo) CountVisitsSince(ctx context.Context, db *gorm.DB, siteID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM visits WHERE site_id = ? AND created_at >= ?`,
		siteID,
		since,
	).Scan(&count).Error
	return count, err
}

func (r *repo) GroupVisitsSince(ctx context.Context, db *gorm.DB, siteID snowflake.ID, since time.Time, dim domain.Dimension) ([]domain.Bucket, error) {
	column, err := dimensionColumn(dim)
	if err != nil {
		return nil, err
	}

	filter := ""
	if dim != domain.DimensionDevice {
		filter = fmt.Sprintf(" AND %s IS NOT NULL AND %s <> ''", column, column)
	}

	var buckets []domain.Bucket
	err = db.WithContext(ctx).Raw(
		fmt.Sprintf(
			`SELECT %s AS bucket_key, COUNT(*) AS bucket_count
			 FROM visits
			 WHERE site_id = ? AND created_at >= ?%s
			 GROUP BY %s
			 ORDER BY bucket_count DESC, %s ASC`,
			column, filter, column, column,
		),
		siteID,
		since,
	).Scan(&buckets).Error
	return buckets, err
}

func dimensionColumn(dim domain.Dimension) (string, error) {
	switch dim {
	case domain.DimensionDevice, domain.DimensionBrowser, domain.DimensionCountry, domain.DimensionReferrer:
		return string(dim), nil
	default:
		return "", fmt.Errorf("unsupported visit dimension %q", dim)
	}
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
