package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/site/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, site *domain.Site) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO sites (id, domain, total_visits, unique_visits, badge_style, badge_color, badge_label, badge_logo, customizable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID,
		site.Domain,
		site.TotalVisits,
		site.UniqueVisits,
		site.BadgeStyle,
		site.BadgeColor,
		site.BadgeLabel,
		site.BadgeLogo,
		site.Customizable,
		site.CreatedAt,
		site.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Site, error) {
	var site domain.Site
	err := db.WithContext(ctx).Raw(
		`SELECT id, domain, total_visits, unique_visits, badge_style, badge_color, badge_label, badge_logo, customizable, created_at, updated_at
		 FROM sites WHERE id = ?`,
		id,
	).Scan(&site).Error
	if err != nil {
		return nil, err
	}
	if site.ID == 0 {
		return nil, nil
	}
	return &site, nil
}

func (r *repo) FindCounts(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Counts, error) {
	var row struct {
		ID           snowflake.ID
		TotalVisits  int64
		UniqueVisits int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id, total_visits, unique_visits FROM sites WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &domain.Counts{TotalVisits: row.TotalVisits, UniqueVisits: row.UniqueVisits}, nil
}

func (r *repo) UpdateConfig(ctx context.Context, db *gorm.DB, site *domain.Site) error {
	return db.WithContext(ctx).Exec(
		`UPDATE sites
		 SET badge_style = ?, badge_color = ?, badge_label = ?, badge_logo = ?, domain = ?, updated_at = ?
		 WHERE id = ?`,
		site.BadgeStyle,
		site.BadgeColor,
		site.BadgeLabel,
		site.BadgeLogo,
		site.Domain,
		site.UpdatedAt,
		site.ID,
	).Error
}

func (r *repo) CountAll(ctx context.Context, db *gorm.DB) (domain.SiteStats, error) {
	var stats domain.SiteStats
	err := db.WithContext(ctx).Raw(
		`SELECT
			(SELECT COUNT(*) FROM sites) AS sites,
			(SELECT COUNT(*) FROM visitors) AS visitors,
			(SELECT COUNT(*) FROM visits) AS visits`,
	).Scan(&stats).Error
	return stats, err
}
