package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, site *Site) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Site, error)
	FindCounts(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Counts, error)
	UpdateConfig(ctx context.Context, db *gorm.DB, site *Site) error
	CountAll(ctx context.Context, db *gorm.DB) (SiteStats, error)
}
