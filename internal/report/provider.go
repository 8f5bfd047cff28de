package report

import (
	"context"
	"io"
	"time"

	"github.com/smallbiznis/tally/internal/tracking/domain"
)

// StatsReport is the input of a rendered stats document.
type StatsReport struct {
	SiteID      string
	GeneratedAt time.Time
	Stats       domain.Stats
}

type Provider interface {
	GenerateStats(ctx context.Context, data StatsReport) (io.Reader, error)
}
