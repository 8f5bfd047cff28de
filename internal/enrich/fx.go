package enrich

import (
	"context"

	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("enrich",
	fx.Provide(provideEnricher),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Metrics   *metrics.Metrics `optional:"true"`
	Log       *zap.Logger
}

// provideEnricher opens the geo database when one is configured. A missing or
// unreadable database disables geography but never blocks startup.
func provideEnricher(p Params) Enricher {
	if p.Config.GeoIPDBPath == "" {
		return NewEnricher(nil, p.Metrics, p.Log)
	}

	locator, err := OpenMaxMind(p.Config.GeoIPDBPath)
	if err != nil {
		p.Log.Warn("geoip database unavailable, geography disabled",
			zap.String("path", p.Config.GeoIPDBPath),
			zap.Error(err),
		)
		return NewEnricher(nil, p.Metrics, p.Log)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return locator.Close()
		},
	})
	return NewEnricher(locator, p.Metrics, p.Log)
}
