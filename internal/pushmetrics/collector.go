package pushmetrics

import (
	"context"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	sitedomain "github.com/smallbiznis/tally/internal/site/domain"
)

// Collector keeps deployment-wide gauges in a private registry so the pushed
// payload never carries per-request HTTP series.
type Collector struct {
	registry *prometheus.Registry

	sites    prometheus.Gauge
	visitors prometheus.Gauge
	visits   prometheus.Gauge
	memory   prometheus.Gauge
	info     *prometheus.GaugeVec
}

func NewCollector(appVersion string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_sites_total",
			Help: "Registered sites.",
		}),
		visitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_visitors_total",
			Help: "Distinct visitors across all sites.",
		}),
		visits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_visits_total",
			Help: "Recorded visits across all sites.",
		}),
		memory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_process_memory_bytes",
			Help: "Memory obtained from the OS by the Go runtime.",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tally_build_info",
			Help: "Build information.",
		}, []string{"version"}),
	}
	c.registry.MustRegister(c.sites, c.visitors, c.visits, c.memory, c.info)
	c.info.WithLabelValues(appVersion).Set(1)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Refresh reloads the gauges. On a stats error the previous values stay.
func (c *Collector) Refresh(ctx context.Context, sites sitedomain.Service) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.memory.Set(float64(m.Sys))

	if sites == nil {
		return nil
	}
	stats, err := sites.Stats(ctx)
	if err != nil {
		return err
	}
	c.sites.Set(float64(stats.Sites))
	c.visitors.Set(float64(stats.Visitors))
	c.visits.Set(float64(stats.Visits))
	return nil
}
