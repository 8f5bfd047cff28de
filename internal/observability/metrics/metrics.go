package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	visitsTracked   metric.Int64Counter
	visitorsCreated metric.Int64Counter
	badgesRendered  metric.Int64Counter
	consentUpdates  metric.Int64Counter
	enrichFailures  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tally"
	}
	meter := provider.Meter(name)

	visitsTracked, err := meter.Int64Counter("tally_visits_tracked_total")
	if err != nil {
		return nil, err
	}
	visitorsCreated, err := meter.Int64Counter("tally_visitors_created_total")
	if err != nil {
		return nil, err
	}
	badgesRendered, err := meter.Int64Counter("tally_badges_rendered_total")
	if err != nil {
		return nil, err
	}
	consentUpdates, err := meter.Int64Counter("tally_consent_updates_total")
	if err != nil {
		return nil, err
	}
	enrichFailures, err := meter.Int64Counter("tally_enrich_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		visitsTracked:   visitsTracked,
		visitorsCreated: visitorsCreated,
		badgesRendered:  badgesRendered,
		consentUpdates:  consentUpdates,
		enrichFailures:  enrichFailures,
	}, nil
}

// RecordVisit increments tracked visit counts.
func (m *Metrics) RecordVisit(ctx context.Context, source, deviceType string, newVisitor bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("device_type", strings.TrimSpace(deviceType)),
	)
	m.visitsTracked.Add(ctx, 1, metric.WithAttributes(attrs...))
	if newVisitor {
		m.visitorsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordBadge increments rendered badge counts.
func (m *Metrics) RecordBadge(ctx context.Context, style string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("style", strings.TrimSpace(style)))
	m.badgesRendered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConsent increments consent update counts.
func (m *Metrics) RecordConsent(ctx context.Context, cookieConsent bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("cookie_consent", cookieConsent))
	m.consentUpdates.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEnrichFailure counts best-effort inference steps that were skipped.
func (m *Metrics) RecordEnrichFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("stage", strings.TrimSpace(stage)))
	m.enrichFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Label keys must have bounded value sets, so site_id is excluded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":         {},
	"device_type":    {},
	"style":          {},
	"cookie_consent": {},
	"stage":          {},
	"status_code":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
