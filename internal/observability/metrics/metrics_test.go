package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("site_id", "123"),
		attribute.String("visitor_token", "456"),
		attribute.String("device_type", "mobile"),
		attribute.String("source", "track"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "site_id" || attr.Key == "visitor_token" {
			t.Fatalf("expected %s to be dropped", attr.Key)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordVisit(context.Background(), "track", "desktop", true)
	m.RecordBadge(context.Background(), "flat")
	m.RecordConsent(context.Background(), true)
	m.RecordEnrichFailure(context.Background(), "geo")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "tally-test"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordVisit(context.Background(), "increment", "bot", false)
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewHTTPMetricsWithRegisterer(reg)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	second, err := NewHTTPMetricsWithRegisterer(reg)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if first.requests != second.requests {
		t.Fatalf("expected the existing counter to be reused")
	}
}
