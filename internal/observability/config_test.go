package observability

import (
	"testing"

	"github.com/smallbiznis/tally/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"OTEL_SERVICE_NAME", "DEPLOYMENT_ENV", "SERVICE_VERSION", "LOG_LEVEL", "LOG_FORMAT",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_PROTOCOL", "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL",
		"OTEL_SAMPLING_RATIO", "OTEL_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig(config.Config{AppName: "tally", Environment: "production", AppVersion: "1.2.3"})
	assert.Equal(t, "tally", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, defaultSamplingRatio, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled, "no endpoint, no tracing")
	assert.False(t, cfg.Debug())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.5")
	t.Setenv("OTEL_ENABLED", "")

	cfg := LoadConfig(config.Config{Environment: "production"})
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigExplicitDisable(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_ENABLED", "false")
	assert.False(t, LoadConfig(config.Config{}).OtelEnabled)
}

func TestSamplingRatioRejectsOutOfRange(t *testing.T) {
	assert.Equal(t, defaultSamplingRatio, samplingRatio("1.5"))
	assert.Equal(t, defaultSamplingRatio, samplingRatio("-1"))
	assert.Equal(t, defaultSamplingRatio, samplingRatio("abc"))
	assert.Equal(t, 1.0, samplingRatio("1"))
}

func TestDebugForDevEnvironments(t *testing.T) {
	assert.True(t, Config{Environment: "development", LogLevel: "info"}.Debug())
	assert.True(t, Config{Environment: "test", LogLevel: "info"}.Debug())
	assert.False(t, Config{Environment: "staging", LogLevel: "warn"}.Debug())
}
