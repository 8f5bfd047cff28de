package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/tally/internal/config"
	"go.uber.org/zap/zapcore"
)

const defaultSamplingRatio = 0.1

// Config holds observability settings. Values start from the application
// config and can be overridden with the standard OTEL_* variables.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName: firstSet(os.Getenv("OTEL_SERVICE_NAME"), cfg.AppName, "tally"),
		Environment: firstSet(os.Getenv("DEPLOYMENT_ENV"), cfg.Environment),
		Version:     firstSet(os.Getenv("SERVICE_VERSION"), cfg.AppVersion),
		LogLevel:    normalizeLevel(os.Getenv("LOG_LEVEL")),
		LogFormat:   normalizeFormat(os.Getenv("LOG_FORMAT")),

		OtelExporterEndpoint: firstSet(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.OTLPEndpoint),
		OtelExporterProtocol: normalizeProtocol(firstSet(
			os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"),
			os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"),
		)),
		OtelSamplingRatio: samplingRatio(os.Getenv("OTEL_SAMPLING_RATIO")),
	}

	// Tracing is on whenever there is somewhere to send it, unless
	// OTEL_ENABLED says otherwise.
	out.OtelEnabled = out.OtelExporterEndpoint != ""
	if enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("OTEL_ENABLED"))); err == nil {
		out.OtelEnabled = enabled
	}
	return out
}

// Debug is true for debug logging or a development-like environment.
func (c Config) Debug() bool {
	if c.LogLevel == zapcore.DebugLevel.String() {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func normalizeLevel(raw string) string {
	level, err := zapcore.ParseLevel(strings.TrimSpace(raw))
	if err != nil || strings.TrimSpace(raw) == "" {
		return zapcore.InfoLevel.String()
	}
	return level.String()
}

func normalizeFormat(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "console") {
		return "console"
	}
	return "json"
}

func normalizeProtocol(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "http", "http/protobuf":
		return "http"
	default:
		return "grpc"
	}
}

func samplingRatio(raw string) float64 {
	ratio, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return defaultSamplingRatio
	}
	return ratio
}
