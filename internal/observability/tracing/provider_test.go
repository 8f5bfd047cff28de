package tracing

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsVisitorIdentifiers(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/track/:siteId"),
		attribute.String("visitor_token", "secret"),
		attribute.String("client_ip", "10.0.0.1"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorUnwraps(t *testing.T) {
	assert.Nil(t, SafeError(nil))

	base := errors.New("site_not_found")
	wrapped := fmt.Errorf("track: %w", base)
	safe := SafeError(wrapped)
	assert.Equal(t, "track: site_not_found", safe.Error())
	assert.False(t, errors.Is(safe, base))
}

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(nil, Config{ServiceName: "tally"}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, provider)
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("carrier-pigeon", "")
	assert.Error(t, err)
}

func TestWrapHTTPClientKeepsTimeout(t *testing.T) {
	base := &http.Client{Timeout: 3 * time.Second}
	wrapped := WrapHTTPClient(base)
	assert.Equal(t, base.Timeout, wrapped.Timeout)
	assert.NotSame(t, base, wrapped)
	assert.Nil(t, base.Transport)
	assert.NotNil(t, wrapped.Transport)
}
