// Package enrich derives anonymized, coarse request facts (address digest,
// geography, device and language) for visit records. Every step is best
// effort: a failure leaves the affected fields empty.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strings"

	"github.com/mssola/useragent"
	"github.com/smallbiznis/tally/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Meta is the raw request data inference works from.
type Meta struct {
	RemoteAddr     string
	ForwardedFor   string
	RealIP         string
	UserAgent      string
	AcceptLanguage string
}

// Result holds the inferred request facts. IP is kept only long enough to
// hash; it is never persisted.
type Result struct {
	IP         string
	IPHash     string
	Country    string
	Region     string
	City       string
	Browser    string
	OS         string
	DeviceType string
	Language   string
}

// Enricher runs request inference.
type Enricher interface {
	Enrich(ctx context.Context, meta Meta) Result
}

type enricher struct {
	geo     GeoLocator
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewEnricher builds an Enricher. geo may be nil, in which case geography is
// always empty.
func NewEnricher(geo GeoLocator, m *metrics.Metrics, log *zap.Logger) Enricher {
	if log == nil {
		log = zap.NewNop()
	}
	return &enricher{geo: geo, metrics: m, log: log.Named("enrich")}
}

func (e *enricher) Enrich(ctx context.Context, meta Meta) Result {
	ip := ClientIP(meta.ForwardedFor, meta.RealIP, meta.RemoteAddr)
	browser, os := BrowserAndOS(meta.UserAgent)

	result := Result{
		IP:         ip,
		IPHash:     HashIP(ip),
		Browser:    browser,
		OS:         os,
		DeviceType: DeviceType(meta.UserAgent),
		Language:   Language(meta.AcceptLanguage),
	}

	if e.geo == nil || ip == "" {
		return result
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		e.metrics.RecordEnrichFailure(ctx, "ip_parse")
		return result
	}
	loc, err := e.geo.Locate(parsed)
	if err != nil {
		e.log.Debug("geo lookup failed", zap.Error(err))
		e.metrics.RecordEnrichFailure(ctx, "geo")
		return result
	}
	result.Country = loc.Country
	result.Region = loc.Region
	result.City = loc.City
	return result
}

// ClientIP picks the first X-Forwarded-For entry, then X-Real-IP, then the
// remote address with any port stripped.
func ClientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor = strings.TrimSpace(forwardedFor); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP = strings.TrimSpace(realIP); realIP != "" {
		return realIP
	}
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// HashIP returns the first 16 hex characters of sha256(ip), or "" for an
// empty address.
func HashIP(ip string) string {
	if ip == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

// DeviceType classifies a user agent by substring, checked in order.
func DeviceType(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return DeviceUnknown
	}
	lower := strings.ToLower(ua)
	switch {
	case strings.Contains(lower, "bot"), strings.Contains(lower, "crawler"), strings.Contains(lower, "spider"):
		return DeviceBot
	case strings.Contains(lower, "mobile"):
		return DeviceMobile
	case strings.Contains(lower, "tablet"), strings.Contains(lower, "ipad"):
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Language returns the primary subtag of the first Accept-Language entry.
func Language(acceptLanguage string) string {
	first, _, _ := strings.Cut(acceptLanguage, ",")
	first, _, _ = strings.Cut(first, ";")
	primary, _, _ := strings.Cut(strings.TrimSpace(first), "-")
	primary = strings.ToLower(strings.TrimSpace(primary))
	if primary == "*" {
		return ""
	}
	return primary
}

// BrowserAndOS returns "family major" for the browser and operating system.
func BrowserAndOS(ua string) (string, string) {
	if strings.TrimSpace(ua) == "" {
		return "", ""
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	info := parsed.OSInfo()
	return withMajor(name, version), withMajor(info.Name, info.Version)
}

func withMajor(name, version string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	major := strings.FieldsFunc(version, func(r rune) bool {
		return r == '.' || r == '_'
	})
	if len(major) == 0 || major[0] == "" {
		return name
	}
	return name + " " + major[0]
}
