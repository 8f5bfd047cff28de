package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tally/internal/admin"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/enrich"
	"github.com/smallbiznis/tally/internal/migration/migrationtest"
	"github.com/smallbiznis/tally/internal/observability"
	obsmetrics "github.com/smallbiznis/tally/internal/observability/metrics"
	"github.com/smallbiznis/tally/internal/report"
	siterepo "github.com/smallbiznis/tally/internal/site/repository"
	siteservice "github.com/smallbiznis/tally/internal/site/service"
	trackingrepo "github.com/smallbiznis/tally/internal/tracking/repository"
	trackingservice "github.com/smallbiznis/tally/internal/tracking/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	node   *snowflake.Node
}

func newTestServer(t *testing.T, siteCache cache.SiteCache) *testServer {
	t.Helper()
	if siteCache == nil {
		siteCache = cache.NewMemorySiteCache(time.Minute)
	}
	gin.SetMode(gin.TestMode)

	db := migrationtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	cfg := config.Config{
		BaseURL:      "https://count.example.com",
		SiteCacheTTL: time.Minute,
		Admin:        config.AdminConfig{User: "admin", Password: "pw"},
		CookieSecure: true,
	}
	badges := config.NewStaticBadgeConfigHolder(config.DefaultBadgeConfig())

	sites := siteservice.New(siteservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   siterepo.Provide(),
		Config: cfg,
		Badges: badges,
		Cache:  siteCache,
		Clock:  fake,
	})
	tracking := trackingservice.New(trackingservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     trackingrepo.Provide(),
		Enricher: enrich.NewEnricher(nil, nil, zap.NewNop()),
		Clock:    fake,
	})

	httpMetrics, err := obsmetrics.NewHTTPMetricsWithRegisterer(prometheus.NewRegistry())
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:      NewEngine(observability.Config{Environment: "test"}, httpMetrics),
		Cfg:      cfg,
		Sites:    sites,
		Tracking: tracking,
		Admin:    admin.NewAuthenticator(cfg),
		Reports:  report.New(),
		Badges:   badges,
		Clock:    fake,
	})
	return &testServer{t: t, engine: srv.Engine(), node: node}
}

func (ts *testServer) do(method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	ts.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", testUA)
	req.RemoteAddr = "203.0.113.7:5555"
	for _, fn := range mutate {
		fn(req)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(customizable bool) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/register", map[string]any{
		"user": "admin", "password": "pw", "customizable": customizable,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool   `json:"success"`
		SiteID  string `json:"siteId"`
	}
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(ts.t, resp.Success)
	return resp.SiteID
}

func withCookie(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: visitorCookieName, Value: token})
	}
}

func visitorCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == visitorCookieName {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAuth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/register", map[string]any{"user": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)

	rec = ts.do(http.MethodPost, "/api/register", map[string]any{"user": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestRegisterReturnsEmbedScript(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPost, "/api/register", map[string]any{
		"user": "admin", "password": "pw", "customizable": "true",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["customizable"])
	assert.Contains(t, resp["script"], "/increment?format=text")
	endpoints := resp["endpoints"].(map[string]any)
	assert.Equal(t, "https://count.example.com/api/count/"+resp["siteId"].(string), endpoints["count"])
}

func TestTrackSetsVisitorCookie(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)

	rec := ts.do(http.MethodPost, "/api/track/"+siteID, map[string]string{"page": "https://blog.example.com/a"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var first struct {
		Success      bool   `json:"success"`
		VisitorID    string `json:"visitorId"`
		IsNewVisitor bool   `json:"isNewVisitor"`
		NeedsConsent bool   `json:"needsConsent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.True(t, first.Success)
	assert.True(t, first.IsNewVisitor)
	assert.True(t, first.NeedsConsent)

	cookie := visitorCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, first.VisitorID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, visitorCookieMaxAge, cookie.MaxAge)

	rec = ts.do(http.MethodPost, "/api/track/"+siteID, nil, withCookie(first.VisitorID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isNewVisitor":false`)
	assert.Nil(t, visitorCookie(rec), "returning visitor keeps the existing cookie")

	rec = ts.do(http.MethodGet, "/api/count/"+siteID, nil)
	assert.JSONEq(t, `{"totalVisits":2,"uniqueVisits":1}`, rec.Body.String())
}

func TestTrackUnknownSite(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodPost, "/api/track/"+ts.node.Generate().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	rec = ts.do(http.MethodPost, "/api/track/not-a-site", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrackRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)
	rec := ts.do(http.MethodPost, "/api/track/"+siteID, nil, func(r *http.Request) {
		r.Body = io.NopCloser(strings.NewReader("{not json"))
		r.Header.Set("Content-Type", "application/json")
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCountUnknownSiteIsZero(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/count/"+ts.node.Generate().String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"totalVisits":0,"uniqueVisits":0}`, rec.Body.String())
}

func TestIncrementFormats(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(true)

	rec := ts.do(http.MethodGet, "/api/count/"+siteID+"/increment?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	require.NotNil(t, visitorCookie(rec))

	rec = ts.do(http.MethodGet, "/api/count/"+siteID+"/increment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, float64(2), res["totalVisits"])
	assert.Equal(t, float64(2), res["uniqueVisits"])
	assert.NotContains(t, res, "VisitorToken")

	rec = ts.do(http.MethodGet, "/api/count/"+siteID+"?format=formatted", nil)
	assert.Equal(t, "2", rec.Body.String())
	rec = ts.do(http.MethodGet, "/api/count/"+siteID+"?format=text", nil)
	assert.Equal(t, "2", rec.Body.String())
}

func TestIncrementFallsBackToRefererHeader(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(true)

	rec := ts.do(http.MethodGet, "/api/count/"+siteID+"/increment", nil, func(r *http.Request) {
		r.Header.Set("Referer", "https://news.example.org/post")
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodGet, "/api/stats/"+siteID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"https://news.example.org/post":1`)
}

func TestBadgeHeadersAndOverrides(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)

	rec := ts.do(http.MethodGet, "/api/badge/"+siteID+"?label=hits&color=blue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), ">hits</text>")
	assert.Contains(t, rec.Body.String(), `fill="#007ec6"`)
	assert.Contains(t, rec.Body.String(), ">0</text>")
}

func TestBadgeUnknownSiteRendersZero(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/badge/whatever", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `aria-label="Visitas: 0"`)
}

func TestConsent(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)

	rec := ts.do(http.MethodPost, "/api/consent/"+siteID, map[string]any{"cookieConsent": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "visitorId", payload.Errors[0].Field)

	rec = ts.do(http.MethodPost, "/api/consent/"+siteID, map[string]any{"visitorId": "unknown", "cookieConsent": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/track/"+siteID, nil)
	token := visitorCookie(rec).Value

	rec = ts.do(http.MethodPost, "/api/consent/"+siteID, map[string]any{"cookieConsent": true, "analyticsConsent": true}, withCookie(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)

	rec = ts.do(http.MethodPost, "/api/track/"+siteID, nil, withCookie(token))
	assert.Contains(t, rec.Body.String(), `"needsConsent":false`)
}

func TestStatsAndReport(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)
	ts.do(http.MethodPost, "/api/track/"+siteID, map[string]string{"referrer": "https://ref.example"})

	rec := ts.do(http.MethodGet, "/api/stats/"+siteID+"?days=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodGet, "/api/stats/"+siteID+"?days=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/stats/"+siteID+"?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats struct {
		TotalVisits int64 `json:"totalVisits"`
		Period      struct {
			Days   int   `json:"days"`
			Visits int64 `json:"visits"`
		} `json:"period"`
		Devices map[string]int64 `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalVisits)
	assert.Equal(t, 7, stats.Period.Days)
	assert.Equal(t, int64(1), stats.Period.Visits)
	assert.Equal(t, int64(1), stats.Devices[enrich.DeviceMobile])

	rec = ts.do(http.MethodGet, "/api/stats/"+ts.node.Generate().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/stats/"+siteID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), siteID)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestUpdateConfig(t *testing.T) {
	ts := newTestServer(t, nil)
	siteID := ts.register(false)

	rec := ts.do(http.MethodPut, "/api/config/"+siteID, map[string]any{"badgeStyle": "neon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_style", decodeError(t, rec).Errors[0].Code)

	rec = ts.do(http.MethodPut, "/api/config/"+siteID, map[string]any{
		"badgeStyle": "plastic", "badgeColor": "", "badgeLabel": "views", "domain": "blog.example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"config":{"badgeStyle":"plastic","badgeColor":"4c1","badgeLabel":"views","badgeLogo":null,"domain":"blog.example.com"}}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/badge/"+siteID, nil)
	assert.Contains(t, rec.Body.String(), ">views</text>")
	assert.Contains(t, rec.Body.String(), `rx="4"`)

	rec = ts.do(http.MethodPut, "/api/config/"+ts.node.Generate().String(), map[string]any{"badgeLabel": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodOptions, "/api/config/123", nil, func(r *http.Request) {
		r.Header.Set("Origin", "https://blog.example.com")
		r.Header.Set("Access-Control-Request-Method", http.MethodPut)
		r.Header.Set("Access-Control-Request-Headers", "Content-Type")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String(), "preflight never reaches the not-found handler")
	assert.Equal(t, "https://blog.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, http.MethodPut, rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORSOnSimpleRequest(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/count/123", nil, func(r *http.Request) {
		r.Header.Set("Origin", "https://blog.example.com")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://blog.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestWidgetScript(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/widget.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), "data-site-id")
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestBadgeFollowsConfigUpdateThroughRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ts := newTestServer(t, cache.NewRedisSiteCache(client, time.Minute, zap.NewNop()))
	siteID := ts.register(true)

	first := ts.do(http.MethodGet, "/api/badge/"+siteID, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), ">Visitas</text>")

	rec := ts.do(http.MethodPut, "/api/config/"+siteID, map[string]any{"badgeLabel": "views"})
	require.Equal(t, http.StatusOK, rec.Code)

	second := ts.do(http.MethodGet, "/api/badge/"+siteID, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), ">views</text>")
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	status, payload := mapError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Type)

	typ, code := classifyErrorForLog(assert.AnError)
	assert.Equal(t, "internal_error", typ)
	assert.Equal(t, "internal_error", code)
}
