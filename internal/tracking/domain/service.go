package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/tally/internal/enrich"
)

const (
	SourceTrack     = "track"
	SourceIncrement = "increment"

	DefaultWindowDays = 30
	MaxWindowDays     = 3650
)

type TrackRequest struct {
	SiteID string
	// Token is the visitor token the client presented, if any.
	Token    string
	Page     string
	Referrer string
	Meta     enrich.Meta
}

type TrackResult struct {
	VisitorToken string `json:"visitorId"`
	IsNewVisitor bool   `json:"isNewVisitor"`
	NeedsConsent bool   `json:"needsConsent"`
}

type IncrementResult struct {
	TotalVisits  int64  `json:"totalVisits"`
	UniqueVisits int64  `json:"uniqueVisits"`
	IsNewVisitor bool   `json:"isNewVisitor"`
	NeedsConsent bool   `json:"needsConsent"`
	VisitorToken string `json:"-"`
}

type ConsentRequest struct {
	SiteID           string
	Token            string
	CookieConsent    bool
	AnalyticsConsent bool
}

type StatsRequest struct {
	SiteID string
	// Days is the look-back window; zero means DefaultWindowDays.
	Days int
}

type Period struct {
	Days   int   `json:"days"`
	Visits int64 `json:"visits"`
}

type Stats struct {
	TotalVisits  int64            `json:"totalVisits"`
	UniqueVisits int64            `json:"uniqueVisits"`
	Period       Period           `json:"period"`
	Devices      map[string]int64 `json:"devices"`
	Browsers     map[string]int64 `json:"browsers"`
	Countries    map[string]int64 `json:"countries"`
	Referrers    map[string]int64 `json:"referrers"`
}

type Service interface {
	// Track resolves or creates the visitor, appends a visit and bumps the
	// site counters in one transaction.
	Track(ctx context.Context, req TrackRequest) (TrackResult, error)
	// IncrementAndRead is Track followed by a read of the counters in the
	// same transaction.
	IncrementAndRead(ctx context.Context, req TrackRequest) (IncrementResult, error)
	UpdateConsent(ctx context.Context, req ConsentRequest) error
	ReadStats(ctx context.Context, req StatsRequest) (Stats, error)
}

var (
	ErrSiteNotFound        = errors.New("site_not_found")
	ErrVisitorNotFound     = errors.New("visitor_not_found")
	ErrInvalidVisitorToken = errors.New("invalid_visitor_token")
	ErrInvalidWindow       = errors.New("invalid_window")
)
