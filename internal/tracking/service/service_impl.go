package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/enrich"
	"github.com/smallbiznis/tally/internal/observability/metrics"
	"github.com/smallbiznis/tally/internal/tracking/domain"
	"github.com/smallbiznis/tally/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxTokenAttempts = 3
	maxTokenLength   = 64
	visitorSavepoint = "visitor_insert"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Enricher enrich.Enricher
	Clock    clock.Clock
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	enricher enrich.Enricher
	clock    clock.Clock
	metrics  *metrics.Metrics

	newToken func() (string, error)
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	enricher := p.Enricher
	if enricher == nil {
		enricher = enrich.NewEnricher(nil, p.Metrics, p.Log)
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("tracking.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		enricher: enricher,
		clock:    c,
		metrics:  p.Metrics,
		newToken: mintToken,
	}
}

// mintToken draws a random (v4) uuid from crypto/rand.
func mintToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

type resolution struct {
	visitor      domain.Visitor
	isNewVisitor bool
	deviceType   string
}

func (s *Service) Track(ctx context.Context, req domain.TrackRequest) (domain.TrackResult, error) {
	siteID, ok := parseSiteID(req.SiteID)
	if !ok {
		return domain.TrackResult{}, domain.ErrSiteNotFound
	}

	var res resolution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.resolveAndCount(ctx, tx, siteID, req)
		return err
	})
	if err != nil {
		return domain.TrackResult{}, s.trackError(req.SiteID, err)
	}

	s.metrics.RecordVisit(ctx, domain.SourceTrack, res.deviceType, res.isNewVisitor)
	return domain.TrackResult{
		VisitorToken: res.visitor.Token,
		IsNewVisitor: res.isNewVisitor,
		NeedsConsent: !res.visitor.CookieConsent,
	}, nil
}

func (s *Service) IncrementAndRead(ctx context.Context, req domain.TrackRequest) (domain.IncrementResult, error) {
	siteID, ok := parseSiteID(req.SiteID)
	if !ok {
		return domain.IncrementResult{}, domain.ErrSiteNotFound
	}

	var (
		res    resolution
		counts *domain.SiteCounts
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = s.resolveAndCount(ctx, tx, siteID, req)
		if err != nil {
			return err
		}
		counts, err = s.repo.FindSiteCounts(ctx, tx, siteID)
		if err != nil {
			return fmt.Errorf("read site counts: %w", err)
		}
		if counts == nil {
			return domain.ErrSiteNotFound
		}
		return nil
	})
	if err != nil {
		return domain.IncrementResult{}, s.trackError(req.SiteID, err)
	}

	s.metrics.RecordVisit(ctx, domain.SourceIncrement, res.deviceType, res.isNewVisitor)
	return domain.IncrementResult{
		TotalVisits:  counts.TotalVisits,
		UniqueVisits: counts.UniqueVisits,
		IsNewVisitor: res.isNewVisitor,
		NeedsConsent: !res.visitor.CookieConsent,
		VisitorToken: res.visitor.Token,
	}, nil
}

// resolveAndCount runs inside tx. Site counters are bumped before any visitor
// row is written so an unknown site aborts the transaction untouched.
func (s *Service) resolveAndCount(ctx context.Context, tx *gorm.DB, siteID snowflake.ID, req domain.TrackRequest) (resolution, error) {
	now := s.clock.Now()
	facts := s.enricher.Enrich(ctx, req.Meta)

	var res resolution
	token := strings.TrimSpace(req.Token)
	if token != "" && len(token) <= maxTokenLength {
		existing, err := s.repo.FindVisitor(ctx, tx, siteID, token)
		if err != nil {
			return res, fmt.Errorf("find visitor: %w", err)
		}
		if existing != nil {
			res.visitor = *existing
		}
	}
	res.isNewVisitor = res.visitor.ID == 0

	unique := 0
	if res.isNewVisitor {
		unique = 1
	}
	affected, err := s.repo.IncrementSiteCounters(ctx, tx, siteID, unique, now)
	if err != nil {
		return res, fmt.Errorf("increment site counters: %w", err)
	}
	if affected == 0 {
		return res, domain.ErrSiteNotFound
	}

	if res.isNewVisitor {
		visitor, err := s.createVisitor(ctx, tx, siteID, now)
		if err != nil {
			return res, err
		}
		res.visitor = visitor
	} else {
		if err := s.repo.TouchVisitor(ctx, tx, res.visitor.ID, now); err != nil {
			return res, fmt.Errorf("touch visitor: %w", err)
		}
		res.visitor.VisitCount++
		res.visitor.LastVisit = now
	}

	visit := domain.Visit{
		ID:          s.genID.Generate(),
		SiteID:      siteID,
		VisitorID:   res.visitor.ID,
		IPHash:      facts.IPHash,
		UserAgent:   req.Meta.UserAgent,
		Referrer:    strings.TrimSpace(req.Referrer),
		Page:        strings.TrimSpace(req.Page),
		Country:     facts.Country,
		Region:      facts.Region,
		City:        facts.City,
		Browser:     facts.Browser,
		OS:          facts.OS,
		DeviceType:  facts.DeviceType,
		Language:    facts.Language,
		HasConsent:  res.visitor.CookieConsent,
		PagesViewed: 1,
		CreatedAt:   now,
	}
	if err := s.repo.InsertVisit(ctx, tx, &visit); err != nil {
		return res, fmt.Errorf("insert visit: %w", err)
	}
	res.deviceType = facts.DeviceType
	return res, nil
}

// createVisitor mints a token and inserts the visitor, retrying under a
// savepoint when the token collides with an existing one.
func (s *Service) createVisitor(ctx context.Context, tx *gorm.DB, siteID snowflake.ID, now time.Time) (domain.Visitor, error) {
	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return domain.Visitor{}, fmt.Errorf("mint visitor token: %w", err)
		}
		visitor := domain.Visitor{
			ID:         s.genID.Generate(),
			SiteID:     siteID,
			Token:      token,
			VisitCount: 1,
			FirstVisit: now,
			LastVisit:  now,
		}

		if err := tx.SavePoint(visitorSavepoint).Error; err != nil {
			return domain.Visitor{}, fmt.Errorf("savepoint: %w", err)
		}
		err = s.repo.InsertVisitor(ctx, tx, &visitor)
		if err == nil {
			return visitor, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return domain.Visitor{}, fmt.Errorf("insert visitor: %w", err)
		}
		lastErr = err
		s.log.Warn("visitor token collision, minting again", zap.Int("attempt", attempt+1))
		if err := tx.RollbackTo(visitorSavepoint).Error; err != nil {
			return domain.Visitor{}, fmt.Errorf("rollback to savepoint: %w", err)
		}
	}
	return domain.Visitor{}, fmt.Errorf("insert visitor after %d attempts: %w", maxTokenAttempts, lastErr)
}

func (s *Service) trackError(siteID string, err error) error {
	if errors.Is(err, domain.ErrSiteNotFound) {
		return domain.ErrSiteNotFound
	}
	s.log.Error("failed to track visit", zap.String("site_id", siteID), zap.Error(err))
	return err
}

func (s *Service) UpdateConsent(ctx context.Context, req domain.ConsentRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" || len(token) > maxTokenLength {
		return domain.ErrInvalidVisitorToken
	}
	siteID, ok := parseSiteID(req.SiteID)
	if !ok {
		return domain.ErrVisitorNotFound
	}

	affected, err := s.repo.UpdateConsent(ctx, s.db, siteID, token, req.CookieConsent, req.AnalyticsConsent, s.clock.Now())
	if err != nil {
		s.log.Error("failed to update consent", zap.String("site_id", req.SiteID), zap.Error(err))
		return fmt.Errorf("update consent: %w", err)
	}
	if affected == 0 {
		return domain.ErrVisitorNotFound
	}

	s.metrics.RecordConsent(ctx, req.CookieConsent)
	return nil
}

func (s *Service) ReadStats(ctx context.Context, req domain.StatsRequest) (domain.Stats, error) {
	days := req.Days
	if days == 0 {
		days = domain.DefaultWindowDays
	}
	if days < 1 || days > domain.MaxWindowDays {
		return domain.Stats{}, domain.ErrInvalidWindow
	}
	siteID, ok := parseSiteID(req.SiteID)
	if !ok {
		return domain.Stats{}, domain.ErrSiteNotFound
	}

	counts, err := s.repo.FindSiteCounts(ctx, s.db, siteID)
	if err != nil {
		return domain.Stats{}, s.statsError(req.SiteID, fmt.Errorf("read site counts: %w", err))
	}
	if counts == nil {
		return domain.Stats{}, domain.ErrSiteNotFound
	}

	since := s.clock.Now().AddDate(0, 0, -days)
	visits, err := s.repo.CountVisitsSince(ctx, s.db, siteID, since)
	if err != nil {
		return domain.Stats{}, s.statsError(req.SiteID, fmt.Errorf("count visits: %w", err))
	}

	stats := domain.Stats{
		TotalVisits:  counts.TotalVisits,
		UniqueVisits: counts.UniqueVisits,
		Period:       domain.Period{Days: days, Visits: visits},
	}
	for _, group := range []struct {
		dim    domain.Dimension
		target *map[string]int64
	}{
		{domain.DimensionDevice, &stats.Devices},
		{domain.DimensionBrowser, &stats.Browsers},
		{domain.DimensionCountry, &stats.Countries},
		{domain.DimensionReferrer, &stats.Referrers},
	} {
		buckets, err := s.repo.GroupVisitsSince(ctx, s.db, siteID, since, group.dim)
		if err != nil {
			return domain.Stats{}, s.statsError(req.SiteID, fmt.Errorf("group visits by %s: %w", group.dim, err))
		}
		*group.target = toMap(buckets)
	}
	return stats, nil
}

func (s *Service) statsError(siteID string, err error) error {
	s.log.Error("failed to read stats", zap.String("site_id", siteID), zap.Error(err))
	return err
}

func toMap(buckets []domain.Bucket) map[string]int64 {
	out := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		out[b.Key] += b.Count
	}
	return out
}

func parseSiteID(id string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}
