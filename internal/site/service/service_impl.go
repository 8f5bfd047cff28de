package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/badge"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/site/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLabelLength = 64

var hexColor = regexp.MustCompile(`^#?([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Config config.Config
	Badges *config.BadgeConfigHolder
	Cache  cache.SiteCache
	Clock  clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	baseURL string
	badges  *config.BadgeConfigHolder
	cache   cache.SiteCache
	clock   clock.Clock
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	siteCache := p.Cache
	if siteCache == nil {
		siteCache = cache.NewMemorySiteCache(p.Config.SiteCacheTTL)
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("site.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		baseURL: strings.TrimRight(p.Config.BaseURL, "/"),
		badges:  p.Badges,
		cache:   siteCache,
		clock:   c,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.Registration, error) {
	defaults := s.badges.Get().Defaults()
	now := s.clock.Now()

	site := domain.Site{
		ID:           s.genID.Generate(),
		BadgeStyle:   string(defaults.Style),
		BadgeColor:   defaults.Color,
		BadgeLabel:   defaults.Label,
		Customizable: req.Customizable,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, &site); err != nil {
		s.log.Error("failed to insert site", zap.Error(err))
		return domain.Registration{}, fmt.Errorf("insert site: %w", err)
	}

	siteID := site.ID.String()
	s.log.Info("site registered",
		zap.String("site_id", siteID),
		zap.Bool("customizable", site.Customizable),
	)

	return domain.Registration{
		SiteID:       siteID,
		Customizable: site.Customizable,
		Script:       s.embedScript(siteID, site.Customizable),
		Endpoints: domain.Endpoints{
			Badge:     fmt.Sprintf("%s/api/badge/%s", s.baseURL, siteID),
			Count:     fmt.Sprintf("%s/api/count/%s", s.baseURL, siteID),
			Increment: fmt.Sprintf("%s/api/count/%s/increment", s.baseURL, siteID),
			Stats:     fmt.Sprintf("%s/api/stats/%s", s.baseURL, siteID),
		},
	}, nil
}

func (s *Service) embedScript(siteID string, customizable bool) string {
	if customizable {
		return fmt.Sprintf(`<!-- Visit counter: custom mode -->
<script>
  // GET %[1]s/api/count/%[2]s?format=text
  // GET %[1]s/api/count/%[2]s?format=formatted
  // GET %[1]s/api/count/%[2]s/increment?format=text (track + read)
  fetch('%[1]s/api/count/%[2]s/increment?format=text', { credentials: 'include' })
    .then(r => r.text())
    .then(count => {
      document.getElementById('counter').textContent = count;
    });
</script>`, s.baseURL, siteID)
	}
	return fmt.Sprintf(`<!-- Visit counter -->
<div id="visit-counter-%[2]s"></div>
<script src="%[1]s/widget.js" data-site-id="%[2]s"></script>`, s.baseURL, siteID)
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Site, error) {
	siteID, err := parseID(id)
	if err != nil {
		return domain.Site{}, err
	}

	site, err := s.repo.FindByID(ctx, s.db, siteID)
	if err != nil {
		return domain.Site{}, fmt.Errorf("find site: %w", err)
	}
	if site == nil {
		return domain.Site{}, domain.ErrNotFound
	}
	return *site, nil
}

func (s *Service) ReadCounts(ctx context.Context, id string) (domain.Counts, error) {
	siteID, err := parseID(id)
	if err != nil {
		return domain.Counts{}, nil
	}

	counts, err := s.repo.FindCounts(ctx, s.db, siteID)
	if err != nil {
		s.log.Error("failed to read counts", zap.String("site_id", id), zap.Error(err))
		return domain.Counts{}, fmt.Errorf("read counts: %w", err)
	}
	if counts == nil {
		return domain.Counts{}, nil
	}
	return *counts, nil
}

func (s *Service) UpdateConfig(ctx context.Context, req domain.UpdateConfigRequest) (domain.SiteConfig, error) {
	site, err := s.GetByID(ctx, req.SiteID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidID) {
			return domain.SiteConfig{}, domain.ErrNotFound
		}
		return domain.SiteConfig{}, err
	}

	if value := trimmed(req.Style); value != "" {
		style, ok := badge.ParseStyle(value)
		if !ok {
			return domain.SiteConfig{}, domain.ErrInvalidStyle
		}
		site.BadgeStyle = string(style)
	}
	if value := trimmed(req.Color); value != "" {
		if !s.validColor(value) {
			return domain.SiteConfig{}, domain.ErrInvalidColor
		}
		site.BadgeColor = value
	}
	if req.Label != nil && *req.Label != "" {
		if utf8.RuneCountInString(*req.Label) > maxLabelLength {
			return domain.SiteConfig{}, domain.ErrInvalidLabel
		}
		site.BadgeLabel = *req.Label
	}
	if req.Logo != nil {
		if *req.Logo == "" {
			site.BadgeLogo = nil
		} else {
			logo := *req.Logo
			site.BadgeLogo = &logo
		}
	}
	if value := trimmed(req.Domain); value != "" {
		site.Domain = &value
	}
	site.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateConfig(ctx, s.db, &site); err != nil {
		s.log.Error("failed to update site config", zap.String("site_id", req.SiteID), zap.Error(err))
		return domain.SiteConfig{}, fmt.Errorf("update site config: %w", err)
	}
	s.cache.Invalidate(ctx, site.ID.String())

	return domain.SiteConfig{
		BadgeStyle: site.BadgeStyle,
		BadgeColor: site.BadgeColor,
		BadgeLabel: site.BadgeLabel,
		BadgeLogo:  site.BadgeLogo,
		Domain:     site.Domain,
	}, nil
}

func (s *Service) BadgeConfig(ctx context.Context, id string) (badge.Config, error) {
	defaults := s.badges.Get().Defaults()

	siteID, err := parseID(id)
	if err != nil {
		return defaults, nil
	}
	key := siteID.String()
	if cfg, ok := s.cache.GetBadgeConfig(ctx, key); ok {
		return cfg, nil
	}

	site, err := s.repo.FindByID(ctx, s.db, siteID)
	if err != nil {
		s.log.Error("failed to load badge config", zap.String("site_id", id), zap.Error(err))
		return defaults, fmt.Errorf("find site: %w", err)
	}
	if site == nil {
		return defaults, nil
	}

	cfg := badge.Config{
		Style: badge.Style(site.BadgeStyle),
		Color: site.BadgeColor,
		Label: site.BadgeLabel,
	}
	if site.BadgeLogo != nil {
		cfg.Logo = *site.BadgeLogo
	}
	s.cache.SetBadgeConfig(ctx, key, cfg)
	return cfg, nil
}

func (s *Service) Stats(ctx context.Context) (domain.SiteStats, error) {
	stats, err := s.repo.CountAll(ctx, s.db)
	if err != nil {
		return domain.SiteStats{}, fmt.Errorf("count sites: %w", err)
	}
	return stats, nil
}

func (s *Service) validColor(value string) bool {
	if hexColor.MatchString(value) {
		return true
	}
	resolved := s.badges.Renderer().ResolveColor(value)
	return resolved != "#"+strings.TrimPrefix(value, "#")
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed, nil
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
