package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tally/internal/admin"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/config"
	"github.com/smallbiznis/tally/internal/observability"
	obslogger "github.com/smallbiznis/tally/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tally/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tally/internal/observability/tracing"
	"github.com/smallbiznis/tally/internal/report"
	sitedomain "github.com/smallbiznis/tally/internal/site/domain"
	trackingdomain "github.com/smallbiznis/tally/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

const shutdownTimeout = 10 * time.Second

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORS())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	sites    sitedomain.Service
	tracking trackingdomain.Service
	admin    *admin.Authenticator
	reports  report.Provider
	badges   *config.BadgeConfigHolder
	metrics  *obsmetrics.Metrics
	clock    clock.Clock
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	Sites    sitedomain.Service
	Tracking trackingdomain.Service
	Admin    *admin.Authenticator
	Reports  report.Provider
	Badges   *config.BadgeConfigHolder
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	s := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		sites:    p.Sites,
		tracking: p.Tracking,
		admin:    p.Admin,
		reports:  p.Reports,
		badges:   p.Badges,
		metrics:  p.Metrics,
		clock:    c,
	}

	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/widget.js", s.Widget)

	api := s.engine.Group("/api")

	api.POST("/register", s.Register)
	api.GET("/badge/:siteId", s.Badge)

	api.POST("/track/:siteId", s.Track)
	api.POST("/consent/:siteId", s.UpdateConsent)

	api.GET("/count/:siteId", s.Count)
	api.GET("/count/:siteId/increment", NoCache(), s.Increment)

	api.GET("/stats/:siteId", s.Stats)
	api.GET("/stats/:siteId/report", s.StatsReport)

	api.PUT("/config/:siteId", s.UpdateConfig)

	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

func RunHTTP(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger, shutdowner fx.Shutdowner) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
