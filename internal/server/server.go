package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	analyticsdomain "github.com/smallbiznis/pulse/internal/analytics/domain"
	"github.com/smallbiznis/pulse/internal/cache"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"github.com/smallbiznis/pulse/internal/kv"
	obsmiddleware "github.com/smallbiznis/pulse/internal/observability/logger"
	"github.com/smallbiznis/pulse/internal/ratelimit"
	"github.com/smallbiznis/pulse/internal/realtime"
	"github.com/smallbiznis/pulse/internal/stream"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	store        kv.Store
	cache        *cache.Cache
	analyticsSvc analyticsdomain.Service
	realtimeSvc  *realtime.Engine
	streams      *stream.Factory
	limiter      *ratelimit.RefreshLimiter
	clock        clock.Clock
	log          *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Store        kv.Store
	Cache        *cache.Cache
	AnalyticsSvc analyticsdomain.Service
	RealtimeSvc  *realtime.Engine
	Streams      *stream.Factory
	Limiter      *ratelimit.RefreshLimiter `optional:"true"`
	Clock        clock.Clock
	Log          *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		store:        p.Store,
		cache:        p.Cache,
		analyticsSvc: p.AnalyticsSvc,
		realtimeSvc:  p.RealtimeSvc,
		streams:      p.Streams,
		limiter:      p.Limiter,
		clock:        p.Clock,
		log:          p.Log.Named("http.server"),
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerStreamRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/healthz", s.HealthCheck)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/dashboard", s.OrgContext())

	api.GET("/overview", s.GetOverview)
	api.GET("/stats", s.GetStats)
	api.GET("/breakdown", s.GetBreakdown)
	api.GET("/clients", s.GetClients)
	api.GET("/kpis", s.GetKPIs)
	api.GET("/realtime", s.GetRealtime)
	api.POST("/refresh", s.PostRefresh)
}

func (s *Server) registerStreamRoutes() {
	s.engine.GET("/ws/dashboard", s.OrgContext(), s.StreamDashboard)
}
