package server

import (
	"context"
	"net/http"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	"github.com/amrivadeneyra/lunari-sub001/internal/config"
	"github.com/amrivadeneyra/lunari-sub001/internal/conversation"
	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/observability"
	obsmiddleware "github.com/amrivadeneyra/lunari-sub001/internal/observability/logger"
	obsmetrics "github.com/amrivadeneyra/lunari-sub001/internal/observability/metrics"
	obstracing "github.com/amrivadeneyra/lunari-sub001/internal/observability/tracing"
	"github.com/amrivadeneyra/lunari-sub001/internal/quality"
	qualitydomain "github.com/amrivadeneyra/lunari-sub001/internal/quality/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/ratelimit"
	"github.com/amrivadeneyra/lunari-sub001/internal/sweep"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	conversation.Module,
	quality.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	clock           clock.Clock
	conversationSvc conversationdomain.Service
	qualitySvc      qualitydomain.Service
	sweeper         *sweep.Sweeper
	obsMetrics      *obsmetrics.Metrics
	ratingLimiter   *ratelimit.RatingLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	Clock           clock.Clock
	ConversationSvc conversationdomain.Service
	QualitySvc      qualitydomain.Service
	Sweeper         *sweep.Sweeper
	ObsMetrics      *obsmetrics.Metrics      `optional:"true"`
	RatingLimiter   *ratelimit.RatingLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		clock:           p.Clock,
		conversationSvc: p.ConversationSvc,
		qualitySvc:      p.QualitySvc,
		sweeper:         p.Sweeper,
		obsMetrics:      p.ObsMetrics,
		ratingLimiter:   p.RatingLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.CompanyContext())

	// -------- Conversations --------
	api.POST("/conversations", s.CreateConversation)
	api.GET("/conversations", s.ListConversations)
	api.GET("/conversations/:conversation_id", s.GetConversationByID)
	api.POST("/conversations/:conversation_id/messages", s.AppendMessage)
	api.GET("/conversations/:conversation_id/messages", s.ListConversationMessages)
	api.GET("/conversations/:conversation_id/metrics", s.GetConversationMetrics)
	api.POST("/conversations/:conversation_id/rating", s.RatingRateLimit(), s.SubmitRating)
	api.PATCH("/conversations/:conversation_id/live", s.SetConversationLive)

	// -------- Quality metrics --------
	api.GET("/metrics/response-time", s.GetAverageResponseTime)
	api.GET("/metrics/on-time", s.GetOnTimeRate)
	api.GET("/metrics/resolution", s.GetResolutionRate)
	api.GET("/metrics/satisfaction", s.GetSatisfactionAverage)
	api.GET("/metrics/summary", s.GetMetricsSummary)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/sweep/run", s.RunSweep)
}
