package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/campus-ops-api/api/swagger"
	"github.com/noah-isme/campus-ops-api/internal/handler"
	"github.com/noah-isme/campus-ops-api/internal/middleware"
	"github.com/noah-isme/campus-ops-api/internal/models"
	"github.com/noah-isme/campus-ops-api/internal/realtime"
	"github.com/noah-isme/campus-ops-api/internal/repository"
	"github.com/noah-isme/campus-ops-api/internal/service"
	"github.com/noah-isme/campus-ops-api/pkg/cache"
	"github.com/noah-isme/campus-ops-api/pkg/config"
	"github.com/noah-isme/campus-ops-api/pkg/database"
	"github.com/noah-isme/campus-ops-api/pkg/jobs"
	"github.com/noah-isme/campus-ops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-ops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-ops-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-ops-api/pkg/ratelimit"
	"github.com/noah-isme/campus-ops-api/pkg/tracing"
)

const serviceName = "campus-ops-api"

// @title Campus Operations API
// @version 1.0.0
// @description Administrative tasks and exam scheduling behind a permission-gated mutation boundary.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.Env, cfg.Tracing, nil)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logr.Warn("trace flush failed", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	checks := map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return database.Ping(ctx, db) },
	}

	limiter, redisClient := newLimiter(ctx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	metrics := service.NewMetricsService()

	channel := ""
	if cfg.Realtime.Enabled {
		channel = cfg.Realtime.Channel
	}
	taskRepo := repository.NewTaskRepository(db, channel)
	examRepo := repository.NewExamRepository(db, channel)
	auditRepo := repository.NewAuditRepository(db, channel)

	auditSvc := service.NewAuditService(auditRepo, cfg.Audit.DefaultLimit, logr)
	gate := service.NewGate(limiter, nil, auditSvc, metrics, logr, service.GateConfig{Timeout: cfg.Mutations.Timeout})

	queue := jobs.NewQueue("side-effects", jobs.QueueConfig{
		Workers:    cfg.SideEffects.Workers,
		MaxRetries: cfg.SideEffects.Retries,
		RetryDelay: 2 * time.Second,
		JobTimeout: 30 * time.Second,
		Logger:     logr,
		Observer:   metrics.ObserveSideEffect,
	})
	effects := service.NewSideEffectDispatcher(queue, logr)

	taskSvc := service.NewTaskService(taskRepo, gate, effects, logr)
	examSvc := service.NewExamService(examRepo, gate, effects, nil, logr)
	effects.HandleSummaries(service.ExtractiveSummarizer{}, taskSvc)
	effects.HandleNotifications(service.LogNotifier{Logger: logr})

	identity := service.NewIdentityService(service.IdentityConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		Expiry: cfg.JWT.Expiration,
	}, logr)

	broker := realtime.NewBroker()
	sync := realtime.NewSynchronizer(broker, map[models.Collection]realtime.Source{
		models.CollectionTasks:     realtime.TaskSource(taskRepo, cfg.Realtime.SnapshotLimit),
		models.CollectionExams:     realtime.ExamSource(examRepo, cfg.Realtime.SnapshotLimit),
		models.CollectionAuditLogs: realtime.AuditSource(auditRepo, cfg.Realtime.SnapshotLimit),
	}, metrics, logr)

	corsPolicy := corsmiddleware.NewPolicy(cfg.CORS.AllowedOrigins)
	router := newRouter(cfg, logr, corsPolicy, metrics, identity, checks, routes{
		tasks:    handler.NewTaskHandler(taskSvc),
		exams:    handler.NewExamHandler(examSvc),
		audit:    handler.NewAuditHandler(auditSvc),
		realtime: handler.NewRealtimeHandler(sync, corsPolicy.CheckOrigin, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var feed *realtime.PGFeed
	if cfg.Realtime.Enabled {
		if feed, err = realtime.NewPGFeed(cfg.Database.DSN(), cfg.Realtime.Channel, broker, logr); err != nil {
			return fmt.Errorf("start change feed: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	queue.Start(gctx)
	if feed != nil {
		g.Go(func() error { return feed.Run(gctx) })
	}

	g.Go(func() error {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logr.Info("server shutting down")
		err := srv.Shutdown(shutdownCtx)
		queue.Stop()
		return err
	})

	return g.Wait()
}

// newLimiter prefers the shared Redis counters and falls back to in-process
// buckets when Redis is unreachable.
func newLimiter(ctx context.Context, cfg *config.Config, logr *zap.Logger) (ratelimit.Limiter, *redis.Client) {
	rules := ratelimit.Rules{
		service.RateTaskWrite:   {Limit: cfg.RateLimit.TaskWrite, Window: cfg.RateLimit.Window},
		service.RateTaskComment: {Limit: cfg.RateLimit.TaskComment, Window: cfg.RateLimit.Window},
		service.RateExamWrite:   {Limit: cfg.RateLimit.ExamWrite, Window: cfg.RateLimit.Window},
	}
	if cfg.RateLimit.Backend != config.RateLimitRedis {
		return ratelimit.NewMemory(rules), nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-memory rate limits", zap.Error(err))
		return ratelimit.NewMemory(rules), nil
	}
	return ratelimit.NewRedis(client, rules, "campus-ops:rl"), client
}

type routes struct {
	tasks    *handler.TaskHandler
	exams    *handler.ExamHandler
	audit    *handler.AuditHandler
	realtime *handler.RealtimeHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, cors corsmiddleware.Policy, metrics *service.MetricsService, identity *service.IdentityService, checks map[string]handler.Pinger, h routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(cors.Middleware())
	r.Use(middleware.Metrics(metrics))

	ops := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction && cfg.Swagger.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(identity))

	tasks := api.Group("/tasks")
	tasks.GET("", middleware.RequirePermission(models.PermTaskView), h.tasks.List)
	tasks.POST("", middleware.RequirePermission(models.PermTaskCreate), h.tasks.Create)
	tasks.GET("/:id", middleware.RequirePermission(models.PermTaskView), h.tasks.Get)
	tasks.PATCH("/:id/status", middleware.RequirePermission(models.PermTaskEdit), h.tasks.UpdateStatus)
	tasks.POST("/:id/comments", middleware.RequirePermission(models.PermTaskComment), h.tasks.AddComment)
	tasks.PATCH("/:id/assignee", middleware.RequirePermission(models.PermTaskEdit), h.tasks.Assign)

	exams := api.Group("/exams")
	exams.GET("", middleware.RequirePermission(models.PermExamView), h.exams.List)
	exams.POST("", middleware.RequirePermission(models.PermExamCreate), h.exams.Create)
	exams.POST("/conflicts/preview", middleware.RequirePermission(models.PermExamView), h.exams.PreviewConflicts)
	exams.GET("/:id", middleware.RequirePermission(models.PermExamView), h.exams.Get)
	exams.PUT("/:id", middleware.RequirePermission(models.PermExamEdit), h.exams.Update)
	exams.DELETE("/:id", middleware.RequirePermission(models.PermExamDelete), h.exams.Delete)
	exams.POST("/:id/publish", middleware.RequirePermission(models.PermExamPublish), h.exams.Publish)

	audit := api.Group("/audit-logs", middleware.RequirePermission(models.PermAuditView))
	audit.GET("", h.audit.List)
	audit.GET("/export", h.audit.Export)

	api.GET("/realtime/:collection", h.realtime.Stream)

	return r
}
