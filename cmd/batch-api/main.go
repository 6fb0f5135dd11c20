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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/batch-admin-api/api/swagger"
	"github.com/noah-isme/batch-admin-api/internal/handler"
	"github.com/noah-isme/batch-admin-api/internal/middleware"
	"github.com/noah-isme/batch-admin-api/internal/models"
	"github.com/noah-isme/batch-admin-api/internal/repository"
	"github.com/noah-isme/batch-admin-api/internal/service"
	"github.com/noah-isme/batch-admin-api/pkg/cache"
	"github.com/noah-isme/batch-admin-api/pkg/config"
	"github.com/noah-isme/batch-admin-api/pkg/database"
	"github.com/noah-isme/batch-admin-api/pkg/export"
	"github.com/noah-isme/batch-admin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/batch-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/batch-admin-api/pkg/middleware/requestid"
	"github.com/noah-isme/batch-admin-api/pkg/notify"
	"github.com/noah-isme/batch-admin-api/pkg/storage"
)

// @title Batch Admin API
// @version 1.0.0
// @description Training batch administration: rosters, meeting attendance, points ledger and weekly best performers.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type handlers struct {
	auth       *handler.AuthHandler
	batches    *handler.BatchHandler
	attendance *handler.AttendanceHandler
	points     *handler.PointsHandler
	weekly     *handler.WeeklyPerformerHandler
	metrics    *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable; leaderboard cache and batch change feed disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
	}

	uploads, err := storage.NewArchive(cfg.Attendance.UploadDir)
	if err != nil {
		logr.Fatal("failed to prepare upload archive", zap.Error(err))
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	pointRepo := repository.NewPointUpdateRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	weeklyRepo := repository.NewWeeklyPerformerRepository(db)
	feed := repository.NewBatchFeedRepository(redisClient, logr)
	cacheRepo := repository.NewCacheRepository(redisClient, "batch-admin", logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Leaderboard.CacheTTL, logr, cfg.Leaderboard.CacheEnabled && redisClient != nil)
	notifier := service.NewNotificationService(notify.FromConfig(cfg.Notifications, logr), cfg.Notifications, metricsSvc, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	renderer := export.NewRenderer()
	pointsCfg := service.PointsConfig{Baseline: cfg.Points.Baseline, Location: cfg.Attendance.Location()}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	batchSvc := service.NewBatchService(batchRepo, feed, cacheSvc, validate, logr)
	pointsSvc := service.NewPointsService(batchRepo, pointRepo, feed, cacheSvc, notifier, renderer, metricsSvc, validate, logr, pointsCfg)
	attendanceSvc := service.NewAttendanceService(batchRepo, attendanceRepo, service.NewAttendanceMatcher(nil), notifier, uploads, metricsSvc, validate, logr, cfg.Attendance)
	weeklySvc := service.NewWeeklyPerformerService(batchRepo, pointRepo, weeklyRepo, pointsSvc, notifier, renderer, validate, logr, pointsCfg)

	deps := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		deps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	h := handlers{
		auth:       handler.NewAuthHandler(authSvc),
		batches:    handler.NewBatchHandler(batchSvc),
		attendance: handler.NewAttendanceHandler(attendanceSvc, cfg.Attendance.MaxUploadBytes),
		points:     handler.NewPointsHandler(pointsSvc),
		weekly:     handler.NewWeeklyPerformerHandler(weeklySvc),
		metrics:    handler.NewMetricsHandler(metricsSvc, deps),
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), h, middleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(api *gin.RouterGroup, h handlers, authenticate gin.HandlerFunc) {
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(authenticate)

	managers := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	admins := middleware.RequireRoles(models.RoleAdmin)

	secured.GET("/auth/me", h.auth.Me)

	batches := secured.Group("/batches")
	batches.GET("", h.batches.List)
	batches.POST("", managers, h.batches.Create)
	batches.GET("/:id", h.batches.Get)
	batches.PUT("/:id", managers, h.batches.Update)
	batches.DELETE("/:id", managers, h.batches.Delete)
	batches.POST("/:id/students", managers, h.batches.AddStudent)
	batches.PUT("/:id/students/:studentId", managers, h.batches.UpdateStudent)
	batches.DELETE("/:id/students/:studentId", managers, h.batches.DeleteStudent)
	batches.GET("/:id/watch", h.batches.Watch)

	batches.POST("/:id/attendance/preview", h.attendance.Preview)
	batches.POST("/:id/attendance", h.attendance.Apply)
	batches.GET("/:id/attendance", h.attendance.List)
	secured.GET("/attendance/:sessionId", h.attendance.Get)
	secured.GET("/attendance/:sessionId/source", h.attendance.Source)

	batches.POST("/:id/points", h.points.Record)
	batches.GET("/:id/points", h.points.History)
	batches.GET("/:id/students/:studentId/aggregates", h.points.Aggregates)
	batches.GET("/:id/leaderboard", h.points.Leaderboard)
	batches.GET("/:id/leaderboard/export", h.points.ExportLeaderboard)
	batches.POST("/:id/points/reset", managers, h.points.Reset)
	batches.POST("/:id/points/restore", managers, h.points.Restore)

	batches.POST("/:id/weekly-performers", managers, h.weekly.SaveAndReset)
	batches.POST("/:id/weekly-performers/manual", managers, h.weekly.SaveManual)
	batches.GET("/:id/weekly-performers", h.weekly.List)
	batches.GET("/:id/weekly-performers/export", h.weekly.Export)
	secured.DELETE("/weekly-performers/:id", admins, h.weekly.Delete)
}
