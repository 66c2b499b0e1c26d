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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Weekly class timetable generation for SMA schools.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg.Env, cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, grid cache disabled", "error", err)
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Timetable.GridCacheTTL, logr, cacheEnabled)

	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	runRepo := repository.NewGenerationRunRepository(db)

	authSvc := service.NewAuthService(cfg.JWT, logr)
	catalogSvc := service.NewCatalogService(classRepo, subjectRepo, teacherRepo, logr)
	timetableSvc := service.NewTimetableService(service.TimetableServiceParams{
		Classes:  classRepo,
		Subjects: subjectRepo,
		Teachers: teacherRepo,
		Entries:  timetableRepo,
		Runs:     runRepo,
		Cache:    cacheSvc,
		Metrics:  metricsSvc,
		Config:   cfg.Timetable,
		Logger:   logr,
	})

	// One worker and no retries: runs are serialized, and a failed run is a
	// recorded outcome rather than something to replay.
	runQueue := jobs.NewQueue("timetable", timetableSvc.ProcessRunJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: cfg.Timetable.RunQueueSize,
		MaxRetries: 0,
		Logger:     logr,
	})
	timetableSvc.AttachQueue(runQueue)
	runQueue.Start(context.Background())

	timetableHandler := handler.NewTimetableHandler(timetableSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(internalmiddleware.Metrics(metricsSvc))

	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		status := gin.H{"status": "ready"}
		if cacheEnabled {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				status["cache"] = "unavailable"
			}
		}
		c.JSON(http.StatusOK, status)
	})
	router.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	adminOnly := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin))

	api := router.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))
	api.Use(internalmiddleware.WithResponseMeta())

	api.GET("/classes", catalogHandler.ListClasses)
	api.GET("/subjects", catalogHandler.ListSubjects)
	api.GET("/teachers", catalogHandler.ListTeachers)

	api.GET("/timetable/plan", adminOnly, timetableHandler.Plan)
	api.POST("/timetable/generate", adminOnly, timetableHandler.GenerateSchool)
	api.GET("/timetable/runs/:id", adminOnly, timetableHandler.GetRun)
	api.POST("/timetable/classes/:id/generate", adminOnly, timetableHandler.GenerateClass)
	api.GET("/timetable/classes/:id", timetableHandler.ClassGrid)
	api.GET("/timetable/teachers/:id", internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin), "SELF"), timetableHandler.TeacherGrid)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	// Let an in-flight generation run finish its bookkeeping before exit.
	runQueue.Stop()
}
