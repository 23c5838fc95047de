package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/fhsh/makeup-exam-api/api/swagger"
	"github.com/fhsh/makeup-exam-api/internal/handler"
	"github.com/fhsh/makeup-exam-api/internal/middleware"
	"github.com/fhsh/makeup-exam-api/internal/repository"
	"github.com/fhsh/makeup-exam-api/internal/service"
	"github.com/fhsh/makeup-exam-api/pkg/cache"
	"github.com/fhsh/makeup-exam-api/pkg/config"
	"github.com/fhsh/makeup-exam-api/pkg/database"
	"github.com/fhsh/makeup-exam-api/pkg/export"
	"github.com/fhsh/makeup-exam-api/pkg/logger"
	reqidmiddleware "github.com/fhsh/makeup-exam-api/pkg/middleware/requestid"
	"github.com/fhsh/makeup-exam-api/pkg/roster"
)

// @title Makeup Exam API
// @version 1.0.0
// @description Makeup exam roster ingestion and student lookup
// @BasePath /
// @schemes http https

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
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	auth, err := service.NewAdminAuthenticator(cfg.Admin.Token, logr)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	metrics := service.NewMetricsService()
	examRepo := repository.NewMakeupExamRepository(db)

	var lookupCache *service.LookupCache
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		// The lookup cache is optional; serve from the database instead.
		logr.Warn("redis unavailable, lookup cache disabled", zap.Error(err))
	} else if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient)
		defer cacheRepo.Close() //nolint:errcheck
		lookupCache = service.NewLookupCache(cacheRepo, metrics, cfg.Lookup.CacheTTL, logr)
	}
	lookupSvc := service.NewLookupService(examRepo, lookupCache, metrics, logr)
	ingestSvc := service.NewIngestionService(auth, roster.NewParser(), examRepo, lookupSvc, metrics, logr, service.IngestionServiceConfig{
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxFileSize:       cfg.Upload.MaxFileSizeBytes,
		ParseWorkers:      cfg.Upload.ParseWorkers,
		ParseTimeout:      cfg.Upload.ParseTimeout,
	})
	rosterSvc := service.NewRosterService(examRepo, metrics, logr)
	exportSvc := service.NewExportService(examRepo, logr, export.NewCSVExporter(), export.NewPDFExporter(cfg.Export.PDFFontPath), export.NewXLSXExporter())

	if _, err := rosterSvc.Summary(ctx); err != nil {
		logr.Warn("failed to read initial roster size", zap.Error(err))
	}

	ingestSvc.Start(ctx)
	defer ingestSvc.Stop()

	r := gin.New()
	r.MaxMultipartMemory = cfg.Upload.MaxFileSizeBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(cors.New(corsConfig(cfg.CORS)))

	handler.RegisterRoutes(r, handler.Routes{
		Admin:     handler.NewAdminHandler(ingestSvc, rosterSvc, exportSvc, cfg.Upload.MaxFileSizeBytes),
		Exams:     handler.NewExamHandler(lookupSvc),
		Health:    handler.NewHealthHandler(examRepo, metrics, logr),
		AdminAuth: middleware.AdminToken(auth),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func corsConfig(cfg config.CORSConfig) cors.Config {
	c := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowedOrigins
	}
	c.AllowHeaders = append(c.AllowHeaders, middleware.AdminTokenHeader, "X-Request-ID")
	c.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	return c
}
