package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appmetrics "github.com/Marseau/UBS-sub017/internal/application/metrics"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/cache"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/config"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/logger"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/persistence"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/scheduler"
	"github.com/Marseau/UBS-sub017/internal/infrastructure/telemetry"
	"github.com/Marseau/UBS-sub017/internal/interfaces/http/handler"
	"github.com/Marseau/UBS-sub017/internal/interfaces/http/middleware"
	"github.com/Marseau/UBS-sub017/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting metrics service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize OpenTelemetry tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	// Connect to the database
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)

	// Metrics cache (Redis or in-memory, per config)
	metricsCache, err := cache.NewMetricsCache(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics cache", zap.Error(err))
	}
	if metricsCache != nil {
		defer func() {
			if err := metricsCache.Close(); err != nil {
				log.Error("Failed to close metrics cache", zap.Error(err))
			}
		}()
	}

	// Repositories
	recordsRepo := persistence.NewMetricsRecordRepository(db.DB)
	ledgerRepo := persistence.NewRunLedgerRepository(db.DB)
	eventStore := persistence.NewEventStoreRepository(db.DB)
	tenantRepo := persistence.NewGormTenantRepository(db.DB)

	// Application services
	calculator := appmetrics.NewTenantMetricsCalculator(eventStore, log)
	recalcService := appmetrics.NewRecalculationService(
		calculator,
		tenantRepo,
		recordsRepo,
		ledgerRepo,
		eventStore,
		metricsCache,
		appmetrics.RecalculationConfig{
			MaxConcurrency:  cfg.Recalc.MaxConcurrency,
			BatchSize:       cfg.Recalc.BatchSize,
			TaskTimeout:     cfg.Recalc.TaskTimeout,
			RetryAttempts:   cfg.Recalc.RetryAttempts,
			RetryDelay:      cfg.Recalc.RetryDelay,
			CacheEnabled:    cfg.Cache.Enabled,
			LedgerRetention: cfg.Recalc.LedgerRetention,
		},
		log,
	)

	// Daily recalculation scheduler
	cronScheduler, err := scheduler.NewRecalcCronScheduler(scheduler.RecalcCronSchedulerConfig{
		Enabled:     cfg.Scheduler.Enabled,
		DailyHour:   cfg.Scheduler.DailyHour,
		DailyMinute: cfg.Scheduler.DailyMinute,
		CleanupHour: cfg.Scheduler.CleanupHour,
	}, recalcService, log)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	if err := cronScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP layer
	engine := router.NewEngine(log, middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	})

	metricsHandler := handler.NewMetricsHandler(recalcService, recordsRepo, ledgerRepo, log)
	healthHandler := handler.NewHealthHandler(db, log)

	r := router.NewRouter(engine)
	r.Register(metricsHandler).
		Register(healthHandler)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cronScheduler.Stop(ctx); err != nil {
		log.Error("Scheduler shutdown error", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Tracer shutdown error", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
