package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	migrationapp "github.com/crmigrate/backend/internal/application/migration"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/cache"
	"github.com/crmigrate/backend/internal/infrastructure/config"
	"github.com/crmigrate/backend/internal/infrastructure/logger"
	"github.com/crmigrate/backend/internal/infrastructure/persistence"
	"github.com/crmigrate/backend/internal/infrastructure/provider"
	"github.com/crmigrate/backend/internal/infrastructure/storage"
	"github.com/crmigrate/backend/internal/infrastructure/telemetry"
	"github.com/crmigrate/backend/internal/interfaces/http/handler"
	"github.com/crmigrate/backend/internal/interfaces/http/middleware"
	"github.com/crmigrate/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//	@title			CRM Migration API
//	@version		1.0
//	@description	Imports contacts, properties, claims and leads from JobNimbus and AccuLynx

//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

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

	log.Info("Starting CRM migration service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, otelCfg, cfg.Telemetry.LogsEnabled, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	// GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithFullSQL(cfg.Telemetry.DBLogFullSQL),
	)
	db, err := persistence.Open(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	runRepo := persistence.NewGormRunRepository(db.DB)
	mappingRepo := persistence.NewGormMappingRepository(db.DB)
	recordStore := persistence.NewGormRecordStore(db.DB)

	adapterCfg := provider.Config{
		PageSize:    cfg.Migration.PageSize,
		HTTPTimeout: cfg.Migration.HTTPTimeout,
		Retry: provider.RetryPolicy{
			Attempts:     cfg.Migration.RetryAttempts,
			InitialDelay: cfg.Migration.RetryInitialDelay,
			MaxDelay:     cfg.Migration.RetryMaxDelay,
		},
		JobNimbusBaseURL: cfg.Migration.JobNimbusBaseURL,
		AccuLynxBaseURL:  cfg.Migration.AccuLynxBaseURL,
	}
	registry := migrationapp.NewAdapterRegistry(
		provider.NewJobNimbusAdapter(adapterCfg, provider.WithLogger(log)),
		provider.NewAccuLynxAdapter(adapterCfg, provider.WithLogger(log)),
	)

	runLock, redisClient := newRunLock(ctx, cfg, log)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
	}

	serviceOpts := []migrationapp.Option{migrationapp.WithLogger(log)}

	migrationMetrics, err := telemetry.NewMigrationMetrics(meterProvider.Meter("crmigrate/migration"))
	if err != nil {
		log.Fatal("Failed to create migration metrics", zap.Error(err))
	}
	serviceOpts = append(serviceOpts, migrationapp.WithMetrics(migrationMetrics))

	// reportLinker stays a nil interface when archiving is disabled
	var reportLinker handler.ReportLinker
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create report archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare report bucket", zap.Error(err), zap.String("bucket", archive.Bucket()))
		}
		serviceOpts = append(serviceOpts, migrationapp.WithReportArchive(archive))
		reportLinker = archive
		log.Info("Error report archive enabled", zap.String("bucket", archive.Bucket()))
	}

	migrationService := migrationapp.NewMigrationService(
		registry,
		runRepo,
		mappingRepo,
		recordStore,
		runLock,
		migrationapp.Config{
			MaxReportedErrors: cfg.Migration.MaxReportedErrors,
			MaxArchivedErrors: cfg.Migration.MaxArchivedErrors,
			MaxDuration:       cfg.Migration.MaxDuration,
			LockTTL:           cfg.Migration.LockTTL,
		},
		serviceOpts...,
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	orgCfg := middleware.DefaultOrgContextConfig()
	orgCfg.Logger = log
	engine.Use(
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     tracerProvider.IsEnabled(),
		}),
		middleware.RequestID(),
		middleware.OrgContext(orgCfg),
		logger.GinMiddleware(log),
		middleware.TracingAttributeInjector(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			Enabled:       meterProvider.IsEnabled(),
			Logger:        log,
		}),
		middleware.Secure(),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	engine.GET("/health", healthHandler(db))
	engine.GET("/healthz", healthHandler(db))

	migrationHandler := handler.NewMigrationHandler(migrationService, reportLinker)
	routes := router.NewRouter(engine).
		Register(handler.MigrationRoutes(migrationHandler)).
		Setup()
	for _, route := range routes {
		log.Debug("Registered route", zap.Stringer("route", route))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   writeTimeout(cfg),
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
}

// newRunLock selects the per-org lock backend. The returned client is nil
// for the in-memory backend.
func newRunLock(ctx context.Context, cfg *config.Config, log *zap.Logger) (migration.RunLock, *redis.Client) {
	if cfg.Migration.LockBackend == "memory" {
		log.Warn("Using in-memory migration lock, runs are only serialized within this instance")
		return cache.NewInMemoryRunLock(clock.WallClock), nil
	}

	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr()))
	}
	log.Info("Redis migration lock enabled", zap.String("addr", cfg.Redis.Addr()))
	return cache.NewRedisRunLock(client, cache.DefaultRunLockPrefix), client
}

// writeTimeout keeps the server from cutting off a synchronous run before
// the run deadline fires.
func writeTimeout(cfg *config.Config) time.Duration {
	wt := cfg.HTTP.WriteTimeout
	if floor := cfg.Migration.MaxDuration + 30*time.Second; wt > 0 && wt < floor {
		return floor
	}
	return wt
}

// healthHandler reports database reachability and pool usage
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		health, err := db.Check(ctx)
		status, code := "healthy", http.StatusOK
		if err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": health,
		})
	}
}
