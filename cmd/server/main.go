package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	catalogapp "github.com/pricedragon/backend/internal/application/catalog"
	ingestapp "github.com/pricedragon/backend/internal/application/ingestion"
	matchingapp "github.com/pricedragon/backend/internal/application/matching"
	"github.com/pricedragon/backend/internal/domain/ingestion"
	"github.com/pricedragon/backend/internal/domain/matching"
	"github.com/pricedragon/backend/internal/infrastructure/cache"
	"github.com/pricedragon/backend/internal/infrastructure/config"
	"github.com/pricedragon/backend/internal/infrastructure/event"
	"github.com/pricedragon/backend/internal/infrastructure/logger"
	"github.com/pricedragon/backend/internal/infrastructure/persistence"
	"github.com/pricedragon/backend/internal/infrastructure/platform"
	"github.com/pricedragon/backend/internal/infrastructure/scheduler"
	"github.com/pricedragon/backend/internal/infrastructure/telemetry"
	"github.com/pricedragon/backend/internal/interfaces/http/handler"
	"github.com/pricedragon/backend/internal/interfaces/http/middleware"
	"github.com/pricedragon/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

//	@title			PriceDragon API
//	@version		1.0
//	@description	Cross-platform price ingestion, identity resolution and price queries
//	@BasePath		/api/v1

const serviceVersion = "1.0.0"

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync(log) }()

	log.Info("Starting PriceDragon",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Telemetry
	meterProvider, err := telemetry.NewMeterProvider(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	meter := meterProvider.Meter("pricedragon")

	// Database
	gormLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(200*time.Millisecond),
		logger.WithIgnoreRecordNotFoundError(true),
	)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLogger)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connected",
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName),
	)
	if cfg.Database.Driver == "sqlite" || cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
	}

	dbMetrics, err := telemetry.NewDBMetrics(meter, telemetry.DBMetricsConfig{}, log)
	if err != nil {
		log.Fatal("Failed to create database metrics", zap.Error(err))
	}
	if err := dbMetrics.Instrument(rootCtx, db.DB); err != nil {
		log.Warn("Failed to instrument database", zap.Error(err))
	}

	ingestMetrics, err := telemetry.NewIngestionMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create ingestion metrics", zap.Error(err))
	}

	// Run locks
	locker, err := cache.NewRunLockerFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(rootCtx)
	if err != nil {
		log.Fatal("Failed to create run locker", zap.Error(err))
	}

	// Repositories
	identityStore := persistence.NewGormIdentityStore(db.DB)
	ledger := persistence.NewGormPriceLedger(db.DB)
	edges := persistence.NewGormMatchEdgeRepository(db.DB)
	runs := persistence.NewGormRunReportRepository(db.DB)

	// Matching
	policy := cfg.Matching.Policy()
	matcher := matchingapp.NewMatcherService(identityStore, edges, matching.NewScorer(policy), log)

	executor := matchingapp.NewMatchJobExecutor(matcher)
	executor.SetMetrics(ingestMetrics)
	matchScheduler, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Workers:       cfg.Worker.Workers,
		QueueSize:     cfg.Worker.QueueSize,
		JobTimeout:    cfg.Worker.JobTimeout,
		RetryAttempts: cfg.Worker.MaxRetries,
		RetryDelay:    cfg.Worker.RetryDelay,
	}, executor, log.Named("match-worker"))
	if err != nil {
		log.Fatal("Failed to create match scheduler", zap.Error(err))
	}
	if err := matchScheduler.Start(rootCtx); err != nil {
		log.Fatal("Failed to start match scheduler", zap.Error(err))
	}
	matchQueue := matchingapp.NewMatchJobQueue(matchScheduler, cfg.Worker.MaxRetries)

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	if !cfg.Ingestion.SyncMatching {
		refreshHandler := matchingapp.NewMatchRefreshHandler(matchQueue, log)
		eventBus.Subscribe(refreshHandler, refreshHandler.EventTypes()...)
		log.Info("Match refresh handler registered", zap.Strings("events", refreshHandler.EventTypes()))
	}
	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Ingestion
	orchestrator := ingestapp.NewOrchestrator(
		ingestion.NewNormalizer(ingestion.WithDefaultCurrency(cfg.Ingestion.DefaultCurrency)),
		persistence.NewGormTransactionScope(db.DB),
		runs,
		locker,
		ingestapp.Config{
			SyncMatching:  cfg.Ingestion.SyncMatching,
			RunLockTTL:    cfg.Ingestion.RunLockTTL,
			RunTimeout:    cfg.Ingestion.RunTimeout,
			SnippetLength: cfg.Ingestion.SnippetLength,
			MaxErrorRatio: cfg.Ingestion.MaxErrorRatio,
		},
		log.Named("ingestion"),
	)
	orchestrator.SetEventPublisher(eventBus)
	orchestrator.SetMatchRefresher(matcher)
	orchestrator.SetMetrics(ingestMetrics)

	queries := catalogapp.NewQueryService(identityStore, ledger, edges, runs, policy, log)
	scrapers := platform.NewDefaultRegistry(cfg.Scrapers, log.Named("scraper"))
	log.Info("Platform adapters registered", zap.Strings("platforms", scrapers.Platforms()))

	// Handlers
	systemHandler := handler.NewSystemHandler(cfg.App.Name, serviceVersion).
		AddCheck("database", db.Ping)
	if cfg.Redis.Addr() != "" {
		systemHandler.AddCheck("run_locks", func(ctx context.Context) error {
			release, err := locker.Acquire(ctx, "health", time.Second)
			if err != nil {
				return err
			}
			return release(ctx)
		})
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.AllowOrigins
	}

	engine, err := router.NewEngine(router.EngineOptions{
		Logger:         log,
		CORS:           corsConfig,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Metrics:        httpMetrics,
	})
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}

	ingestLimiter := middleware.NewRateLimiter(cfg.HTTP.IngestRateLimit, cfg.HTTP.IngestRateWindow)
	defer ingestLimiter.Stop()

	r := router.NewRouter(engine)
	router.RegisterAPI(r, router.Handlers{
		Entries: handler.NewEntryHandler(queries),
		Prices:  handler.NewPriceHandler(queries),
		Ingest:  handler.NewIngestHandler(orchestrator, queries, scrapers, matchQueue),
		System:  systemHandler,
	}, middleware.RateLimit(ingestLimiter))
	r.Setup()
	log.Debug("Routes mounted", zap.Strings("routes", r.Routes()))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := eventBus.Stop(ctx); err != nil {
		log.Warn("Event bus stop failed", zap.Error(err))
	}
	if err := matchScheduler.Stop(ctx); err != nil {
		log.Warn("Match scheduler stop failed", zap.Error(err))
	}
	cancelRoot()
	dbMetrics.Stop()
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := locker.Close(); err != nil {
		log.Warn("Run locker close failed", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		log.Error("Failed to close database", zap.Error(err))
	}

	log.Info("Server exited")
}
