package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/erp/invsync/internal/application/billing"
	catalogapp "github.com/erp/invsync/internal/application/catalog"
	eventapp "github.com/erp/invsync/internal/application/event"
	intakeapp "github.com/erp/invsync/internal/application/intake"
	replicaapp "github.com/erp/invsync/internal/application/replica"
	"github.com/erp/invsync/internal/domain/shared"
	"github.com/erp/invsync/internal/infrastructure/cache"
	"github.com/erp/invsync/internal/infrastructure/config"
	"github.com/erp/invsync/internal/infrastructure/event"
	"github.com/erp/invsync/internal/infrastructure/lock"
	"github.com/erp/invsync/internal/infrastructure/logger"
	"github.com/erp/invsync/internal/infrastructure/messaging"
	"github.com/erp/invsync/internal/infrastructure/migration"
	"github.com/erp/invsync/internal/infrastructure/persistence"
	"github.com/erp/invsync/internal/infrastructure/telemetry"
	"github.com/erp/invsync/internal/interfaces/http/handler"
	"github.com/erp/invsync/internal/interfaces/http/middleware"
	"github.com/erp/invsync/internal/interfaces/http/router"
	"github.com/erp/invsync/migrations"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Consumer names scope idempotency keys, dead letters and broker subscriptions
const (
	statusConsumerName  = "catalog-status"
	replicaConsumerName = "replica-merge"
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
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting invsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("broker", cfg.Broker.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.App.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = loggerProvider.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilingServer,
		ApplicationName:   cfg.Telemetry.ServiceName,
		ProfileGoroutines: true,
		ProfileMutex:      true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// Initialize database connection with zap-backed GORM logger and tracing
	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.DBTraceEnabled
	dbTracingCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracingCfg.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	dbTracing := telemetry.NewDBTracingPlugin(dbTracingCfg, log)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, log, logger.SQLLogConfig{
		Level:     logger.GormLevel(cfg.Log.Level),
		SlowQuery: dbTracingCfg.SlowQueryThresh,
	}, dbTracing)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Database.MigrateOnStart {
		if err := migrateUp(db, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Redis backs the identity lock and the idempotency fast path when selected
	var redisClient redis.UniversalClient
	if cfg.Intake.LockDriver == config.StoreRedis || cfg.Consumer.IdempotencyStore == config.StoreRedis {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer func() {
			_ = client.Close()
		}()
		redisClient = client
		log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))
	}

	// Event codec and outbox
	versions := event.NewVersionRegistry()
	if err := event.RegisterSchemas(versions); err != nil {
		log.Fatal("Failed to register event schemas", zap.Error(err))
	}
	codec := event.NewPayloadCodec(versions)
	outboxPublisher := event.NewOutboxPublisher(codec).WithMaxRetries(cfg.Event.MaxRetries)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	deadLetterRepo := event.NewGormDeadLetterRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB, outboxPublisher)

	// Sync metrics
	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
		Meter:   meterProvider.Meter("invsync/sync"),
		Logger:  log,
		Backlog: outboxRepo,
	})
	if err != nil {
		log.Fatal("Failed to initialize sync metrics", zap.Error(err))
	}
	syncMetrics.StartBacklogCollection(ctx, cfg.Telemetry.BacklogInterval)
	defer syncMetrics.Stop()

	// Initialize repositories
	itemRepo := persistence.NewGormCatalogItemRepository(db.DB)
	incidentRepo := persistence.NewGormIncidentRepository(db.DB)
	ledgerRepo := persistence.NewGormStatusLedgerRepository(db.DB)
	lotRepo := persistence.NewGormLotRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	replicaRepo := persistence.NewGormReplicaRepository(db.DB)

	// Initialize application services
	locker, err := lock.NewIdentityLocker(cfg.Intake, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize identity lock", zap.Error(err))
	}
	intakeService := intakeapp.NewService(scope.IntakeScope(), lotRepo, incidentRepo, locker, log).
		WithMetrics(syncMetrics)
	invoiceService := billingapp.NewInvoiceService(scope.BillingScope(), invoiceRepo, billingapp.NewApprovalEventProducer(log), log)
	queryService := catalogapp.NewQueryService(itemRepo, incidentRepo, log)
	outboxService := eventapp.NewOutboxService(outboxRepo, deadLetterRepo, log)

	// Broker and consumers
	broker, err := messaging.NewBroker(ctx, cfg.Broker, cfg.Consumer, log)
	if err != nil {
		log.Fatal("Failed to initialize broker", zap.Error(err))
	}

	idempotencyStore, err := cache.NewIdempotencyStore(cfg.Consumer, redisClient, log)
	if err != nil {
		log.Fatal("Failed to initialize idempotency store", zap.Error(err))
	}
	if closer, ok := idempotencyStore.(io.Closer); ok {
		defer func() {
			_ = closer.Close()
		}()
	}

	statusConsumer := catalogapp.NewStatusUpdateConsumer(scope.CatalogScope(), ledgerRepo, codec, log).
		WithMetrics(syncMetrics)
	statusHandler := event.NewIdempotentHandler(statusConsumer, idempotencyStore, statusConsumerName, log,
		event.WithIdempotencyConfig(idempotencyConfig(cfg.Consumer)))
	statusDispatcher := event.NewDispatcher(statusConsumerName, deadLetterRepo, log, event.WithSyncMetrics(syncMetrics))
	statusDispatcher.Subscribe(statusHandler, statusHandler.EventTypes()...)

	mergeConsumer := replicaapp.NewMergeConsumer(replicaRepo, codec, log).WithMetrics(syncMetrics)
	replicaDispatcher := event.NewDispatcher(replicaConsumerName, deadLetterRepo, log, event.WithSyncMetrics(syncMetrics))
	replicaDispatcher.Subscribe(mergeConsumer, mergeConsumer.EventTypes()...)

	consumeCtx, stopConsumers := context.WithCancel(ctx)
	defer stopConsumers()
	for _, d := range []*event.Dispatcher{statusDispatcher, replicaDispatcher} {
		go func(d *event.Dispatcher) {
			if err := broker.Consume(consumeCtx, d); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Consumer stopped", zap.String("consumer", d.Consumer()), zap.Error(err))
			}
		}(d)
	}
	log.Info("Consumers started", zap.Strings("consumers", []string{statusConsumerName, replicaConsumerName}))

	// Outbox processor relays committed events to the broker
	var outboxProcessor *event.OutboxProcessor
	if cfg.Event.ProcessorEnabled {
		processorConfig := event.DefaultOutboxProcessorConfig()
		processorConfig.ProducerID = cfg.Event.ProducerID
		processorConfig.BatchSize = cfg.Event.BatchSize
		processorConfig.PollInterval = cfg.Event.PollInterval
		processorConfig.StaleAfter = cfg.Event.StaleAfter
		processorConfig.CleanupEnabled = cfg.Event.CleanupEnabled
		processorConfig.CleanupRetention = cfg.Event.CleanupRetention
		processorConfig.CleanupInterval = cfg.Event.CleanupInterval

		outboxProcessor = event.NewOutboxProcessor(outboxRepo, broker, processorConfig, log, syncMetrics)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		log.Info("Outbox processor started",
			zap.Int("batch_size", processorConfig.BatchSize),
			zap.Duration("poll_interval", processorConfig.PollInterval),
		)
	}

	// Initialize handlers
	checks := map[string]handler.HealthChecker{"database": db}
	if redisClient != nil {
		checks["redis"] = redisPing{client: redisClient}
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Version, checks).
		WithConsumerStats(func() any {
			return map[string]any{
				statusConsumerName: map[string]any{
					"dispatch":    statusDispatcher.Metrics().Stats(),
					"idempotency": statusHandler.GetMetrics().Stats(),
				},
				replicaConsumerName: map[string]any{
					"dispatch": replicaDispatcher.Metrics().Stats(),
				},
			}
		})

	// Setup Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("Invalid trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.MetricsEnabled,
	}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Timeout(cfg.HTTP.WriteTimeout))

	approvalLimiter := middleware.NewRateLimiter(cfg.HTTP.ApprovalRateLimit, cfg.HTTP.ApprovalRateWindow)
	defer approvalLimiter.Close()

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(router.Groups(router.Handlers{
		Lots:    handler.NewLotHandler(intakeService),
		Invoice: handler.NewInvoiceHandler(invoiceService),
		Catalog: handler.NewCatalogHandler(queryService),
		Outbox:  handler.NewOutboxHandler(outboxService),
		System:  systemHandler,
	}, middleware.RateLimitByKey(approvalLimiter, middleware.GetOperator))...)
	r.Setup()

	// Probes outside the versioned API
	engine.GET("/health", systemHandler.Health)
	engine.GET("/ping", systemHandler.Ping)

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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox processor", zap.Error(err))
		}
	}
	stopConsumers()
	if err := broker.Close(); err != nil {
		log.Error("Error closing broker", zap.Error(err))
	}

	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logger provider", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited")
}

func migrateUp(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	// The migrator is not closed: closing it closes the shared pool.
	m, err := migration.New(sqlDB, migrations.Files, log)
	if err != nil {
		return err
	}
	return m.Up()
}

func idempotencyConfig(cfg config.ConsumerConfig) shared.IdempotencyConfig {
	c := shared.DefaultIdempotencyConfig()
	if cfg.IdempotencyTTL > 0 {
		c.TTL = cfg.IdempotencyTTL
	}
	return c
}

// redisPing adapts a redis client to the health check interface
type redisPing struct {
	client redis.UniversalClient
}

func (p redisPing) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
