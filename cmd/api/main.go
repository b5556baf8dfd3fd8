package main

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"apflow/internal/audit"
	auditpg "apflow/internal/audit/postgres"
	"apflow/internal/config"
	"apflow/internal/database"
	"apflow/internal/database/migration"
	"apflow/internal/extraction"
	handlers "apflow/internal/http/handler"
	"apflow/internal/http/middleware"
	"apflow/internal/locker"
	"apflow/internal/notify"
	otelsetup "apflow/internal/otel"
	"apflow/internal/pipeline"
	"apflow/internal/reconcile"
	refdatapg "apflow/internal/refdata/postgres"
	repopg "apflow/internal/repository/postgres"
	"apflow/internal/service"
	"apflow/internal/storage"
	"apflow/internal/sweeper"
	"apflow/internal/validation"
	"apflow/internal/workflow"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	ctx := context.Background()

	shutdownTracing, err := otelsetup.Init(ctx, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize tracing")
	}
	defer func() { _ = shutdownTracing(ctx) }()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger); err != nil {
		logger.WithError(err).Fatal("failed to migrate database schema")
	}

	// Initialize S3-compatible object storage for raw invoice documents
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize object storage")
	}

	// Redis backs the per-invoice lock and sweeper alert dedup. Without it
	// the database row lock still serializes transitions and the sweeper
	// alerts every tick.
	var (
		locks locker.Locker = locker.Noop{}
		dedup sweeper.Deduper = sweeper.NoDedup{}
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locks = locker.NewRedisLocker(rdb)
		dedup = sweeper.NewRedisDeduper(rdb)
	} else {
		logger.Warn("redis not configured; invoice locking falls back to row locks")
	}

	// Repositories and collaborators
	invRepo := repopg.NewInvoicePostgres(db)
	lookup := refdatapg.NewRefDataPostgres(db)
	var auditor audit.Sink = auditpg.NewAuditPostgres(db)

	dispatcher := notify.NewWebhookDispatcher(notify.Endpoints{
		Approver: cfg.Notify.ApproverURL,
		Vendor:   cfg.Notify.VendorURL,
		Finance:  cfg.Notify.FinanceURL,
	}, time.Duration(cfg.Notify.TimeoutSec)*time.Second, logger)

	extractor := extraction.NewHTTPExtractor(cfg.Extraction.Endpoint, objStore)
	validator := validation.New()
	engine := reconcile.NewEngine(cfg.Reconcile.TolerancePct)
	machine := workflow.NewMachine(workflow.RolePolicy{})

	pipe := pipeline.New(
		invRepo, lookup, extractor, validator, engine, machine,
		dispatcher, auditor, locks, logger,
		pipeline.Timeouts{
			Extraction: time.Duration(cfg.Extraction.TimeoutSec) * time.Second,
			Lookup:     time.Duration(cfg.Reconcile.LookupTimeoutSec) * time.Second,
		},
		prometheus.DefaultRegisterer,
	)
	runner := pipeline.NewRunner(pipe, logger)

	invSvc := service.NewInvoiceService(objStore, invRepo, machine, dispatcher, auditor, locks, runner, logger)

	// Reminder sweeper runs on its own ticker, decoupled from pipelines.
	sweep := sweeper.New(
		invRepo, dispatcher, dedup, logger,
		time.Duration(cfg.Sweeper.StaleAfterHours)*time.Hour,
		time.Duration(cfg.Sweeper.IntervalMin)*time.Minute,
		time.Duration(cfg.Sweeper.DedupTTLHours)*time.Hour,
	)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweep.Run(sweepCtx)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger))

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		logger.WithError(err).Fatal("failed to register http metrics")
	}
	app.Use(promMiddleware.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, invSvc)

	addr := ":" + cfg.Port
	if err := app.Listen(addr); err != nil {
		logger.WithError(err).Fatal("failed to start server")
	}
}
