package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/saturnino-fabrica-de-software/totem/internal/api"
	"github.com/saturnino-fabrica-de-software/totem/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/totem/internal/audit"
	"github.com/saturnino-fabrica-de-software/totem/internal/blobstore"
	miniostore "github.com/saturnino-fabrica-de-software/totem/internal/blobstore/minio"
	s3store "github.com/saturnino-fabrica-de-software/totem/internal/blobstore/s3"
	"github.com/saturnino-fabrica-de-software/totem/internal/config"
	"github.com/saturnino-fabrica-de-software/totem/internal/database"
	"github.com/saturnino-fabrica-de-software/totem/internal/embedding"
	"github.com/saturnino-fabrica-de-software/totem/internal/face"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
	"github.com/saturnino-fabrica-de-software/totem/internal/metrics"
	"github.com/saturnino-fabrica-de-software/totem/internal/repository"
	"github.com/saturnino-fabrica-de-software/totem/internal/service"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
	"github.com/saturnino-fabrica-de-software/totem/internal/webhook"
	"github.com/saturnino-fabrica-de-software/totem/internal/ws"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Totem kiosk",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("provider", cfg.ProviderType),
		slog.String("frame_source", cfg.FrameSource),
		slog.String("store_backend", cfg.StoreBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checks []handler.ReadinessCheck

	// Database (optional)
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := database.MigrateUp(ctx, cfg.DatabaseURL, "totem", logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		pool, err = database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		checks = append(checks, handler.ReadinessCheck{
			Name:  "database",
			Check: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
		})
	}

	// Blob storage for encodings and samples
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	checks = append(checks, handler.ReadinessCheck{
		Name: "blobstore",
		Check: func(ctx context.Context) error {
			_, err := blobs.List(ctx, "samples/")
			return err
		},
	})

	var persister embedding.Persister = embedding.NewBlobPersister(blobs, logger)
	if cfg.StoreBackend == config.StoreBackendPostgres {
		persister = repository.NewIdentityRepository(pool)
	}
	archive := embedding.NewSampleArchive(blobs)

	faces, err := face.NewFaceProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create face provider: %w", err)
	}

	// Gallery
	store := embedding.NewStore(persister)
	loaded, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load gallery: %w", err)
	}
	if loaded == 0 {
		seeded, err := embedding.SeedFromArchive(ctx, store, archive, faces, logger)
		if err != nil {
			logger.Warn("failed to seed gallery from archive", slog.Any("error", err))
		}
		loaded = seeded
	}
	logger.Info("gallery ready", slog.Int("identities", loaded))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	m.SetGallerySize(store.Len())

	// Audit trail: always to the log, and to postgres when available
	auditLog := audit.MultiLogger{audit.NewSlogLogger(logger)}
	var auditCounts metrics.AuditCounter
	if pool != nil {
		audits := repository.NewSessionAuditRepository(pool)
		auditLog = append(auditLog, audit.NewRepositoryLogger(audits))
		auditCounts = audits
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var notifier *webhook.Worker
	if cfg.WebhookURL != "" {
		notifier = webhook.NewWorker(webhook.NewSender(cfg.WebhookURL, cfg.WebhookSecret), logger,
			webhook.WithMaxAttempts(cfg.WebhookMaxAttempts))
		go notifier.Run(workerCtx)
		auditLog = append(auditLog, webhook.NewNotifier(notifier, cfg.WebhookEvents))
	}

	svcCfg, err := service.ConfigFrom(cfg)
	if err != nil {
		return fmt.Errorf("invalid matching config: %w", err)
	}

	var evalOpts []match.Option
	evalOpts = append(evalOpts, match.WithLogger(logger))
	if cfg.ProviderType != string(face.ProviderTypeMock) {
		evalOpts = append(evalOpts, match.WithFrameCheck(frame.Validate))
	}
	recognizer := match.NewEvaluator(faces, store, svcCfg.Metric, cfg.RecognitionTolerance, evalOpts...)
	observer := match.NewEvaluator(faces, store, svcCfg.Metric, cfg.EnrollmentTolerance, evalOpts...)

	sources, err := service.NewSourceFactory(cfg.FrameSource, cfg.CameraSnapshotURL, cfg.FrameDir)
	if err != nil {
		return fmt.Errorf("failed to configure frame source: %w", err)
	}

	hub := ws.NewHub()
	kiosk := service.NewKioskService(svcCfg, store, recognizer, observer, session.NewDriver(logger), logger).
		WithSources(sources).
		WithArchive(archive).
		WithAudit(auditLog).
		WithMetrics(m).
		WithEvents(hub)

	go kiosk.Run(workerCtx)

	aggregator := metrics.NewAggregator(auditCounts, store.Len, m, logger, time.Minute)
	go aggregator.Start(workerCtx)

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Kiosk:        kiosk,
		Hub:          hub,
		Gatherer:     reg,
		Checks:       checks,
		KioskKeyHash: cfg.KioskAPIKeyHash,
		FrameRate:    cfg.FrameRate,
		Version:      version,
	})
	router.Setup()

	if cfg.KioskAPIKeyHash == "" {
		logger.Warn("KIOSK_API_KEY_HASH is empty, the API is unauthenticated")
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := kiosk.Shutdown(shutdownCtx); err != nil {
		logger.Error("session shutdown error", slog.Any("error", err))
	}
	aggregator.Stop()
	if notifier != nil {
		notifier.Stop()
	}
	cancelWorkers()

	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendS3:
		client, err := s3store.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return s3store.NewStore(client, cfg.S3Bucket, cfg.S3Prefix), nil

	case config.StoreBackendMinIO:
		client, err := miniostore.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return nil, err
		}
		store := miniostore.NewStore(client, cfg.S3Bucket, cfg.S3Prefix)
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		// local and postgres backends keep samples on disk
		return blobstore.NewLocalStore(cfg.StoreDir)
	}
}
