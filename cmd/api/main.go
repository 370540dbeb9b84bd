package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/email"
	"reportflow_backend/internal/events"
	apphttp "reportflow_backend/internal/http"
	"reportflow_backend/internal/http/router"
	"reportflow_backend/internal/notification"
	"reportflow_backend/internal/notification/inapp"
	"reportflow_backend/internal/notification/outbox"
	"reportflow_backend/internal/notification/sse"
	"reportflow_backend/internal/pdf"
	"reportflow_backend/internal/reports"
	"reportflow_backend/internal/reports/publish"
	"reportflow_backend/internal/storage"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/db"
	"reportflow_backend/platform/logger"
	"reportflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc *storage.Service, name, bucket string) {
	if err := withRetry(ctx, log, "ensure "+name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// Upstream CRM client; every report read and write goes through it.
	crmClient := crm.New(cfg, log)

	// Storage service for thumbnails, archived PDFs, and QR codes (MinIO)
	var storageSvc *storage.Service
	if cfg.IsMinIOEnabled() {
		storageSvc, err = storage.New(cfg)
		if err != nil {
			log.Error("failed to initialize storage service", "error", err)
			panic("failed to initialize storage service: " + err.Error())
		}
		ensureBucket(ctx, log, storageSvc, "report-thumbnails", cfg.GetMinioBucketReportThumbnails())
		ensureBucket(ctx, log, storageSvc, "report-pdfs", cfg.GetMinioBucketReportPDFs())
		ensureBucket(ctx, log, storageSvc, "share-qrcodes", cfg.GetMinioBucketShareQRCodes())
		log.Info(
			"storage service initialized",
			"thumbnailsBucket", cfg.GetMinioBucketReportThumbnails(),
			"pdfsBucket", cfg.GetMinioBucketReportPDFs(),
			"qrCodesBucket", cfg.GetMinioBucketShareQRCodes(),
		)
	} else {
		log.Warn("MINIO_ENDPOINT not configured; thumbnails, PDF archive, and QR codes disabled")
	}

	// Gotenberg renders report HTML into thumbnail screenshots
	var thumbs publish.Thumbnailer
	if cfg.IsGotenbergEnabled() {
		thumbs = pdf.NewGotenbergClient(cfg)
		log.Info("gotenberg client initialized", "url", cfg.GetGotenbergURL())
	} else {
		log.Warn("GOTENBERG_URL not configured; report thumbnails disabled")
	}

	// Direct SMTP delivery; without it sends fall back to the CRM
	var mail publish.EmailSender
	if cfg.IsSMTPEnabled() {
		mail = email.NewSMTPSender(cfg)
		log.Info("smtp sender initialized", "host", cfg.GetSMTPHost())
	} else {
		log.Warn("SMTP not configured; report email delivery goes through the CRM")
	}

	var objStore publish.ObjectStore
	if storageSvc != nil {
		objStore = storageSvc
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notification module subscribes to domain events and owns the SSE stream
	notificationModule := notification.New(inapp.NewRepository(pool), cfg, log)
	notificationModule.RegisterHandlers(eventBus)
	notificationModule.SetNotificationOutbox(outbox.New(pool))

	sseService := sse.New()
	defer sseService.Close()
	notificationModule.SetSSE(sseService)

	if storageSvc != nil {
		notificationModule.SetObjectStore(storageSvc, cfg.GetMinioBucketShareQRCodes())
	}

	reportsModule, err := reports.NewModule(cfg, crmClient, thumbs, objStore, mail, eventBus, val, log)
	if err != nil {
		log.Error("failed to initialize reports module", "error", err)
		panic("failed to initialize reports module: " + err.Error())
	}
	defer reportsModule.Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			reportsModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
