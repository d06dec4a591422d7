package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"
	"storefront/internal/shipping"
	"storefront/internal/telemetry"
	"storefront/internal/voucher"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront order API server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	// Initialize repositories
	voucherRepo := repository.NewVoucherRepository(pool, logger)

	if cfg.Voucher.ImportEnabled {
		if err := importVouchers(ctx, cfg.Voucher, voucherRepo, logger); err != nil {
			return err
		}
	}

	orderCache, idempotency, closeRedis := setupRedis(ctx, cfg.Redis, logger)
	defer closeRedis()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka, logger)
	} else {
		logger.Info().Msg("order events disabled (Kafka off)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	// Initialize services
	workflow := service.NewOrderWorkflow(service.Dependencies{
		Tx:        repository.NewTransactor(pool, logger),
		Users:     repository.NewUserRepository(pool, logger),
		Inventory: repository.NewInventoryRepository(logger),
		Combos:    repository.NewComboRepository(logger),
		Orders:    repository.NewOrderRepository(pool, logger),
		Vouchers:  voucher.NewLedger(voucherRepo, logger),
		Carrier:   shipping.NewGHTKGateway(cfg.Carrier, logger),
		Cache:     orderCache,
		Events:    publisher,
	}, logger)

	// Initialize HTTP handlers
	orderHandler := handler.NewOrderHandler(workflow, idempotency, logger)

	// Initialize router
	mux := router.New(orderHandler, cfg.Auth.APIKey, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}

// importVouchers seeds the voucher catalogue, reading from S3 first when enabled
// and from the local file system otherwise.
func importVouchers(ctx context.Context, cfg config.VoucherImportConfig, repo repository.VoucherRepository, logger zerolog.Logger) error {
	fileLoader := voucher.NewFileLoader(logger)
	loader := fileLoader

	if cfg.S3Enabled {
		s3Loader, err := voucher.NewS3Loader(ctx, cfg.S3Bucket, cfg.S3Region, logger)
		if err != nil {
			logger.Warn().
				Err(err).
				Msg("failed to initialise S3 loader, falling back to local file system only")
		} else {
			loader = voucher.NewFallbackLoader(s3Loader, fileLoader, cfg.S3Prefix, true, logger)
		}
	} else {
		logger.Info().Msg("using local file system for voucher files (S3 disabled)")
	}

	res, err := voucher.NewImporter(loader, repo, logger).Import(ctx, cfg.Files)
	if err != nil {
		return fmt.Errorf("failed to import vouchers: %w", err)
	}
	logger.Info().
		Int("files", res.Files).
		Int("loaded", res.Loaded).
		Int64("inserted", res.Inserted).
		Msg("voucher catalogue imported")
	return nil
}

// setupRedis connects the order cache and idempotency store. Without Redis the
// service runs uncached and without Idempotency-Key support.
func setupRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (cache.OrderCache, cache.IdempotencyStore, func()) {
	if !cfg.Enabled {
		logger.Info().Msg("redis disabled, order cache and idempotency keys off")
		return cache.NopOrderCache{}, cache.NopIdempotencyStore{}, func() {}
	}

	client, err := cache.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		return cache.NopOrderCache{}, cache.NopIdempotencyStore{}, func() {}
	}

	return cache.NewRedisOrderCache(client, cfg.OrderTTL),
		cache.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL),
		func() { _ = client.Close() }
}
