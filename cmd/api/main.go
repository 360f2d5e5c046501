package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parkpass/internal/api"
	"parkpass/internal/config"
	"parkpass/internal/database"
	"parkpass/internal/events"
	"parkpass/internal/export"
	"parkpass/internal/logging"
	"parkpass/internal/metrics"
	"parkpass/internal/models"
	"parkpass/internal/repository"
	"parkpass/internal/service"
	"parkpass/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	lots, err := loadCatalog(&logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, lots, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	cache := buildCache(redisClient, &logger)
	eventBus := events.NewEventBus()
	subscribeAuditLog(eventBus, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := export.NewExcelBuilder(db, cfg.Exports.Path, &logger)
	reportWorker := worker.NewReportWorker(db, builder, redisClient, worker.RetryPolicy{}, &logger)
	go reportWorker.Start(ctx)

	bookingService := service.NewBookingService(db, cache, eventBus, reportWorker, cfg.Policy(), cfg.Booking.MaxBookingHorizonDays, &logger)
	walletService := service.NewWalletService(db, eventBus, reportWorker, &logger)
	refundService := service.NewRefundService(db, eventBus, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(db.Path(), cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, bookingService, walletService, refundService, &logger)
	return serve(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(logger *zerolog.Logger) ([]models.Lot, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, err
	}

	var catalog struct {
		Lots []models.Lot `yaml:"lots"`
	}
	if err := yamlv2.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, err
	}

	if err := config.ValidateCatalog(catalog.Lots); err != nil {
		logger.Error().Err(err).Msg("catalog validation failed")
		return nil, err
	}

	return catalog.Lots, nil
}

func initDatabase(cfg *config.Config, lots []models.Lot, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SeedCatalog(context.Background(), lots); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("seed catalog")
		return nil, err
	}
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// buildCache layers redis over the in-process cache so a redis outage
// degrades to local TTL caching instead of hard failures.
func buildCache(redisClient *redis.Client, logger *zerolog.Logger) *repository.FailoverCacheRepository {
	ttl := time.Duration(models.DefaultAvailabilityCacheTTL) * time.Second
	memory := repository.NewMemoryCacheRepository(ttl)
	if redisClient == nil {
		return repository.NewFailoverCacheRepository(memory, memory, logger)
	}
	primary := repository.NewRedisCacheRepository(redisClient, ttl)
	return repository.NewFailoverCacheRepository(primary, memory, logger)
}

func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logger.With().Str("component", "audit").Logger()
	handler := func(event *events.Event) error {
		audit.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Msg("domain event")
		return nil
	}
	for _, eventType := range []string{
		events.EventBookingReserved,
		events.EventBookingCancelled,
		events.EventBookingCheckedOut,
		events.EventWalletTopUp,
		events.EventRefundRequested,
		events.EventRefundResolved,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serve(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}
