package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/api"
	"slotbook/internal/catalog"
	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/repository"
	"slotbook/internal/service"
	"slotbook/internal/slots"
	"slotbook/internal/worker"
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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedCatalog(ctx, cfg, db, &logger); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	metrics.Register()

	redisClient := initRedis(cfg, &logger)
	defer func() { _ = repository.Close(redisClient) }()

	memoryCache := repository.NewMemorySlotCache(cfg.Booking.SlotCacheTTL, nil)
	cache, locker := initCoordination(cfg, redisClient, memoryCache, &logger)

	bus := events.NewEventBus()
	bus.Subscribe(events.AnyEvent, func(e *events.Event) error {
		metrics.IncEvent(e.Type)
		logger.Debug().Str("event_id", e.ID).Str("event_type", e.Type).Msg("event published")
		return nil
	})
	bus.OnError(func(e *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", e.Type).Msg("event handler failed")
	})

	engine := buildEngine(cfg, db, cache, locker, bus, &logger)

	grpcServer, err := api.NewGRPCServer(&cfg.API, engine, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, engine, &logger)

	sweeper := worker.NewHoldSweeper(db, cfg.Booking.HoldSweepInterval, cfg.Booking.HoldRetention, &logger, memoryCache)
	go sweeper.Start(ctx)

	backups := database.NewBackupService(db, cfg.Backup, &logger)
	go backups.Start(ctx)

	startMetrics(ctx, cfg, db, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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

func seedCatalog(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) error {
	path := os.Getenv("CATALOG_PATH")
	if path == "" {
		path = cfg.Catalog.Path
	}
	if path == "" {
		return nil
	}

	c, err := catalog.Load(path)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("load catalog")
		return err
	}
	seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := catalog.Apply(seedCtx, db, c, time.Now().UTC(), logger); err != nil {
		logger.Error().Err(err).Str("catalog_path", path).Msg("apply catalog")
		return err
	}
	return nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCoordination picks the slot cache and booking locker. With Redis both
// fail over to the in-process versions while Redis is down.
func initCoordination(
	cfg *config.Config,
	redisClient *redis.Client,
	memoryCache *repository.MemorySlotCache,
	logger *zerolog.Logger,
) (domain.SlotCache, domain.Locker) {
	memoryLocker := repository.NewMemoryLocker(nil)
	if redisClient == nil {
		return memoryCache, memoryLocker
	}
	cache := repository.NewFailoverSlotCache(
		repository.NewRedisSlotCache(redisClient, cfg.Booking.SlotCacheTTL), memoryCache, logger)
	locker := repository.NewFailoverLocker(repository.NewRedisLocker(redisClient), memoryLocker, logger)
	return cache, locker
}

func buildEngine(
	cfg *config.Config,
	db *database.DB,
	cache domain.SlotCache,
	locker domain.Locker,
	bus *events.EventBus,
	logger *zerolog.Logger,
) *api.Engine {
	opts := service.Options{
		Policy: service.Policy{
			Granularity:    cfg.Booking.SlotGranularityMinutes,
			MinNotice:      cfg.Booking.MinNotice(),
			MaxBookingDays: cfg.Booking.MaxBookingDays,
		},
		StoreTimeout: cfg.Booking.StoreTimeout,
		LockTTL:      cfg.Booking.LockTTL,
		Now:          time.Now,
	}
	generator := slots.NewGenerator(db, time.Now, logger)

	return &api.Engine{
		Bookings:     service.NewBookingService(db, generator, locker, bus, opts, logger),
		Holds:        service.NewHoldService(db, bus, opts, logger),
		Availability: service.NewAvailabilityService(db, generator, cache, opts, cfg.Booking.SlotPageLimit, logger),
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, db, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, db *database.DB, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
