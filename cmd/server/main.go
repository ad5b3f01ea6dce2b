package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/cosmicwatch/neo-watch-service/internal/adapter/nasa"
	"github.com/cosmicwatch/neo-watch-service/internal/adapter/postgres"
	"github.com/cosmicwatch/neo-watch-service/internal/adapter/ws"
	"github.com/cosmicwatch/neo-watch-service/internal/alert"
	"github.com/cosmicwatch/neo-watch-service/internal/api"
	"github.com/cosmicwatch/neo-watch-service/internal/auth"
	"github.com/cosmicwatch/neo-watch-service/internal/config"
	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/observability"
	"github.com/cosmicwatch/neo-watch-service/internal/pipeline"
	"github.com/cosmicwatch/neo-watch-service/internal/scheduler"
	"github.com/cosmicwatch/neo-watch-service/internal/service"
)

const cacheTTL = 60 * time.Second

// cacheBustingIngestor drops the cached read models after every successful
// ingest so dashboards see fresh rows before the cache TTL lapses.
type cacheBustingIngestor struct {
	runner api.IngestRunner
	reader *service.Reader
}

func (c *cacheBustingIngestor) Run(ctx context.Context) (domain.IngestResult, error) {
	result, err := c.runner.Run(ctx)
	if err == nil {
		c.reader.Invalidate(ctx)
	}
	return result, err
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := postgres.Open(cfg.DatabaseDSN(), logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// The service starts even when the database is down: the API answers in
	// degraded mode and the periodic jobs stay disarmed until next restart.
	dbReady := false
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Warn("database unreachable at startup, periodic jobs disabled", "error", err)
	} else if err := store.RunMigrations(pingCtx); err != nil {
		logger.Error("schema migration failed, periodic jobs disabled", "error", err)
	} else {
		dbReady = true
	}
	cancelPing()

	var cache service.Cache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()

		redisCtx, cancelRedis := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(redisCtx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, reads will fall through to the database", "error", err)
		}
		cancelRedis()
		cache = service.NewRedisCache(redisClient)
	} else {
		logger.Info("redis not configured, read cache disabled")
	}

	reader := service.NewReader(store, cache, logger, cacheTTL)
	feed := nasa.NewClient(cfg.NasaFeedURL, cfg.NasaAPIKey, cfg.NasaTimeout, logger)
	ingestor := &cacheBustingIngestor{
		runner: pipeline.New(feed, store, logger, metrics, clock),
		reader: reader,
	}

	tokens := auth.NewTokenProvider(cfg.JWTSecret, cfg.TokenTTL, clock)
	hasher := auth.NewHasher(cfg.BcryptCost)

	hub := ws.NewHub(store, tokens, logger, metrics)
	scanner := alert.New(store, hub, logger, metrics, cfg.AlertWindow, cfg.AlertRiskThreshold)

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.NewServer(reader, ingestor, store, store, hasher, tokens, store, hub.HandleConnection, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if dbReady {
		sched := scheduler.New(ingestor, scanner, hub, logger, clock, cfg.IngestInterval, cfg.AlertScanInterval)
		go sched.Run(ctx)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
