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

	"github.com/joho/godotenv"

	httpadapter "github.com/driftline/windcache/internal/adapter/http"
	kafkaadapter "github.com/driftline/windcache/internal/adapter/kafka"
	redisadapter "github.com/driftline/windcache/internal/adapter/redis"
	"github.com/driftline/windcache/internal/cache"
	"github.com/driftline/windcache/internal/config"
	"github.com/driftline/windcache/internal/noaa"
	"github.com/driftline/windcache/internal/observability"
	"github.com/driftline/windcache/internal/scheduler"
)

func main() {
	// Optional; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := redisadapter.New(ctx, cfg.RedisURL, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	store := cache.NewStore(kv, nil, logger)
	fetcher := noaa.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, logger)

	// Snapshot announcements are feature-flagged via KAFKA_ENABLED.
	var announcer scheduler.Announcer
	var kafkaCloser interface{ Close() error }
	if cfg.KafkaEnabled {
		a := kafkaadapter.NewAnnouncer(cfg.KafkaBrokers, cfg.KafkaAnnounceTopic, logger)
		announcer = a
		kafkaCloser = a
		logger.Info("kafka announcements enabled", "topic", cfg.KafkaAnnounceTopic)
	} else {
		logger.Info("kafka announcements disabled")
	}

	sched := scheduler.New(store, fetcher, logger, metrics, scheduler.Options{
		Announcer:     announcer,
		MaxHistory:    cfg.MaxHistory,
		FetchInterval: cfg.FetchInterval,
		TargetPause:   time.Second,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, store, kv, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaCloser != nil {
		if err := kafkaCloser.Close(); err != nil {
			logger.Error("kafka announcer close error", "error", err)
		}
	}
	if err := kv.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	logger.Info("shutdown complete")
}
