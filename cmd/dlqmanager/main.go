package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/cache"
	"example.com/recommendation/internal/completion"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/deadletter"
	"example.com/recommendation/internal/logging"
	persistence "example.com/recommendation/internal/persistence/postgres"
	"example.com/recommendation/internal/synthesis"
	httptransport "example.com/recommendation/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	client, err := completion.New(cfg.Completion(), completion.WithLogger(logger.With("component", "completion")))
	if err != nil {
		logger.Error("invalid completion configuration", "error", err)
		os.Exit(1)
	}
	synth := synthesis.New(client, synthesis.WithLogger(logger.With("component", "synthesis")))

	var saver deadletter.Saver = persistence.NewRecommendationRepository(pool)
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, cache invalidation disabled", "error", err)
		} else {
			defer redisClient.Close()
			saver = cache.NewInvalidatingSaver(saver, cache.NewRedisRecommendationCache(redisClient, cfg.CacheTTL), logger)
		}
	}

	manager := deadletter.NewManager(pool, synth, saver, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.Start(metricsSrv, "metrics", logger)

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started", "interval", cfg.DLQPollInterval, "max_retries", cfg.DLQMaxRetries, "batch_size", cfg.DLQBatchSize)

loop:
	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager received shutdown signal")
			break loop
		case <-ticker.C:
			recovered, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", "error", err)
			}
			if recovered > 0 {
				logger.Info("dlq manager regenerated recommendations", "count", recovered)
			}
		}
	}

	httptransport.Shutdown(metricsSrv, 10*time.Second, logger)
}
