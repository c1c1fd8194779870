package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/recommendation/internal/api"
	"example.com/recommendation/internal/auth"
	"example.com/recommendation/internal/cache"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/logging"
	persistence "example.com/recommendation/internal/persistence/postgres"
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

	var recCache domain.RecommendationCache
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, serving reads from postgres only", "error", err)
		} else {
			defer redisClient.Close()
			recCache = cache.NewRedisRecommendationCache(redisClient, cfg.CacheTTL)
		}
	}

	service := domain.NewService(persistence.NewRecommendationRepository(pool), recCache)
	router := api.NewRouter(api.NewHandler(service, logger), auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, router)
	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)

	httptransport.Start(server, "recommendation-api", logger)
	httptransport.Start(metricsSrv, "metrics", logger)

	<-ctx.Done()
	logger.Info("api shutdown requested")

	httptransport.Shutdown(server, 15*time.Second, logger)
	httptransport.Shutdown(metricsSrv, 5*time.Second, logger)
}
