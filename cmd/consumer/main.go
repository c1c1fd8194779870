package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/cache"
	"example.com/recommendation/internal/completion"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/consumer"
	"example.com/recommendation/internal/deadletter"
	"example.com/recommendation/internal/events"
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

	var saver consumer.Saver = persistence.NewRecommendationRepository(pool)
	if cfg.RedisURL != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, cache invalidation disabled", "error", err)
		} else {
			defer redisClient.Close()
			saver = cache.NewInvalidatingSaver(saver, cache.NewRedisRecommendationCache(redisClient, cfg.CacheTTL), logger)
		}
	}

	opts := []consumer.HandlerOption{
		consumer.WithHandlerLogger(logger.With("component", "recommendation-handler")),
		consumer.WithSynthesisTimeout(cfg.SynthesisTimeout),
	}
	if cfg.RecommendationTopic != "" {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		opts = append(opts, consumer.WithPublisher(events.NewPublisher(producer, cfg.RecommendationTopic)))
	}
	if cfg.DeadLetterMode == config.DeadLetterRetry {
		opts = append(opts, consumer.WithDeadLetter(deadletter.NewWriter(pool)))
	}
	handler := consumer.NewRecommendationHandler(synth, saver, opts...)

	metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
	httptransport.Start(metricsSrv, "metrics", logger)

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler,
			consumer.WithLogger(logger.With("component", "consumer", "topic", topic)),
			consumer.WithConcurrency(cfg.ConsumerConcurrency),
		)

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			logger.Info("consumer started", "topic", topic, "group", cfg.ConsumerGroupID,
				"dead_letter_mode", cfg.DeadLetterMode, "concurrency", cfg.ConsumerConcurrency)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped with error", "topic", topic, "error", err)
			}
		}(topic, reader)
	}

	<-ctx.Done()
	logger.Info("consumer shutdown requested")

	httptransport.Shutdown(metricsSrv, 10*time.Second, logger)
	wg.Wait()
	logger.Info("consumer stopped")
}
