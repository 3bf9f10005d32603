package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/keyguard/internal/api"
	"github.com/RishiKendai/keyguard/internal/config"
	"github.com/RishiKendai/keyguard/internal/configs/env"
	"github.com/RishiKendai/keyguard/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/keyguard/internal/infra/redis"
	"github.com/RishiKendai/keyguard/internal/logger"
	"github.com/RishiKendai/keyguard/internal/metrics"
	"github.com/RishiKendai/keyguard/internal/repository"
	"github.com/RishiKendai/keyguard/internal/stream"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.InitWithFormat(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info().Msg("Starting keystroke backend")

	metrics.InitPrometheus()
	metricsServer := api.StartMetricsServer(cfg.MetricsPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	pasteLog := repository.NewPasteLogRepository(mongoRepo)
	if err := pasteLog.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure paste log indexes")
	}
	sessions := repository.NewSessionStore(redisClient.Client, cfg.SessionTTL)

	producer := stream.NewProducer(redisClient.Client, cfg.RedisStreamKey)
	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey, cfg.MaxRetries, cfg.RetryBaseDelay)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		pasteLog,
		retryHandler,
		cfg.StreamRetention,
		cfg.ConsumerWorkers,
	)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Paste stream consumer error")
		}
	}()

	router := api.SetupRoutes(cfg, sessions, producer, pasteLog)
	srv := api.StartServer(router, cfg.ServerPort, "api")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	cancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Paste stream consumer did not stop in time")
	}

	if err := api.ShutdownServer(metricsServer, 5*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
