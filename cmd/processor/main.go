package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/database"
	"github.com/plantops/telemetry-pipeline/internal/devstate"
	"github.com/plantops/telemetry-pipeline/internal/pipeline"
	"github.com/plantops/telemetry-pipeline/internal/publish"
	"github.com/plantops/telemetry-pipeline/internal/queue"
	"github.com/plantops/telemetry-pipeline/internal/tolerance"
	"github.com/plantops/telemetry-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting telemetry processor")

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations("migrations"); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("connected to database")

	// Connect to Redis (tolerance override source)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis")

	// Connect to the real-time publish transport
	publisher, err := publish.NewPublisher(cfg.MQTT, cfg.Pipeline.CallTimeout)
	if err != nil {
		logger.Fatal("failed to connect to MQTT broker", zap.Error(err))
	}
	defer publisher.Close()
	logger.Info("connected to MQTT broker")

	// Create notification producer
	notifier := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notifier.Close()

	// Assemble the pipeline
	tolerances := tolerance.NewProvider(
		map[string]float64{
			"temperature": cfg.Pipeline.ToleranceTemp,
			"humidity":    cfg.Pipeline.ToleranceHum,
			"oilLevel":    cfg.Pipeline.ToleranceOil,
		},
		tolerance.NewRedisSource(redisClient, cfg.Pipeline.TolerancePrefix),
		logger,
	)
	states := devstate.NewStore()
	processor := pipeline.NewProcessor(
		cfg.Pipeline, cfg.Registry, tolerances, states,
		db, publisher, notifier, logger,
	)

	// Create consumer for raw telemetry batches
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTelemetry, cfg.Kafka.GroupID)
	defer consumer.Close()

	batchConsumer := queue.NewBatchConsumer(consumer, processor.ProcessBatch, 100, 5*time.Second, logger)
	batchConsumer.Start(ctx)
	logger.Info("telemetry processor is running")

	// Print consumer stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := consumer.Stats()
			logger.Info("consumer stats",
				zap.Int64("messages", stats.Messages),
				zap.Int64("bytes", stats.Bytes),
				zap.Int64("errors", stats.Errors),
				zap.Int("devices", states.Count()),
			)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gracefully")
	cancel()
	batchConsumer.Stop()
	logger.Info("telemetry processor stopped")
}

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.Format == "console" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
