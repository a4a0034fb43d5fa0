package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/plantops/telemetry-pipeline/internal/notification"
	"github.com/plantops/telemetry-pipeline/internal/protocol"
	"github.com/plantops/telemetry-pipeline/internal/queue"
	"github.com/plantops/telemetry-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting notification service")

	// Create email notifier
	notifier := notification.NewEmailNotifier(&cfg.SMTP, logger)

	// Test SMTP connection (optional, will skip if not configured)
	if err := notifier.TestConnection(); err != nil {
		logger.Warn("notifications will be logged only", zap.Error(err))
	}

	// Create consumer for alarm notifications
	consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, "notification-group")
	defer consumer.Close()

	ctx := context.Background()
	logger.Info("notification service is running")

	// Start consuming notifications
	go func() {
		for {
			msg, err := consumer.Consume(ctx)
			if err != nil {
				logger.Warn("failed to consume message", zap.Error(err))
				continue
			}

			// Decode alarm notification
			alarmNotification, err := protocol.DecodeAlarmNotification(msg.Value)
			if err != nil {
				logger.Warn("failed to decode notification", zap.Error(err))
				consumer.Commit(ctx, msg)
				continue
			}

			// Send notification
			if err := notifier.SendAlarmNotification(alarmNotification); err != nil {
				logger.Error("failed to send notification", zap.Error(err))
				// Don't commit on error - retry
				continue
			}

			// Commit offset
			if err := consumer.Commit(ctx, msg); err != nil {
				logger.Warn("failed to commit offset", zap.Error(err))
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gracefully")
}
