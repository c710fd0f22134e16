package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telecare-health/platform/pkg/common/config"
	"github.com/telecare-health/platform/pkg/common/kafka"
	"github.com/telecare-health/platform/pkg/common/logger"
	"github.com/telecare-health/platform/pkg/notification"
)

func main() {
	logger.Init()
	cfg := config.Load()

	templates, err := notification.LoadTemplates(cfg.NotifyTemplateFile)
	if err != nil {
		logger.Log.WithError(err).Warn("failed to load notification templates, using defaults")
	}

	var notifier notification.Notifier = notification.LogNotifier{}
	if cfg.NotifyProviderURL != "" {
		notifier = notification.NewHTTPNotifier(cfg.NotifyProviderURL, 10*time.Second)
	}
	worker := notification.NewWorker(templates, notifier)

	consumer := kafka.NewConsumer(cfg, cfg.NotificationTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info("Shutting down notify worker...")
		cancel()
	}()

	logger.Log.WithField("topic", cfg.NotificationTopic).Info("notify worker consuming")
	if err := consumer.Consume(ctx, worker.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Fatal("consumer stopped")
	}
	logger.Log.Info("notify worker stopped")
}
