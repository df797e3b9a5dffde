package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/engagement-tracker/internal/app"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// The worker applies hits deferred by the tracking service in queued mode.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	app.ConfigureLogging(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := app.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	readers, err := app.MetricReaders(cfg.Metrics)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	provider, rec := app.SetupMetrics("engagement-worker", readers...)
	defer provider.Shutdown(context.Background())

	consumer, err := app.NewConsumer(ctx, cfg.Queue, app.NewPipeline(db, rec))
	if err != nil {
		log.Fatalf("queue consumer: %v", err)
	}
	consumer.Start(ctx)
	logger.Info("worker running", "queue_driver", cfg.Queue.Driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	consumer.Stop()
	cancel()
	logger.Info("worker stopped")
}
