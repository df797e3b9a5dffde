package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/engagement-tracker/internal/app"
	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	app.ConfigureLogging(cfg.Logging)

	ctx := context.Background()

	db, err := app.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb, err := app.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		// The geo cache is optional; lookups go straight to the provider.
		logger.Warn("redis unavailable, geo cache disabled", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	readers, err := app.MetricReaders(cfg.Metrics)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	provider, rec := app.SetupMetrics("engagement-tracking", readers...)
	defer provider.Shutdown(context.Background())

	var pub tracking.Publisher
	queued := cfg.Tracking.DeliveryMode == config.DeliveryQueued
	if queued {
		pub, err = app.NewPublisher(ctx, cfg.Queue)
		if err != nil {
			log.Fatalf("queue publisher: %v", err)
		}
	}

	handler := tracking.NewHandler(tracking.Deps{
		Pipeline:  app.NewPipeline(db, rec),
		Enricher:  app.NewEnricher(db, rdb, cfg.Geo, rec),
		Publisher: pub,
		Health:    tracking.NewHealthChecker(db, rdb),
		Metrics:   rec,
	}, tracking.Options{
		FallbackURL:    cfg.Tracking.FallbackURL,
		RequestTimeout: cfg.Tracking.RequestTimeout(),
		Queued:         queued,
		AllowedOrigins: cfg.Tracking.AllowedOrigins,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("tracking service listening", "addr", addr, "delivery_mode", cfg.Tracking.DeliveryMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down tracking service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if pub != nil {
		if err := pub.Close(); err != nil {
			logger.Error("publisher close failed", "error", err)
		}
	}
}
