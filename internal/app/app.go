// Package app wires configuration into the stores, services and adapters
// shared by cmd/tracking and cmd/worker.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/geo"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/pkg/metrics"
	"github.com/ignite/engagement-tracker/internal/repository/postgres"
	"github.com/ignite/engagement-tracker/internal/service/counters"
	"github.com/ignite/engagement-tracker/internal/service/enrichment"
	"github.com/ignite/engagement-tracker/internal/service/events"
	"github.com/ignite/engagement-tracker/internal/service/identity"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

// ConfigureLogging applies the logging section to the package logger.
func ConfigureLogging(cfg config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(cfg.Level))
	logger.SetRedactPII(cfg.ShouldRedact())
}

// driverName maps the configured driver onto a registered database/sql driver.
func driverName(driver string) (string, error) {
	switch driver {
	case "", "postgres":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// OpenDB opens and pings the relational store.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	name, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(name, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. It returns nil when no address is configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// MetricReaders builds the readers selected by cfg. "none" yields no reader:
// instruments still record but nothing leaves the process.
func MetricReaders(cfg config.MetricsConfig) ([]sdkmetric.Option, error) {
	switch cfg.Exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		var readerOpts []sdkmetric.PeriodicReaderOption
		if cfg.Interval() > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval()))
		}
		return []sdkmetric.Option{sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...))}, nil
	}
	return nil, fmt.Errorf("unsupported metrics exporter %q", cfg.Exporter)
}

// SetupMetrics installs a global meter provider tagged with the service
// name and returns a Recorder bound to it. Readers come from MetricReaders.
func SetupMetrics(service string, opts ...sdkmetric.Option) (*sdkmetric.MeterProvider, metrics.Recorder) {
	res := resource.NewSchemaless(attribute.String("service.name", service))
	provider := sdkmetric.NewMeterProvider(append([]sdkmetric.Option{sdkmetric.WithResource(res)}, opts...)...)
	otel.SetMeterProvider(provider)
	return provider, metrics.New()
}

// NewPipeline builds the tracking pipeline over the relational store.
func NewPipeline(db *sql.DB, rec metrics.Recorder) *tracking.Pipeline {
	resolver := identity.NewResolver(postgres.NewSessionRepo(db), postgres.NewRecipientRepo(db))
	return tracking.NewPipeline(
		resolver,
		events.NewStore(postgres.NewEventRepo(db)),
		counters.NewUpdater(postgres.NewCounterRepo(db)),
		rec,
	)
}

// NewEnricher builds the session enrichment service. rdb may be nil.
func NewEnricher(db *sql.DB, rdb *redis.Client, cfg config.GeoConfig, rec metrics.Recorder) *enrichment.Service {
	sessions := postgres.NewSessionRepo(db)
	resolver := identity.NewResolver(sessions, postgres.NewRecipientRepo(db))

	var cache geo.Cache
	if rdb != nil {
		cache = geo.NewRedisCache(rdb, cfg.CacheTTL())
	}
	var lookup enrichment.GeoLookup
	if cfg.Endpoint != "" {
		lookup = geo.NewClient(cfg.Endpoint, cfg.Timeout(), cache)
	}
	return enrichment.NewService(resolver, sessions, postgres.NewAttributionRepo(db), lookup, rec)
}
