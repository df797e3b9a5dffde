// Package metrics records pipeline outcomes through OpenTelemetry.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// Recorder records tracking pipeline metrics.
// Use New() for OTel metrics or Noop{} when disabled.
type Recorder interface {
	// RecordHit counts one request served by an adapter with its outcome
	// reason ("ok", "unknown_tracking_id", ...).
	RecordHit(ctx context.Context, adapter, outcome string)

	// RecordFirstOccurrence counts a won first-occurrence transition.
	RecordFirstOccurrence(ctx context.Context, eventType string)

	// RecordFailure counts a swallowed failure at the given pipeline stage.
	RecordFailure(ctx context.Context, stage string)

	// RecordGeoLookup records the latency and reason code of a geo lookup.
	RecordGeoLookup(ctx context.Context, d time.Duration, reason string)
}

type otelRecorder struct {
	hits             metric.Int64Counter
	firstOccurrences metric.Int64Counter
	failures         metric.Int64Counter
	geoLatency       metric.Float64Histogram
}

var (
	defaultRecorder     *otelRecorder
	defaultRecorderOnce sync.Once
	defaultRecorderErr  error
)

func newOtelRecorder() (*otelRecorder, error) {
	meter := otel.Meter("engagement-tracker")

	hits, err := meter.Int64Counter("tracking.hits",
		metric.WithDescription("Requests served by tracking adapters"),
	)
	if err != nil {
		return nil, err
	}

	first, err := meter.Int64Counter("tracking.first_occurrences",
		metric.WithDescription("First-occurrence transitions won"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("tracking.failures",
		metric.WithDescription("Failures swallowed at a pipeline boundary"),
	)
	if err != nil {
		return nil, err
	}

	geoLatency, err := meter.Float64Histogram("geo.lookup.latency_ms",
		metric.WithDescription("Geo lookup latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelRecorder{
		hits:             hits,
		firstOccurrences: first,
		failures:         failures,
		geoLatency:       geoLatency,
	}, nil
}

// New returns a Recorder backed by the global OTel meter provider. If
// instrument creation fails, a no-op recorder is returned.
//
// Configure the provider before calling:
//
//	otel.SetMeterProvider(yourProvider)
func New() Recorder {
	defaultRecorderOnce.Do(func() {
		defaultRecorder, defaultRecorderErr = newOtelRecorder()
	})
	if defaultRecorderErr != nil {
		logger.Warn("metrics initialization failed, using no-op recorder", "error", defaultRecorderErr)
		return Noop{}
	}
	return defaultRecorder
}

func (m *otelRecorder) RecordHit(ctx context.Context, adapter, outcome string) {
	m.hits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("adapter", adapter),
		attribute.String("outcome", outcome),
	))
}

func (m *otelRecorder) RecordFirstOccurrence(ctx context.Context, eventType string) {
	m.firstOccurrences.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *otelRecorder) RecordFailure(ctx context.Context, stage string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *otelRecorder) RecordGeoLookup(ctx context.Context, d time.Duration, reason string) {
	m.geoLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attribute.String("reason", reason)))
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordHit(context.Context, string, string)              {}
func (Noop) RecordFirstOccurrence(context.Context, string)          {}
func (Noop) RecordFailure(context.Context, string)                  {}
func (Noop) RecordGeoLookup(context.Context, time.Duration, string) {}
