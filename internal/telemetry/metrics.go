// Package telemetry provides OpenTelemetry instrumentation for the
// sync subsystem.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/maquinaplus/fieldsync/sync"

// SyncMetrics holds the OpenTelemetry instruments for sync operation metrics
type SyncMetrics struct {
	syncDuration metric.Float64Histogram
	itemOutcomes metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"fieldsync_pass_duration_seconds",
		metric.WithDescription("Duration of sync passes in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	itemOutcomes, err := meter.Int64Counter(
		"fieldsync_items_total",
		metric.WithDescription("Per-item sync outcomes by entity type"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration: syncDuration,
		itemOutcomes: itemOutcomes,
	}, nil
}

// RecordSyncPass records the duration and outcome of one sync pass.
func (m *SyncMetrics) RecordSyncPass(ctx context.Context, identity string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("identity", identity),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordItems records per-item success/failure counts for one entity type.
func (m *SyncMetrics) RecordItems(ctx context.Context, entity string, succeeded, failed int) {
	if m == nil || m.itemOutcomes == nil {
		return
	}

	if succeeded > 0 {
		m.itemOutcomes.Add(ctx, int64(succeeded), metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("outcome", "success"),
		))
	}
	if failed > 0 {
		m.itemOutcomes.Add(ctx, int64(failed), metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("outcome", "failure"),
		))
	}
}
