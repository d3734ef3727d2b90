package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewSyncMetricsNilProvider(t *testing.T) {
	t.Parallel()
	m, err := NewSyncMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Nil receiver is a safe no-op.
	m.RecordSyncPass(context.Background(), "fieldsync-manual", time.Second, true)
	m.RecordItems(context.Background(), "form", 1, 2)
}

func TestSyncMetricsRecord(t *testing.T) {
	t.Parallel()
	provider, err := NewProvider()
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	m, err := NewSyncMetrics(provider.MeterProvider())
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordSyncPass(context.Background(), "fieldsync-periodic", 2*time.Second, true)
	m.RecordItems(context.Background(), "form", 3, 1)
	m.RecordItems(context.Background(), "image", 0, 0)

	assert.NotNil(t, provider.Handler())
}

func TestSyncMetricsWithManualReader(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewSyncMetrics(provider)
	require.NoError(t, err)

	m.RecordSyncPass(context.Background(), "fieldsync-manual", time.Second, false)
	m.RecordItems(context.Background(), "maintenance", 2, 0)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, SyncMetricsMeterName, rm.ScopeMetrics[0].Scope.Name)
	assert.Len(t, rm.ScopeMetrics[0].Metrics, 2)
}
