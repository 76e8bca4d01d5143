package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/storepulse/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		CollectorEndpoint: "localhost:14317",
		ServiceName:       "storepulse-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	// The global no-op meter still hands out usable instruments
	counter, err := telemetry.NewCounter(mp.Meter("storepulse/test"), "disabled_counter", "", "{n}")
	require.NoError(t, err)
	counter.Inc(ctx)
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestNewMeterProvider_NilLogger(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{}, nil)
	require.NoError(t, err)
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestCounterAndHistogram(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test")
	ctx := context.Background()

	counter, err := telemetry.NewCounter(meter, "test_counter", "test", "{n}")
	require.NoError(t, err)
	counter.Inc(ctx, telemetry.AttrCollection.String("orders"))
	counter.Add(ctx, 4, telemetry.AttrCollection.String("orders"))

	histogram, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:       "test_histogram",
		Boundaries: telemetry.PageDurationBuckets,
	})
	require.NoError(t, err)
	histogram.RecordDuration(ctx, 300*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	sum, ok := byName["test_counter"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(5), sum.DataPoints[0].Value)

	hist, ok := byName["test_histogram"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.Equal(t, "s", byName["test_histogram"].Unit)
	assert.InDelta(t, 0.3, hist.DataPoints[0].Sum, 1e-9)
}

func TestNewCounter_NoopMeter(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")

	counter, err := telemetry.NewCounter(meter, "noop_counter", "noop", "{n}")
	require.NoError(t, err)
	counter.Inc(context.Background())
}

func TestDefaultBuckets(t *testing.T) {
	assert.IsIncreasing(t, telemetry.PageDurationBuckets)
	assert.IsIncreasing(t, telemetry.RunDurationBuckets)
}
