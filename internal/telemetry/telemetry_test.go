package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordProcessing(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { SetMeterProvider(noopm.NewMeterProvider()) })

	ctx := context.Background()
	RecordProcessing(ctx, "counter", 10*time.Millisecond, nil)
	RecordProcessing(ctx, "counter", 20*time.Millisecond, errors.New("boom"))

	metrics := collect(t, reader)

	hist, ok := metrics["flowgrid.node.process.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)

	errs, ok := metrics["flowgrid.node.errors"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)
}

func TestRecordCommand(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { SetMeterProvider(noopm.NewMeterProvider()) })

	ctx := context.Background()
	RecordCommand(ctx, "execute", "add_node", nil)
	RecordCommand(ctx, "execute", "add_node", nil)
	RecordCommand(ctx, "undo", "add_node", errors.New("failed"))

	sum, ok := collect(t, reader)["flowgrid.commands"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(3), total)
	assert.Len(t, sum.DataPoints, 2)
}
