package otelmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/velmie/admsrelay"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	rec, err := NewRecorder(mp.Meter(ScopeName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	return rec, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecorderCounters(t *testing.T) {
	rec, reader := newTestRecorder(t)

	rec.AddFetched(3)
	rec.AddDelivered(2)
	rec.AddQueued(1)
	rec.AddQueued(0)
	rec.AddErrors(admsrelay.ErrorKindSource, 1)

	got := collect(t, reader)

	fetched := got["admsrelay.records.fetched"].Data.(metricdata.Sum[int64])
	require.EqualValues(t, 3, fetched.DataPoints[0].Value)

	queued := got["admsrelay.deliveries.queued"].Data.(metricdata.Sum[int64])
	require.EqualValues(t, 1, queued.DataPoints[0].Value)

	errs := got["admsrelay.errors"].Data.(metricdata.Sum[int64])
	require.Len(t, errs.DataPoints, 1)
	kind, ok := errs.DataPoints[0].Attributes.Value(attribute.Key("kind"))
	require.True(t, ok)
	require.Equal(t, admsrelay.ErrorKindSource, kind.AsString())
}

func TestRecorderGaugesAndHistogram(t *testing.T) {
	rec, reader := newTestRecorder(t)

	rec.SetPending(7)
	rec.SetDeadLetters(2)
	rec.ObserveCycleDuration("poll", 150*time.Millisecond)

	got := collect(t, reader)

	pending := got["admsrelay.queue.pending"].Data.(metricdata.Gauge[int64])
	require.EqualValues(t, 7, pending.DataPoints[0].Value)
	dead := got["admsrelay.queue.dead"].Data.(metricdata.Gauge[int64])
	require.EqualValues(t, 2, dead.DataPoints[0].Value)

	cycle := got["admsrelay.cycle.duration"].Data.(metricdata.Histogram[float64])
	require.EqualValues(t, 1, cycle.DataPoints[0].Count)
	require.InDelta(t, 150, cycle.DataPoints[0].Sum, 0.001)
}

func TestProviderDisabledWithoutEndpoint(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NotNil(t, p.Meter())
	require.NoError(t, p.Shutdown(context.Background()))
}
