// Package otelmetrics records relay metrics with OpenTelemetry.
package otelmetrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/velmie/admsrelay"
)

// ScopeName is the instrumentation scope of all relay instruments.
const ScopeName = "github.com/velmie/admsrelay"

// Recorder implements admsrelay.Metrics.
type Recorder struct {
	cycle     metric.Float64Histogram
	fetched   metric.Int64Counter
	delivered metric.Int64Counter
	queued    metric.Int64Counter
	retries   metric.Int64Counter
	dead      metric.Int64Counter
	errors    metric.Int64Counter

	pending     atomic.Int64
	deadLetters atomic.Int64
	gauges      metric.Registration
}

var _ admsrelay.Metrics = (*Recorder)(nil)

// NewRecorder creates the relay instruments on meter.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	r := &Recorder{}

	var err error
	if r.cycle, err = meter.Float64Histogram(
		"admsrelay.cycle.duration",
		metric.WithDescription("Duration of one poll or retry cycle"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 25, 100, 250, 1000, 5000, 15000, 30000, 60000),
	); err != nil {
		return nil, fmt.Errorf("create cycle histogram: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&r.fetched, "admsrelay.records.fetched", "Records read from the access log"},
		{&r.delivered, "admsrelay.deliveries.succeeded", "Deliveries accepted by a destination"},
		{&r.queued, "admsrelay.deliveries.queued", "Failed deliveries persisted for retry"},
		{&r.retries, "admsrelay.retries.failed", "Failed redeliveries"},
		{&r.dead, "admsrelay.deliveries.dead", "Attempts dead-lettered"},
		{&r.errors, "admsrelay.errors", "Faults by kind"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}

	pending, err := meter.Int64ObservableGauge(
		"admsrelay.queue.pending",
		metric.WithDescription("Attempts awaiting retry"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pending gauge: %w", err)
	}
	deadLetters, err := meter.Int64ObservableGauge(
		"admsrelay.queue.dead",
		metric.WithDescription("Dead-lettered attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("create dead gauge: %w", err)
	}
	r.gauges, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(pending, r.pending.Load())
		o.ObserveInt64(deadLetters, r.deadLetters.Load())
		return nil
	}, pending, deadLetters)
	if err != nil {
		return nil, fmt.Errorf("register gauges: %w", err)
	}

	return r, nil
}

// Close unregisters the gauge callback.
func (r *Recorder) Close() error {
	if r.gauges == nil {
		return nil
	}
	return r.gauges.Unregister()
}

// ObserveCycleDuration implements admsrelay.Metrics.
func (r *Recorder) ObserveCycleDuration(task string, duration time.Duration) {
	r.cycle.Record(context.Background(), float64(duration)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("task", task)))
}

// AddFetched implements admsrelay.Metrics.
func (r *Recorder) AddFetched(count int) { add(r.fetched, count) }

// AddDelivered implements admsrelay.Metrics.
func (r *Recorder) AddDelivered(count int) { add(r.delivered, count) }

// AddQueued implements admsrelay.Metrics.
func (r *Recorder) AddQueued(count int) { add(r.queued, count) }

// AddRetries implements admsrelay.Metrics.
func (r *Recorder) AddRetries(count int) { add(r.retries, count) }

// AddDead implements admsrelay.Metrics.
func (r *Recorder) AddDead(count int) { add(r.dead, count) }

// AddErrors implements admsrelay.Metrics.
func (r *Recorder) AddErrors(kind string, count int) {
	add(r.errors, count, attribute.String("kind", kind))
}

// SetPending implements admsrelay.Metrics.
func (r *Recorder) SetPending(count int) { r.pending.Store(int64(count)) }

// SetDeadLetters implements admsrelay.Metrics.
func (r *Recorder) SetDeadLetters(count int) { r.deadLetters.Store(int64(count)) }

func add(counter metric.Int64Counter, count int, attrs ...attribute.KeyValue) {
	if count <= 0 {
		return
	}
	counter.Add(context.Background(), int64(count), metric.WithAttributes(attrs...))
}
