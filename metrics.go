package admsrelay

import "time"

// Metrics captures pipeline telemetry.
type Metrics interface {
	// ObserveCycleDuration records the time one poll or retry cycle took.
	ObserveCycleDuration(task string, duration time.Duration)
	// AddFetched increments the count of records read from the source.
	AddFetched(count int)
	// AddDelivered increments the count of deliveries accepted by a destination.
	AddDelivered(count int)
	// AddQueued increments the count of failed deliveries persisted for retry.
	AddQueued(count int)
	// AddRetries increments the count of failed redeliveries.
	AddRetries(count int)
	// AddDead increments the count of dead-lettered attempts.
	AddDead(count int)
	// AddErrors increments the count of faults of the given kind.
	AddErrors(kind string, count int)
	// SetPending updates the number of attempts awaiting retry.
	SetPending(count int)
	// SetDeadLetters updates the number of dead-lettered attempts.
	SetDeadLetters(count int)
}

// Error kinds reported through Metrics.AddErrors.
const (
	ErrorKindSource     = "source"
	ErrorKindPayload    = "payload"
	ErrorKindCheckpoint = "checkpoint"
	ErrorKindQueue      = "queue"
)

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveCycleDuration implements Metrics.
func (NopMetrics) ObserveCycleDuration(string, time.Duration) {}

// AddFetched implements Metrics.
func (NopMetrics) AddFetched(int) {}

// AddDelivered implements Metrics.
func (NopMetrics) AddDelivered(int) {}

// AddQueued implements Metrics.
func (NopMetrics) AddQueued(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddDead implements Metrics.
func (NopMetrics) AddDead(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(string, int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}

// SetDeadLetters implements Metrics.
func (NopMetrics) SetDeadLetters(int) {}
