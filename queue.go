package admsrelay

import (
	"context"

	"github.com/google/uuid"
)

// RetryState is the state of an attempt after a failed redelivery was recorded.
type RetryState struct {
	RetryCount int
	Status     Status
}

// Queue durably stores failed deliveries until they succeed or are dead-lettered.
//
// Every mutation must be durable before the call returns. Implementations
// must tolerate a Dispatcher enqueuing while a RetryWorker drains.
type Queue interface {
	// Enqueue persists a new attempt with retry count zero and returns its ID.
	Enqueue(ctx context.Context, attempt DeliveryAttempt) (uuid.UUID, error)
	// DueForRetry returns pending attempts with fewer than maxRetry retries, oldest first.
	DueForRetry(ctx context.Context, maxRetry, limit int) ([]DeliveryAttempt, error)
	// MarkSucceeded removes a delivered attempt.
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	// IncrementRetry records a failed redelivery and dead-letters the attempt
	// once its retry count reaches maxRetry.
	IncrementRetry(ctx context.Context, id uuid.UUID, maxRetry int, cause error) (RetryState, error)
}

// DeadLetterer supports immediate dead-lettering of attempts.
type DeadLetterer interface {
	// MarkDead dead-letters an attempt regardless of its retry count.
	MarkDead(ctx context.Context, id uuid.UUID, cause error) error
}

// BacklogCounter reports queue depth for operator visibility.
type BacklogCounter interface {
	// PendingCount returns the number of attempts still eligible for retry.
	PendingCount(ctx context.Context) (int, error)
	// DeadCount returns the number of dead-lettered attempts.
	DeadCount(ctx context.Context) (int, error)
}
