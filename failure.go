package admsrelay

import (
	"context"
	"errors"
)

// FailureAction defines how a failed redelivery should be handled.
type FailureAction int

const (
	// FailureRetry counts the failure against the retry budget.
	FailureRetry FailureAction = iota
	// FailureDead dead-letters the attempt immediately.
	FailureDead
)

// FailureClassifier decides whether a redelivery failure is retryable.
type FailureClassifier func(ctx context.Context, attempt DeliveryAttempt, err error) FailureAction

func defaultFailureClassifier(context.Context, DeliveryAttempt, error) FailureAction {
	return FailureRetry
}

// DeadOnStatus dead-letters failures whose HTTP status is one of codes.
// Transport errors and other statuses are retried.
func DeadOnStatus(codes ...int) FailureClassifier {
	permanent := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		permanent[code] = struct{}{}
	}

	return func(_ context.Context, _ DeliveryAttempt, err error) FailureAction {
		var deliveryErr *DeliveryError
		if !errors.As(err, &deliveryErr) {
			return FailureRetry
		}
		if _, ok := permanent[deliveryErr.StatusCode]; ok {
			return FailureDead
		}

		return FailureRetry
	}
}
