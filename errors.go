package admsrelay

import "errors"

var (
	// ErrInvalidMaxRetry indicates that the retry limit is not positive.
	ErrInvalidMaxRetry = errors.New("admsrelay max retry must be positive")
	// ErrNoDestinations is returned when a dispatcher is built without destinations.
	ErrNoDestinations = errors.New("admsrelay at least one destination is required")
	// ErrSecretRequired is returned when a signer is built with an empty secret.
	ErrSecretRequired = errors.New("admsrelay signing secret is required")
	// ErrPayloadRequired is returned when an attempt carries an empty payload.
	ErrPayloadRequired = errors.New("admsrelay payload is required")
	// ErrSignatureRequired is returned when an attempt carries no signature.
	ErrSignatureRequired = errors.New("admsrelay signature is required")
	// ErrDestinationRequired is returned when an attempt has no destination.
	ErrDestinationRequired = errors.New("admsrelay destination is required")
	// ErrInvalidWorkCode is returned when a work code is not an integer.
	ErrInvalidWorkCode = errors.New("admsrelay work code must be an integer")
	// ErrUnsupportedDestination is returned when no transport handles a destination scheme.
	ErrUnsupportedDestination = errors.New("admsrelay unsupported destination scheme")
	// ErrAttemptNotFound is returned when a queue mutation targets a missing attempt.
	ErrAttemptNotFound = errors.New("admsrelay delivery attempt not found")
	// ErrEnqueueFailed wraps storage faults while persisting a failed delivery.
	ErrEnqueueFailed = errors.New("admsrelay enqueue failed")
	// ErrTaskPanic indicates a scheduled task panicked.
	ErrTaskPanic = errors.New("admsrelay task panic")
)
