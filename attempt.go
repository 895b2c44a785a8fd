package admsrelay

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryAttempt is a durable record of one payload that failed to reach one destination.
type DeliveryAttempt struct {
	// ID is optional on enqueue, if zero, the queue assigns a UUID v7.
	ID uuid.UUID
	// Payload is the canonical body exactly as it was first sent.
	Payload json.RawMessage
	// Signature is the hex HMAC computed when the payload was first sent.
	Signature string
	// Destination is the endpoint the payload failed to reach.
	Destination string
	// CreatedAt is set by the queue on enqueue.
	CreatedAt time.Time
	// RetryCount is the number of failed redeliveries so far.
	RetryCount int
	// Status is pending until retries are exhausted.
	Status Status
	// LastError holds the most recent delivery failure, if any.
	LastError string
}

// Validate checks the fields required to redeliver the attempt verbatim.
func (a DeliveryAttempt) Validate() error {
	if len(a.Payload) == 0 {
		return ErrPayloadRequired
	}
	if a.Signature == "" {
		return ErrSignatureRequired
	}
	if a.Destination == "" {
		return ErrDestinationRequired
	}

	return nil
}

// Dead reports whether the attempt has been dead-lettered.
func (a DeliveryAttempt) Dead() bool {
	return a.Status == StatusDead
}
