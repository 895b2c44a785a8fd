package admsrelay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Delivery is one signed payload addressed to one destination.
type Delivery struct {
	Destination string
	Payload     []byte
	Signature   string
}

// Sender transmits a delivery to its destination.
type Sender interface {
	// Send returns nil only when the destination accepted the delivery.
	Send(ctx context.Context, delivery Delivery) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, delivery Delivery) error

// Send implements Sender.
func (fn SenderFunc) Send(ctx context.Context, delivery Delivery) error {
	return fn(ctx, delivery)
}

// DeliveryError reports a destination that answered with a non-success status.
type DeliveryError struct {
	Destination string
	StatusCode  int
	Body        string
}

// Error implements error.
func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("admsrelay: %s responded %d", e.Destination, e.StatusCode)
	}

	return fmt.Sprintf("admsrelay: %s responded %d: %s", e.Destination, e.StatusCode, e.Body)
}

// Router selects a Sender by destination URL scheme.
type Router struct {
	routes map[string]Sender
}

// NewRouter builds a Router. Scheme keys are matched case-insensitively.
func NewRouter(routes map[string]Sender) *Router {
	normalized := make(map[string]Sender, len(routes))
	for scheme, sender := range routes {
		if sender == nil {
			continue
		}
		normalized[strings.ToLower(scheme)] = sender
	}

	return &Router{routes: normalized}
}

// Supports reports whether a destination has a registered transport.
func (r *Router) Supports(destination string) bool {
	_, err := r.lookup(destination)

	return err == nil
}

// Send implements Sender.
func (r *Router) Send(ctx context.Context, delivery Delivery) error {
	sender, err := r.lookup(delivery.Destination)
	if err != nil {
		return err
	}

	return sender.Send(ctx, delivery)
}

func (r *Router) lookup(destination string) (Sender, error) {
	parsed, err := url.Parse(destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupportedDestination, destination, err)
	}
	sender, ok := r.routes[strings.ToLower(parsed.Scheme)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDestination, destination)
	}

	return sender, nil
}
