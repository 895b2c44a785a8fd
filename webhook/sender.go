// Package webhook delivers signed payloads to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velmie/admsrelay"
)

const (
	// UserAgent identifies the relay to receiving endpoints.
	UserAgent = "Adms Server Nitgen/1.0(Adms Webhook Nitgen)"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Sender posts deliveries as JSON.
type Sender struct {
	client *http.Client
}

var _ admsrelay.Sender = (*Sender)(nil)

// Option configures the Sender.
type Option func(*Sender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Sender) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sender) {
		if timeout > 0 {
			s.client.Timeout = timeout
		}
	}
}

// NewSender constructs a webhook sender with a 30s request timeout.
func NewSender(opts ...Option) *Sender {
	s := &Sender{client: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send POSTs the payload with the signature header. Any non-2xx response is
// returned as *admsrelay.DeliveryError.
func (s *Sender) Send(ctx context.Context, delivery admsrelay.Delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Destination, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("admsrelay webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(admsrelay.SignatureHeader, delivery.Signature)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("admsrelay webhook: post %s: %w", delivery.Destination, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &admsrelay.DeliveryError{
			Destination: delivery.Destination,
			StatusCode:  resp.StatusCode,
			Body:        strings.TrimSpace(string(body)),
		}
	}

	return nil
}
