// Package kafka publishes signed payloads to Kafka topics.
//
// Destinations take the form kafka://host1:9092,host2:9092/topic. The payload
// is the message value and the signature travels in the X-Adms-Signature
// header, so consumers verify it the same way webhook receivers do.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/velmie/admsrelay"
)

// Scheme is the destination URL scheme handled by Sender.
const Scheme = "kafka"

// ErrInvalidDestination indicates a kafka:// URL without brokers or topic.
var ErrInvalidDestination = errors.New("admsrelay kafka: invalid destination")

// Destination is a parsed kafka:// URL.
type Destination struct {
	Brokers []string
	Topic   string
}

// ParseDestination parses kafka://host1:9092,host2:9092/topic.
func ParseDestination(raw string) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, fmt.Errorf("%w: %s: %w", ErrInvalidDestination, raw, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Destination{}, fmt.Errorf("%w: %s: scheme must be %s", ErrInvalidDestination, raw, Scheme)
	}

	var brokers []string
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	topic := strings.Trim(u.Path, "/")
	if len(brokers) == 0 || topic == "" || strings.Contains(topic, "/") {
		return Destination{}, fmt.Errorf("%w: %s", ErrInvalidDestination, raw)
	}

	return Destination{Brokers: brokers, Topic: topic}, nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender publishes deliveries. One writer is kept per destination.
type Sender struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	newWriter func(Destination) messageWriter
}

var _ admsrelay.Sender = (*Sender)(nil)

// NewSender constructs a Sender that waits for all in-sync replicas.
func NewSender() *Sender {
	return &Sender{
		writers: make(map[string]messageWriter),
		newWriter: func(d Destination) messageWriter {
			return &kafka.Writer{
				Addr:         kafka.TCP(d.Brokers...),
				Topic:        d.Topic,
				Balancer:     &kafka.Hash{},
				RequiredAcks: kafka.RequireAll,
				BatchTimeout: 10 * time.Millisecond,
			}
		},
	}
}

// Send writes one message keyed by the signature.
func (s *Sender) Send(ctx context.Context, delivery admsrelay.Delivery) error {
	writer, err := s.writer(delivery.Destination)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(delivery.Signature),
		Value: delivery.Payload,
		Headers: []kafka.Header{
			{Key: admsrelay.SignatureHeader, Value: []byte(delivery.Signature)},
			{Key: "Content-Type", Value: []byte("application/json")},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("admsrelay kafka: publish %s: %w", delivery.Destination, err)
	}

	return nil
}

// Close closes every cached writer.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for dest, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("admsrelay kafka: close %s: %w", dest, err))
		}
		delete(s.writers, dest)
	}

	return errors.Join(errs...)
}

func (s *Sender) writer(destination string) (messageWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.writers[destination]; ok {
		return w, nil
	}
	dest, err := ParseDestination(destination)
	if err != nil {
		return nil, err
	}
	w := s.newWriter(dest)
	s.writers[destination] = w

	return w, nil
}
