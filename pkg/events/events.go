package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// Publisher handles event publishing
type Publisher struct {
	conn   *nats.Conn
	logger logger.Logger
}

// Subscriber handles event subscriptions
type Subscriber struct {
	conn   *nats.Conn
	logger logger.Logger
}

// Connect connects to NATS.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewPublisher creates a new event publisher.
func NewPublisher(conn *nats.Conn, log logger.Logger) *Publisher {
	return &Publisher{conn: conn, logger: log}
}

// NewNullPublisher creates a publisher that discards events, used when NATS
// is not configured (local development).
func NewNullPublisher(log logger.Logger) *Publisher {
	return &Publisher{conn: nil, logger: log}
}

// Publish publishes an event.
func (p *Publisher) Publish(subject string, data interface{}) error {
	if p.conn == nil {
		p.logger.Debug("event publishing skipped (no NATS connection)", "subject", subject)
		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("published event", "subject", subject)
	return nil
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(conn *nats.Conn, log logger.Logger) *Subscriber {
	return &Subscriber{conn: conn, logger: log}
}

// Subscribe subscribes to events on a subject.
func (s *Subscriber) Subscribe(subject string, handler func([]byte) error) error {
	_, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			s.logger.Error("failed to handle event", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	s.logger.Debug("subscribed to subject", "subject", subject)
	return nil
}

// Event subjects, fired by the Booking Engine and Payment Orchestrator for
// fire-and-forget consumption by the (out-of-scope) notification service.
const (
	BookingCreatedEvent   = "booking.created"
	BookingConfirmedEvent = "booking.confirmed"
	BookingCancelledEvent = "booking.cancelled"
	BookingNoShowEvent    = "booking.no_show"
	SlotReservedEvent     = "slot.reserved"
	SlotReleasedEvent     = "slot.released"
	PaymentSuccessEvent   = "payment.success"
	PaymentFailedEvent    = "payment.failed"
	RefundIssuedEvent     = "refund.issued"
)
