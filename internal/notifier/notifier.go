// Package notifier fronts the fire-and-forget notification path used by
// the Booking Engine and Payment Orchestrator: a NATS event for other
// in-platform services, and a direct HTTP call to the notification
// service — mirroring the teacher's dual dispatch paths exactly.
package notifier

import (
	"github.com/datquang03/studio-booking-engine/pkg/events"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// EventPublisher is the subset of pkg/events.Publisher the Notifier needs,
// kept as an interface so tests can substitute a recording fake.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

// Notifier is the collaborator shim described in spec §4.6: send(userId,
// kind, payload) fire-and-forget.
type Notifier struct {
	publisher EventPublisher
	client    *NotificationClient
	log       logger.Logger
}

func New(publisher EventPublisher, client *NotificationClient, log logger.Logger) *Notifier {
	return &Notifier{publisher: publisher, client: client, log: log}
}

// Send publishes subject on the event bus and attempts direct delivery via
// the notification service. Both paths are best-effort: failures are
// logged and swallowed, never propagated to the caller's transaction.
func (n *Notifier) Send(subject, recipientRef string, payload map[string]interface{}) {
	if err := n.publisher.Publish(subject, payload); err != nil {
		n.log.Warn("failed to publish notification event", "subject", subject, "error", err)
	}

	if n.client == nil {
		return
	}
	if _, err := n.client.Send(SendRequest{Type: subject, RecipientRef: recipientRef, TemplateData: payload}); err != nil {
		n.log.Warn("failed to dispatch direct notification", "subject", subject, "recipient", recipientRef, "error", err)
	}
}

// BookingCreated fires the booking.created event.
func (n *Notifier) BookingCreated(bookingID, customerRef string) {
	n.Send(events.BookingCreatedEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef})
}

// BookingConfirmed fires the booking.confirmed event.
func (n *Notifier) BookingConfirmed(bookingID, customerRef string) {
	n.Send(events.BookingConfirmedEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef})
}

// BookingCancelled fires the booking.cancelled event.
func (n *Notifier) BookingCancelled(bookingID, customerRef string, refundAmount int64) {
	n.Send(events.BookingCancelledEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef, "refundAmount": refundAmount})
}

// BookingNoShow fires the booking.no_show event.
func (n *Notifier) BookingNoShow(bookingID, customerRef string, chargeAmount int64) {
	n.Send(events.BookingNoShowEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef, "chargeAmount": chargeAmount})
}

// PaymentSuccess fires the payment.success event.
func (n *Notifier) PaymentSuccess(bookingID, customerRef string, amount int64) {
	n.Send(events.PaymentSuccessEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef, "amount": amount})
}

// PaymentFailed fires the payment.failed event.
func (n *Notifier) PaymentFailed(bookingID, customerRef string, reason string) {
	n.Send(events.PaymentFailedEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef, "reason": reason})
}

// RefundIssued fires the refund.issued event.
func (n *Notifier) RefundIssued(bookingID, customerRef string, amount int64) {
	n.Send(events.RefundIssuedEvent, customerRef, map[string]interface{}{"bookingId": bookingID, "customerRef": customerRef, "amount": amount})
}
