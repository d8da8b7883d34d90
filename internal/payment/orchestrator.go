package payment

import (
	"context"
	"math/rand"
	"time"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/notifier"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// sessionExpiry is the gateway checkout link's hold window.
const sessionExpiry = 15 * time.Minute

// BookingConfirmer is the subset of the Booking Engine the Orchestrator
// depends on. Defined here (not in internal/booking) so neither package
// imports the other's concrete type — Booking rows stay the Booking
// Engine's exclusively, per the component boundary.
type BookingConfirmer interface {
	BookingPaymentInfo(ctx context.Context, bookingID string) (finalAmount int64, status, customerRef string, err error)
	MaybeAutoConfirm(ctx context.Context, bookingID string, cumulativePaid int64) error
}

// PaymentOption is one offered way to pay, returned by create_payment_options.
type PaymentOption struct {
	Kind       models.PaymentKind `json:"kind"`
	Percentage int                `json:"percentage"`
	Amount     int64              `json:"amount"`
}

// SessionResult is the response shape for create_session / create_remainder.
type SessionResult struct {
	PaymentID   string    `json:"paymentId"`
	CheckoutURL string    `json:"checkoutUrl"`
	QRCode      string    `json:"qrCode"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Orchestrator drives the external payment gateway and reconciles webhook
// deliveries back into booking state.
type Orchestrator struct {
	payments *repository.PaymentRepository
	gateway  Gateway
	bookings BookingConfirmer
	notifier *notifier.Notifier
	clock    clock.Clock
	log      logger.Logger

	allowInvalidSignature200 bool
}

func NewOrchestrator(
	payments *repository.PaymentRepository,
	gateway Gateway,
	bookings BookingConfirmer,
	notif *notifier.Notifier,
	clk clock.Clock,
	log logger.Logger,
	allowInvalidSignature200 bool,
) *Orchestrator {
	return &Orchestrator{
		payments:                 payments,
		gateway:                  gateway,
		bookings:                 bookings,
		notifier:                 notif,
		clock:                    clk,
		log:                      log,
		allowInvalidSignature200: allowInvalidSignature200,
	}
}

// CreatePaymentOptions lists the offered ways to pay without creating any
// gateway session.
func (o *Orchestrator) CreatePaymentOptions(ctx context.Context, bookingID string) ([]PaymentOption, error) {
	finalAmount, status, _, err := o.bookings.BookingPaymentInfo(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if isTerminalStatus(status) {
		return nil, apperr.Conflict("booking %s is already terminal", bookingID)
	}

	return []PaymentOption{
		{Kind: models.PaymentKindFull, Percentage: 100, Amount: finalAmount},
		{Kind: models.PaymentKindDeposit, Percentage: 30, Amount: depositAmount(finalAmount, 0.3)},
		{Kind: models.PaymentKindDeposit, Percentage: 50, Amount: depositAmount(finalAmount, 0.5)},
	}, nil
}

func depositAmount(finalAmount int64, fraction float64) int64 {
	return int64(float64(finalAmount) * fraction)
}

func isTerminalStatus(status string) bool {
	switch models.BookingStatus(status) {
	case models.BookingStatusCompleted, models.BookingStatusCancelled, models.BookingStatusNoShow:
		return true
	default:
		return false
	}
}

// CreateSession opens (or returns the existing unexpired) gateway checkout
// session for the requested kind/percentage. Rejects a terminal booking or
// one whose paid total already covers final_amount.
func (o *Orchestrator) CreateSession(ctx context.Context, bookingID, customerRef string, kind models.PaymentKind, amount int64) (*SessionResult, error) {
	finalAmount, status, ownerRef, err := o.bookings.BookingPaymentInfo(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if isTerminalStatus(status) {
		return nil, apperr.Conflict("booking %s is already terminal", bookingID)
	}
	if customerRef != "" && customerRef != ownerRef {
		return nil, apperr.Forbidden("not authorized to create a payment session for booking %s", bookingID)
	}

	paidSoFar, err := o.cumulativePaid(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if paidSoFar >= finalAmount {
		return nil, apperr.Conflict("booking %s is already paid in full", bookingID)
	}

	now := o.clock.Now()
	if existing, err := o.payments.FindPendingByBookingAndKind(ctx, bookingID, kind, now); err != nil {
		return nil, apperr.Internal(err, "checking for an existing pending payment")
	} else if existing != nil {
		return &SessionResult{
			PaymentID:   existing.ID,
			CheckoutURL: existing.CheckoutURL,
			ExpiresAt:   derefTime(existing.ExpiresAt),
		}, nil
	}

	if amount <= 0 || amount > finalAmount-paidSoFar {
		amount = finalAmount - paidSoFar
	}

	return o.openSession(ctx, bookingID, kind, amount)
}

// CreateRemainder opens a session for final_amount minus everything paid so
// far. Rejects if no deposit has been paid yet.
func (o *Orchestrator) CreateRemainder(ctx context.Context, bookingID string) (*SessionResult, error) {
	finalAmount, status, _, err := o.bookings.BookingPaymentInfo(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if isTerminalStatus(status) {
		return nil, apperr.Conflict("booking %s is already terminal", bookingID)
	}

	paidSoFar, err := o.cumulativePaid(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if paidSoFar <= 0 {
		return nil, apperr.PolicyViolation("no deposit has been paid yet for booking %s", bookingID)
	}
	remainder := finalAmount - paidSoFar
	if remainder <= 0 {
		return nil, apperr.Conflict("booking %s is already paid in full", bookingID)
	}

	return o.openSession(ctx, bookingID, models.PaymentKindRemainder, remainder)
}

func (o *Orchestrator) openSession(ctx context.Context, bookingID string, kind models.PaymentKind, amount int64) (*SessionResult, error) {
	orderCode := rand.Int63n(1_000_000_000)
	link, err := o.gateway.CreateLink(CreateLinkRequest{
		OrderCode:   orderCode,
		Amount:      amount,
		Description: "Studio booking payment",
	})
	if err != nil {
		return nil, apperr.Gateway(err, "creating gateway checkout session")
	}

	now := o.clock.Now()
	expires := now.Add(sessionExpiry)
	payment := &models.Payment{
		BookingID:     bookingID,
		Kind:          kind,
		Status:        models.PaymentStatusPending,
		Amount:        amount,
		TransactionID: link.PaymentLinkID,
		CheckoutURL:   link.CheckoutURL,
		ExpiresAt:     &expires,
	}
	if err := o.payments.Create(ctx, payment); err != nil {
		return nil, apperr.Internal(err, "persisting payment session")
	}

	return &SessionResult{
		PaymentID:   payment.ID,
		CheckoutURL: link.CheckoutURL,
		QRCode:      link.QRCode,
		ExpiresAt:   expires,
	}, nil
}

func (o *Orchestrator) cumulativePaid(ctx context.Context, bookingID string) (int64, error) {
	payments, err := o.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return 0, apperr.Internal(err, "listing payments for booking %s", bookingID)
	}
	var sum int64
	for _, p := range payments {
		if p.Status == models.PaymentStatusPaid {
			sum += p.Amount
		}
	}
	return sum, nil
}

// GetStatus returns a single payment by id.
func (o *Orchestrator) GetStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := o.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperr.Internal(err, "loading payment %s", paymentID)
	}
	if p == nil {
		return nil, apperr.NotFound("payment %s not found", paymentID)
	}
	return p, nil
}

// RequestRefund records a refund against a paid payment. Satisfies
// internal/booking.RefundRequester; invoked by the Booking Engine on
// cancellation. It marks the first paid payment whose amount covers the
// refund as refunded and emits a refund-issued notification; it makes no
// gateway refund call and retries nothing. When no paid payment covers the
// amount it logs a warning and returns nil. Repository errors are returned
// to the caller; the Booking Engine logs them without undoing the
// cancellation.
func (o *Orchestrator) RequestRefund(ctx context.Context, bookingID string, amount int64, reason string) error {
	payments, err := o.payments.ListByBooking(ctx, bookingID)
	if err != nil {
		return apperr.Internal(err, "listing payments for refund on booking %s", bookingID)
	}

	var target *models.Payment
	for i := range payments {
		if payments[i].Status == models.PaymentStatusPaid && payments[i].Amount >= amount {
			target = &payments[i]
			break
		}
	}
	if target == nil {
		o.log.Warn("no paid payment covers the requested refund", "bookingId", bookingID, "amount", amount)
		return nil
	}

	target.Status = models.PaymentStatusRefunded
	if err := o.payments.Update(ctx, target); err != nil {
		return apperr.Internal(err, "marking payment %s refunded", target.ID)
	}

	_, _, customerRef, _ := o.bookings.BookingPaymentInfo(ctx, bookingID)
	o.notifier.RefundIssued(bookingID, customerRef, amount)
	return nil
}

// SweepExpired transitions lapsed pending payments to expired. Run
// periodically by the background cron scheduler.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int64, error) {
	n, err := o.payments.SweepExpired(ctx, o.clock.Now())
	if err != nil {
		return 0, apperr.Internal(err, "sweeping expired payments")
	}
	return n, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
