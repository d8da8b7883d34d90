package payment

import (
	"context"
	"encoding/json"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/models"
)

// WebhookPayload is the subset of the gateway's webhook envelope the
// Orchestrator reads to reconcile a payment.
type WebhookPayload struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		OrderCode     int64  `json:"orderCode"`
		PaymentLinkID string `json:"paymentLinkId"`
		Amount        int64  `json:"amount"`
		Description   string `json:"description"`
	} `json:"data"`
}

// WebhookOutcome summarizes what HandleWebhook did, for the handler layer
// to log without re-deriving it.
type WebhookOutcome struct {
	Handled   bool
	PaymentID string
	BookingID string
}

// HandleWebhook verifies the gateway signature, applies the delivery
// idempotently against the matching Payment row, and — on a successful
// payment — recomputes the booking's cumulative paid total and asks the
// Booking Engine to auto-confirm if the threshold is met.
//
// An invalid signature is reported as apperr.Unauthorized when
// allowInvalidSignature200 is false. Some gateway integrations expect webhook
// endpoints to always answer 200 (so the gateway does not endlessly retry a
// delivery it considers malformed); with allowInvalidSignature200 set (the
// configured default) HandleWebhook instead returns an unhandled outcome and
// no error, so the handler answers 200.
func (o *Orchestrator) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookOutcome, error) {
	if !o.gateway.VerifySignature(rawBody, signature) {
		if o.allowInvalidSignature200 {
			return &WebhookOutcome{Handled: false}, nil
		}
		return nil, apperr.Unauthorized("invalid webhook signature")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, apperr.Validation("malformed webhook body: %v", err)
	}

	payment, err := o.payments.GetByTransactionIDForUpdate(ctx, payload.Data.PaymentLinkID)
	if err != nil {
		return nil, apperr.Internal(err, "loading payment for transaction %s", payload.Data.PaymentLinkID)
	}
	if payment == nil {
		// Unknown transaction: nothing to reconcile. Treated as a no-op
		// success so the gateway does not retry indefinitely.
		return &WebhookOutcome{Handled: false}, nil
	}
	if payment.Status != models.PaymentStatusPending {
		// Already reconciled by a prior delivery of the same webhook.
		return &WebhookOutcome{Handled: true, PaymentID: payment.ID, BookingID: payment.BookingID}, nil
	}

	if payload.Code == "00" {
		return o.applyPaymentSuccess(ctx, payment)
	}
	return o.applyPaymentFailure(ctx, payment, payload.Desc)
}

func (o *Orchestrator) applyPaymentSuccess(ctx context.Context, payment *models.Payment) (*WebhookOutcome, error) {
	now := o.clock.Now()
	payment.Status = models.PaymentStatusPaid
	payment.PaidAt = &now
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, apperr.Internal(err, "marking payment %s paid", payment.ID)
	}

	cumulativePaid, err := o.cumulativePaid(ctx, payment.BookingID)
	if err != nil {
		return nil, err
	}
	if err := o.bookings.MaybeAutoConfirm(ctx, payment.BookingID, cumulativePaid); err != nil {
		return nil, apperr.Internal(err, "auto-confirming booking %s after payment", payment.BookingID)
	}

	_, _, customerRef, err := o.bookings.BookingPaymentInfo(ctx, payment.BookingID)
	if err == nil {
		o.notifier.PaymentSuccess(payment.BookingID, customerRef, payment.Amount)
	}

	return &WebhookOutcome{Handled: true, PaymentID: payment.ID, BookingID: payment.BookingID}, nil
}

func (o *Orchestrator) applyPaymentFailure(ctx context.Context, payment *models.Payment, reason string) (*WebhookOutcome, error) {
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason
	if err := o.payments.Update(ctx, payment); err != nil {
		return nil, apperr.Internal(err, "marking payment %s failed", payment.ID)
	}

	_, _, customerRef, err := o.bookings.BookingPaymentInfo(ctx, payment.BookingID)
	if err == nil {
		o.notifier.PaymentFailed(payment.BookingID, customerRef, reason)
	}

	return &WebhookOutcome{Handled: true, PaymentID: payment.ID, BookingID: payment.BookingID}, nil
}
