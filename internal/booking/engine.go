// Package booking implements the Booking Engine: the orchestrator that
// coordinates the Scheduler, Equipment Inventory, Policy Engine, and
// Payment Orchestrator across a booking's full lifecycle (create, confirm,
// check-in/out, extend, cancel, mark no-show, update).
package booking

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/equipment"
	"github.com/datquang03/studio-booking-engine/internal/middleware"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/notifier"
	"github.com/datquang03/studio-booking-engine/internal/policy"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/internal/scheduling"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

// RefundRequester is the subset of the Payment Orchestrator the Booking
// Engine needs to enqueue a refund on cancellation. Defined here so this
// package never imports internal/payment; the orchestrator is wired in at
// startup as the concrete implementation.
type RefundRequester interface {
	RequestRefund(ctx context.Context, bookingID string, amount int64, reason string) error
}

// Engine orchestrates the booking lifecycle described by the state machine
// pending -> confirmed -> checked_in -> completed, with cancelled/no_show
// terminal branches reachable from pending/confirmed and confirmed
// respectively.
type Engine struct {
	db         *gorm.DB
	bookings   *repository.BookingRepository
	details    *repository.BookingDetailRepository
	policies   *repository.PolicyRepository
	studios    *repository.StudioRepository
	equipments *repository.EquipmentRepository
	scheduler  *scheduling.Scheduler
	inventory  *equipment.Inventory
	clock      clock.Clock
	notifier   *notifier.Notifier
	refunds    RefundRequester
	log        logger.Logger
}

func NewEngine(
	db *gorm.DB,
	bookings *repository.BookingRepository,
	details *repository.BookingDetailRepository,
	policies *repository.PolicyRepository,
	studios *repository.StudioRepository,
	equipments *repository.EquipmentRepository,
	scheduler *scheduling.Scheduler,
	inventory *equipment.Inventory,
	clk clock.Clock,
	notif *notifier.Notifier,
	log logger.Logger,
) *Engine {
	return &Engine{
		db:         db,
		bookings:   bookings,
		details:    details,
		policies:   policies,
		studios:    studios,
		equipments: equipments,
		scheduler:  scheduler,
		inventory:  inventory,
		clock:      clk,
		notifier:   notif,
		log:        log,
	}
}

// SetRefundRequester wires the Payment Orchestrator in after construction,
// avoiding an import cycle between internal/booking and internal/payment.
func (e *Engine) SetRefundRequester(r RefundRequester) {
	e.refunds = r
}

// checkInLeadWindow is the window before a slot's start in which check-in
// is already allowed.
const checkInLeadWindow = 15 * time.Minute

// DetailInput is one requested line item on booking creation. PricePerUnit
// is only read for service-kind details; equipment pricing is always
// derived from the catalog's PricePerHour times the slot duration.
type DetailInput struct {
	Kind         models.BookingDetailKind
	TargetRef    string
	Quantity     int
	PricePerUnit int64
}

// CreateInput is the full set of inputs to Create.
type CreateInput struct {
	CustomerRef string
	SlotID      string
	StudioID    string
	StartTime   time.Time
	EndTime     time.Time
	PayType     models.PayType
	Details     []DetailInput
	PromoCode   string
	Notes       string
}

// Create runs the booking-creation saga described in spec §4.4.1: resolve
// studio and slot, reserve equipment and the slot (both atomic, committed
// independently of the final persistence step), snapshot policy, and
// persist the booking and its details in one transaction. Any failure after
// a reservation has been made is compensated: equipment and slot
// reservations already taken are released and the original error is
// returned to the caller.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	if in.CustomerRef == "" {
		return nil, apperr.Validation("customerRef is required")
	}
	if in.PayType == "" {
		in.PayType = models.PayTypeFull
	}

	studio, err := e.resolveStudio(ctx, in)
	if err != nil {
		return nil, err
	}

	slot, err := e.resolveSlot(ctx, studio.ID, in)
	if err != nil {
		return nil, err
	}

	bookingID := uuid.New().String()

	reservedEquipment := make(map[uint]int)
	slotReserved := false
	compensate := func() {
		for eqID, qty := range reservedEquipment {
			if relErr := e.inventory.Release(context.Background(), eqID, qty); relErr != nil {
				e.log.Warn("compensation: failed to release equipment", "equipmentId", eqID, "error", relErr)
			}
		}
		if !slotReserved {
			return
		}
		if relErr := e.scheduler.Release(context.Background(), slot.ID); relErr != nil {
			e.log.Warn("compensation: failed to release slot", "slotId", slot.ID, "error", relErr)
		}
	}

	details := make([]models.BookingDetail, 0, len(in.Details))
	hours := slot.Duration().Hours()
	for _, d := range in.Details {
		detail, err := e.buildDetail(ctx, d, hours)
		if err != nil {
			compensate()
			return nil, err
		}
		if d.Kind == models.BookingDetailKindEquipment {
			eqID, _ := strconv.ParseUint(d.TargetRef, 10, 64)
			reservedEquipment[uint(eqID)] += d.Quantity
		}
		details = append(details, *detail)
	}

	if _, err := e.scheduler.Reserve(ctx, slot.ID, bookingID); err != nil {
		compensate()
		return nil, err
	}
	slotReserved = true

	cancelSnapshot, noShowSnapshot, err := e.snapshotPolicies(ctx, studio.ID)
	if err != nil {
		compensate()
		return nil, err
	}

	noShowCount, err := e.bookings.CountNoShowsByCustomer(ctx, in.CustomerRef)
	if err != nil {
		compensate()
		return nil, apperr.Internal(err, "counting prior no-shows for customer %s", in.CustomerRef)
	}

	booking := &models.Booking{
		ID:                         bookingID,
		SlotID:                     slot.ID,
		StudioID:                   studio.ID,
		CustomerRef:                in.CustomerRef,
		Status:                     models.BookingStatusPending,
		PayType:                    in.PayType,
		Notes:                      in.Notes,
		Details:                    details,
		PreviousNoShowCount:        noShowCount,
		CancellationPolicySnapshot: cancelSnapshot,
		NoShowPolicySnapshot:       noShowSnapshot,
	}
	booking.Recompute(studio.BasePricePerHour, slot.Duration())

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.bookings.WithTx(tx).Create(ctx, booking); err != nil {
			return apperr.Internal(err, "persisting booking")
		}
		detailRepo := e.details.WithTx(tx)
		for i := range booking.Details {
			booking.Details[i].BookingID = booking.ID
			if err := detailRepo.Create(ctx, &booking.Details[i]); err != nil {
				return apperr.Internal(err, "persisting booking detail")
			}
		}
		return nil
	})
	if err != nil {
		compensate()
		return nil, err
	}

	e.notifier.BookingCreated(booking.ID, booking.CustomerRef)
	return booking, nil
}

func (e *Engine) resolveStudio(ctx context.Context, in CreateInput) (*models.Studio, error) {
	studioID := in.StudioID
	if studioID == "" && in.SlotID == "" {
		return nil, apperr.Validation("either slotId or studioId+startTime+endTime is required")
	}
	if studioID == "" {
		// studioID will be resolved from the slot in resolveSlot; look it up
		// lazily here by peeking at the slot first.
		slot, err := e.scheduler.GetSlot(ctx, in.SlotID)
		if err != nil {
			return nil, err
		}
		studioID = slot.StudioID
	}
	studio, err := e.studios.GetByID(ctx, studioID)
	if err != nil {
		return nil, apperr.Internal(err, "loading studio %s", studioID)
	}
	if studio == nil {
		return nil, apperr.NotFound("studio %s not found", studioID)
	}
	if !studio.IsActive() {
		return nil, apperr.Conflict("studio %s is not active", studioID)
	}
	return studio, nil
}

func (e *Engine) resolveSlot(ctx context.Context, studioID string, in CreateInput) (*models.Slot, error) {
	if in.SlotID != "" {
		slot, err := e.scheduler.GetSlot(ctx, in.SlotID)
		if err != nil {
			return nil, err
		}
		if slot.Status != models.SlotStatusAvailable {
			return nil, apperr.Conflict("slot %s is not available", slot.ID)
		}
		return slot, nil
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return nil, apperr.Validation("startTime and endTime are required when slotId is not given")
	}
	return e.scheduler.FindOrCreateAvailable(ctx, studioID, in.StartTime, in.EndTime)
}

func (e *Engine) buildDetail(ctx context.Context, d DetailInput, slotHours float64) (*models.BookingDetail, error) {
	if d.Quantity <= 0 {
		return nil, apperr.Validation("detail quantity must be positive")
	}

	detail := &models.BookingDetail{Kind: d.Kind, TargetRef: d.TargetRef, Quantity: d.Quantity}

	switch d.Kind {
	case models.BookingDetailKindEquipment:
		eqID64, perr := strconv.ParseUint(d.TargetRef, 10, 64)
		if perr != nil {
			return nil, apperr.Validation("invalid equipment targetRef %q", d.TargetRef)
		}
		eqID := uint(eqID64)
		if err := e.inventory.Reserve(ctx, eqID, d.Quantity); err != nil {
			return nil, err
		}
		eq, err := e.equipments.GetByID(ctx, eqID)
		if err != nil || eq == nil {
			if relErr := e.inventory.Release(context.Background(), eqID, d.Quantity); relErr != nil {
				e.log.Warn("failed to release equipment after reload failure", "equipmentId", eqID, "error", relErr)
			}
			return nil, apperr.Internal(err, "reloading equipment %d after reservation", eqID)
		}
		detail.PricePerUnit = int64(float64(eq.PricePerHour) * slotHours)
	case models.BookingDetailKindService:
		if d.PricePerUnit < 0 {
			return nil, apperr.Validation("service pricePerUnit must not be negative")
		}
		detail.PricePerUnit = d.PricePerUnit
	default:
		return nil, apperr.Validation("unknown detail kind %q", d.Kind)
	}

	detail.Recompute()
	return detail, nil
}

// snapshotPolicies freezes the currently-active cancellation and no-show
// policies for the studio's category into immutable JSON copies.
func (e *Engine) snapshotPolicies(ctx context.Context, category string) (cancelSnapshot, noShowSnapshot []byte, err error) {
	cancelPolicy, err := e.policies.GetActive(ctx, models.PolicyTypeCancellation, category)
	if err != nil {
		return nil, nil, apperr.Internal(err, "loading active cancellation policy")
	}
	if cancelPolicy != nil {
		cancelSnapshot = []byte(cancelPolicy.Payload)
	}

	noShowPolicy, err := e.policies.GetActive(ctx, models.PolicyTypeNoShow, category)
	if err != nil {
		return nil, nil, apperr.Internal(err, "loading active no-show policy")
	}
	if noShowPolicy != nil {
		noShowSnapshot = []byte(noShowPolicy.Payload)
	}
	return cancelSnapshot, noShowSnapshot, nil
}

// GetByID loads a booking, enforcing that customers may only see their own.
func (e *Engine) GetByID(ctx context.Context, id string, auth middleware.AuthContext) (*models.Booking, error) {
	b, err := e.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanActOnBooking(b.CustomerRef) {
		return nil, apperr.Forbidden("not authorized to view booking %s", id)
	}
	return b, nil
}

// ListForCustomer returns a customer's own bookings, paginated.
func (e *Engine) ListForCustomer(ctx context.Context, customerRef string, status models.BookingStatus, limit, offset int) ([]models.Booking, int64, error) {
	return e.bookings.ListByCustomer(ctx, customerRef, status, limit, offset)
}

// ListAll returns all bookings, paginated (staff/admin view).
func (e *Engine) ListAll(ctx context.Context, status models.BookingStatus, limit, offset int) ([]models.Booking, int64, error) {
	return e.bookings.ListAll(ctx, status, limit, offset)
}

func (e *Engine) mustLoad(ctx context.Context, id string) (*models.Booking, error) {
	b, err := e.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(err, "loading booking %s", id)
	}
	if b == nil {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b, nil
}

// Confirm transitions a pending booking to confirmed. auth is nil when
// invoked internally by the Payment Orchestrator on a successful payment;
// otherwise the caller must be staff/admin (manual override).
func (e *Engine) Confirm(ctx context.Context, id string, auth *middleware.AuthContext) (*models.Booking, error) {
	if auth != nil && !auth.IsStaffOrAdmin() {
		return nil, apperr.Forbidden("staff or admin role required to confirm a booking")
	}

	var booking *models.Booking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if b.Status != models.BookingStatusPending {
			return apperr.Conflict("booking %s is not pending (status=%s)", id, b.Status)
		}
		now := e.clock.Now()
		b.Status = models.BookingStatusConfirmed
		b.ConfirmedAt = &now
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "confirming booking %s", id)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.BookingConfirmed(booking.ID, booking.CustomerRef)
	return booking, nil
}

// MaybeAutoConfirm checks whether cumulativePaid has reached the booking's
// confirmation threshold and, if so, confirms it. Called by the Payment
// Orchestrator after recording a successful payment. Satisfies the
// BookingConfirmer interface the Orchestrator depends on.
func (e *Engine) MaybeAutoConfirm(ctx context.Context, id string, cumulativePaid int64) error {
	b, err := e.mustLoad(ctx, id)
	if err != nil {
		return err
	}
	if b.Status != models.BookingStatusPending {
		return nil
	}
	if cumulativePaid < b.ConfirmThreshold() {
		return nil
	}
	_, err = e.Confirm(ctx, id, nil)
	return err
}

// BookingPaymentInfo returns the subset of booking state the Payment
// Orchestrator needs (it never reads Booking rows directly — Booking rows
// are the Booking Engine's exclusively). Satisfies BookingConfirmer.
func (e *Engine) BookingPaymentInfo(ctx context.Context, id string) (finalAmount int64, status, customerRef string, err error) {
	b, err := e.mustLoad(ctx, id)
	if err != nil {
		return 0, "", "", err
	}
	return b.FinalAmount, string(b.Status), b.CustomerRef, nil
}

// CheckIn transitions confirmed -> checked_in, allowed only within
// [start - 15min, end) of the slot.
func (e *Engine) CheckIn(ctx context.Context, id string, auth middleware.AuthContext) (*models.Booking, error) {
	if !auth.IsStaffOrAdmin() {
		return nil, apperr.Forbidden("staff or admin role required to check in a booking")
	}

	var booking *models.Booking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if b.Status != models.BookingStatusConfirmed {
			return apperr.Conflict("booking %s is not confirmed (status=%s)", id, b.Status)
		}
		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if now.Before(slot.StartTime.Add(-checkInLeadWindow)) || !now.Before(slot.EndTime) {
			return apperr.PolicyViolation("check-in is only allowed between %s and %s", slot.StartTime.Add(-checkInLeadWindow), slot.EndTime)
		}

		b.Status = models.BookingStatusCheckedIn
		b.CheckedInAt = &now
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "checking in booking %s", id)
		}
		booking = b
		return e.scheduler.TransitionStatus(ctx, b.SlotID, models.SlotStatusOngoing)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CheckOut transitions checked_in -> completed, releasing equipment.
func (e *Engine) CheckOut(ctx context.Context, id string, auth middleware.AuthContext) (*models.Booking, error) {
	if !auth.IsStaffOrAdmin() {
		return nil, apperr.Forbidden("staff or admin role required to check out a booking")
	}

	var booking *models.Booking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if b.Status != models.BookingStatusCheckedIn {
			return apperr.Conflict("booking %s is not checked in (status=%s)", id, b.Status)
		}

		now := e.clock.Now()
		b.Status = models.BookingStatusCompleted
		b.CheckedOutAt = &now
		b.CompletedAt = &now
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "checking out booking %s", id)
		}
		booking = b
		return e.scheduler.TransitionStatus(ctx, b.SlotID, models.SlotStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	e.releaseEquipment(ctx, booking)
	return booking, nil
}

func (e *Engine) releaseEquipment(ctx context.Context, b *models.Booking) {
	for _, d := range b.Details {
		if d.Kind != models.BookingDetailKindEquipment {
			continue
		}
		eqID64, err := strconv.ParseUint(d.TargetRef, 10, 64)
		if err != nil {
			continue
		}
		if err := e.inventory.Release(ctx, uint(eqID64), d.Quantity); err != nil {
			e.log.Warn("failed to release equipment on booking terminal transition", "bookingId", b.ID, "equipmentId", eqID64, "error", err)
		}
	}
}

// ExtensionAvailability is the response shape for GET /bookings/:id/extension.
type ExtensionAvailability struct {
	CanExtend        bool
	AvailableMinutes int
	Reason           string
}

// CheckExtensionAvailability reports how much headroom exists before the
// next non-terminal slot of the same studio, without mutating anything.
func (e *Engine) CheckExtensionAvailability(ctx context.Context, id string) (*ExtensionAvailability, error) {
	b, err := e.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusCheckedIn {
		return &ExtensionAvailability{CanExtend: false, Reason: "booking is not in an extendable state"}, nil
	}
	slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
	if err != nil {
		return nil, err
	}
	next, err := e.scheduler.List(ctx, b.StudioID, slot.EndTime, slot.EndTime.Add(24*time.Hour), models.NonTerminalSlotStatuses)
	if err != nil {
		return nil, err
	}

	gap := 24 * time.Hour
	for _, candidate := range next {
		if candidate.ID == slot.ID {
			continue
		}
		if d := candidate.StartTime.Sub(slot.EndTime); d >= 0 && d < gap {
			gap = d
		}
	}

	maxExtension := gap - models.MinGapDuration
	if maxExtension <= 0 {
		return &ExtensionAvailability{CanExtend: false, Reason: "no room before the next booking"}, nil
	}
	return &ExtensionAvailability{CanExtend: true, AvailableMinutes: int(maxExtension.Minutes())}, nil
}

// Extend applies spec §4.4.4's algorithm: validate headroom via the
// Scheduler, atomically update the slot's end time, and recompute the
// booking's totals. The caller must subsequently create a payment for the
// additional amount; extension is committed before payment to avoid losing
// the slot.
//
// Additional duration is rounded to whole minutes before pricing, since
// pricePerHour is an integer and slot durations may be fractional.
func (e *Engine) Extend(ctx context.Context, id string, newEnd time.Time, auth middleware.AuthContext) (*models.Booking, int64, error) {
	var booking *models.Booking
	var additionalAmount int64

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if !auth.CanActOnBooking(b.CustomerRef) {
			return apperr.Forbidden("not authorized to extend booking %s", id)
		}
		if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusCheckedIn {
			return apperr.Conflict("booking %s cannot be extended in status %s", id, b.Status)
		}

		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		if !newEnd.After(slot.EndTime) {
			return apperr.Validation("newEndTime must be after the current end time")
		}

		studio, err := e.studios.GetByID(ctx, b.StudioID)
		if err != nil || studio == nil {
			return apperr.Internal(err, "loading studio %s", b.StudioID)
		}

		additionalMinutes := newEnd.Sub(slot.EndTime).Round(time.Minute).Minutes()
		additionalAmount = int64(float64(studio.BasePricePerHour) * additionalMinutes / 60.0)

		if err := e.scheduler.Extend(ctx, slot, newEnd); err != nil {
			return err
		}

		b.BeforeDiscount += additionalAmount
		b.BaseAmount += additionalAmount
		final := b.BeforeDiscount - b.DiscountAmount
		if final < 0 {
			final = 0
		}
		b.FinalAmount = final
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "persisting extended booking %s", id)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return booking, additionalAmount, nil
}

// Cancel applies spec §4.4.5: compute the refund via the Policy Engine,
// transition to cancelled, release the slot and equipment, and (if a
// positive refund is due against an existing paid payment) enqueue a
// refund request to the Payment Orchestrator.
func (e *Engine) Cancel(ctx context.Context, id, reason string, auth middleware.AuthContext) (*models.Booking, *policy.CancellationResult, error) {
	var booking *models.Booking
	var result policy.CancellationResult

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if !auth.CanActOnBooking(b.CustomerRef) {
			return apperr.Forbidden("not authorized to cancel booking %s", id)
		}
		if b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed {
			return apperr.Conflict("booking %s cannot be cancelled in status %s", id, b.Status)
		}

		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}

		var cancelSnapshot models.CancellationPolicy
		if len(b.CancellationPolicySnapshot) > 0 {
			if err := json.Unmarshal(b.CancellationPolicySnapshot, &cancelSnapshot); err != nil {
				return apperr.Internal(err, "decoding cancellation policy snapshot for booking %s", id)
			}
		}

		now := e.clock.Now()
		result = policy.ComputeCancellationRefund(cancelSnapshot, slot.StartTime, now, b.FinalAmount)

		b.Status = models.BookingStatusCancelled
		b.CancelledAt = &now
		b.CancelReason = reason
		b.FinancialOriginal = b.FinalAmount
		b.FinancialRefund = result.RefundAmount
		b.FinancialCharge = result.ChargeAmount
		b.FinancialNet = result.RefundAmount - result.ChargeAmount
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "cancelling booking %s", id)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := e.scheduler.Release(ctx, booking.SlotID); err != nil {
		e.log.Warn("failed to release slot on cancellation", "bookingId", booking.ID, "error", err)
	}
	e.releaseEquipment(ctx, booking)

	if result.RefundAmount > 0 && e.refunds != nil {
		if err := e.refunds.RequestRefund(ctx, booking.ID, result.RefundAmount, reason); err != nil {
			e.log.Warn("failed to enqueue refund request", "bookingId", booking.ID, "error", err)
		}
	}

	e.notifier.BookingCancelled(booking.ID, booking.CustomerRef, result.RefundAmount)
	return booking, &result, nil
}

// MarkNoShow applies spec §4.4.6. auth is nil when invoked by the
// background sweep; in that case the grace-window and confirmed-only
// checks are the only gating (an automatic mark never fires early or for a
// non-confirmed booking). When invoked manually, staff/admin role is
// required and an attempt inside the grace window is rejected.
func (e *Engine) MarkNoShow(ctx context.Context, id string, checkInTime *time.Time, auth *middleware.AuthContext) (*models.Booking, error) {
	if auth != nil && !auth.IsStaffOrAdmin() {
		return nil, apperr.Forbidden("staff or admin role required to mark a no-show")
	}

	var booking *models.Booking
	var result policy.NoShowResult

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if b.Status != models.BookingStatusConfirmed {
			return apperr.Conflict("booking %s cannot be marked no-show in status %s", id, b.Status)
		}

		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}

		var noShowSnapshot models.NoShowPolicy
		if len(b.NoShowPolicySnapshot) > 0 {
			if err := json.Unmarshal(b.NoShowPolicySnapshot, &noShowSnapshot); err != nil {
				return apperr.Internal(err, "decoding no-show policy snapshot for booking %s", id)
			}
		}

		now := e.clock.Now()
		if policy.IsWithinNoShowGrace(noShowSnapshot, slot.StartTime, now) {
			return apperr.PolicyViolation("booking %s is still within the no-show grace period", id)
		}

		result = policy.ComputeNoShowCharge(noShowSnapshot, slot.StartTime, checkInTime, b.FinalAmount, b.PreviousNoShowCount)

		b.Status = models.BookingStatusNoShow
		b.NoShowAt = &now
		b.FinancialOriginal = b.FinalAmount
		b.FinancialRefund = 0
		b.FinancialCharge = result.ChargeAmount
		b.FinancialNet = -result.ChargeAmount
		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "marking booking %s no-show", id)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := e.scheduler.Release(ctx, booking.SlotID); err != nil {
		e.log.Warn("failed to release slot on no-show", "bookingId", booking.ID, "error", err)
	}
	e.releaseEquipment(ctx, booking)

	e.notifier.BookingNoShow(booking.ID, booking.CustomerRef, result.ChargeAmount)
	return booking, nil
}

// UpdateInput is the set of staff-mutable fields per spec §4.4.7.
type UpdateInput struct {
	Notes           *string
	DiscountAmount  *int64
	AddDetails      []DetailInput
	RemoveDetailIDs []uint
}

// Update applies staff-only mutations: notes, discount_amount, and
// add/remove detail lines (reserving/releasing equipment correspondingly).
// Disallowed once the booking is terminal.
func (e *Engine) Update(ctx context.Context, id string, in UpdateInput, auth middleware.AuthContext) (*models.Booking, error) {
	if !auth.IsStaffOrAdmin() {
		return nil, apperr.Forbidden("staff or admin role required to update a booking")
	}

	reservedEquipment := make(map[uint]int)
	compensateAdds := func() {
		for eqID, qty := range reservedEquipment {
			if err := e.inventory.Release(context.Background(), eqID, qty); err != nil {
				e.log.Warn("compensation: failed to release equipment on update failure", "equipmentId", eqID, "error", err)
			}
		}
	}

	var booking *models.Booking
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := e.bookings.WithTx(tx).GetByIDForUpdate(ctx, id)
		if err != nil {
			return apperr.Internal(err, "loading booking %s for update", id)
		}
		if b == nil {
			return apperr.NotFound("booking %s not found", id)
		}
		if b.IsTerminal() {
			return apperr.Conflict("booking %s is terminal and cannot be updated", id)
		}

		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			return err
		}
		studio, err := e.studios.GetByID(ctx, b.StudioID)
		if err != nil || studio == nil {
			return apperr.Internal(err, "loading studio %s", b.StudioID)
		}

		if in.Notes != nil {
			b.Notes = *in.Notes
		}
		if in.DiscountAmount != nil {
			if *in.DiscountAmount < 0 {
				return apperr.Validation("discountAmount must not be negative")
			}
			b.DiscountAmount = *in.DiscountAmount
		}

		detailRepo := e.details.WithTx(tx)
		for _, rmID := range in.RemoveDetailIDs {
			removed, err := detailRepo.GetByID(ctx, rmID)
			if err != nil {
				return apperr.Internal(err, "loading booking detail %d", rmID)
			}
			if removed == nil || removed.BookingID != b.ID {
				continue
			}
			if removed.Kind == models.BookingDetailKindEquipment {
				eqID64, _ := strconv.ParseUint(removed.TargetRef, 10, 64)
				if relErr := e.inventory.Release(ctx, uint(eqID64), removed.Quantity); relErr != nil {
					e.log.Warn("failed to release equipment for removed detail", "detailId", rmID, "error", relErr)
				}
			}
			if err := detailRepo.Delete(ctx, rmID); err != nil {
				return apperr.Internal(err, "deleting booking detail %d", rmID)
			}
		}

		for _, d := range in.AddDetails {
			detail, err := e.buildDetail(ctx, d, slot.Duration().Hours())
			if err != nil {
				compensateAdds()
				return err
			}
			if d.Kind == models.BookingDetailKindEquipment {
				eqID64, _ := strconv.ParseUint(d.TargetRef, 10, 64)
				reservedEquipment[uint(eqID64)] += d.Quantity
			}
			detail.BookingID = b.ID
			if err := detailRepo.Create(ctx, detail); err != nil {
				compensateAdds()
				return apperr.Internal(err, "persisting added booking detail")
			}
		}

		remaining, err := detailRepo.ListByBooking(ctx, b.ID)
		if err != nil {
			return apperr.Internal(err, "reloading booking details for %s", b.ID)
		}
		b.Details = remaining
		b.Recompute(studio.BasePricePerHour, slot.Duration())

		if err := e.bookings.WithTx(tx).Update(ctx, b); err != nil {
			return apperr.Internal(err, "persisting updated booking %s", id)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// SweepNoShows finds confirmed bookings whose slot has already started and
// marks those whose grace window has elapsed as no-show. Run periodically
// by the background cron scheduler; auth is nil throughout since this is a
// system-triggered transition.
func (e *Engine) SweepNoShows(ctx context.Context) (int, error) {
	now := e.clock.Now()
	candidates, err := e.bookings.ListConfirmedStartingBefore(ctx, now)
	if err != nil {
		return 0, apperr.Internal(err, "listing no-show sweep candidates")
	}

	marked := 0
	for _, b := range candidates {
		slot, err := e.scheduler.GetSlot(ctx, b.SlotID)
		if err != nil {
			e.log.Warn("no-show sweep: failed to load slot", "bookingId", b.ID, "error", err)
			continue
		}

		var noShowSnapshot models.NoShowPolicy
		if len(b.NoShowPolicySnapshot) > 0 {
			if err := json.Unmarshal(b.NoShowPolicySnapshot, &noShowSnapshot); err != nil {
				e.log.Warn("no-show sweep: failed to decode policy snapshot", "bookingId", b.ID, "error", err)
				continue
			}
		}
		if policy.IsWithinNoShowGrace(noShowSnapshot, slot.StartTime, now) {
			continue
		}

		if _, err := e.MarkNoShow(ctx, b.ID, nil, nil); err != nil {
			e.log.Warn("no-show sweep: failed to mark booking", "bookingId", b.ID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}
