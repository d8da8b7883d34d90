package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BookingStatus is a state in the booking lifecycle state machine
// (pending -> confirmed -> checked_in -> completed, with cancelled and
// no_show as terminal branches reachable from pending/confirmed and
// confirmed respectively).
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusCheckedIn  BookingStatus = "checked_in"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusNoShow     BookingStatus = "no_show"
)

// PayType is the commitment level chosen at booking time.
type PayType string

const (
	PayTypeFull               PayType = "full"
	PayTypeDeposit30          PayType = "deposit_30"
	PayTypeDeposit50          PayType = "deposit_50"
	PayTypeDepositThenBalance PayType = "deposit_then_remainder"
)

// DepositFraction returns the fraction of final_amount required to confirm
// a booking of this pay type. PayTypeDepositThenBalance shares deposit_30's
// confirmation threshold; the remainder is collected via a later payment.
func (pt PayType) DepositFraction() float64 {
	switch pt {
	case PayTypeFull:
		return 1.0
	case PayTypeDeposit30, PayTypeDepositThenBalance:
		return 0.3
	case PayTypeDeposit50:
		return 0.5
	default:
		return 1.0
	}
}

// Booking is the aggregate root tying a customer to a reserved Slot, its
// priced line items, and its running financial totals. The slot-gap and
// equipment-inventory invariants are enforced by the Scheduler and
// Equipment Inventory components, not by this struct; Booking only carries
// the state those components read and mutate transactionally.
type Booking struct {
	ID          string        `gorm:"type:uuid;primary_key" json:"id"`
	SlotID      string        `gorm:"type:uuid;not null;uniqueIndex" json:"slotId"`
	StudioID    string        `gorm:"type:uuid;not null;index" json:"studioId"`
	CustomerRef string        `gorm:"type:varchar(255);not null;index" json:"customerRef"`
	StaffRef    string        `gorm:"type:varchar(255);index" json:"staffRef,omitempty"`
	Status      BookingStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	PayType     PayType       `gorm:"type:varchar(20);not null;default:'full'" json:"payType"`

	BaseAmount     int64 `gorm:"not null;default:0" json:"baseAmount"`
	DetailsAmount  int64 `gorm:"not null;default:0" json:"detailsAmount"`
	BeforeDiscount int64 `gorm:"not null;default:0" json:"beforeDiscount"`
	DiscountAmount int64 `gorm:"not null;default:0" json:"discountAmount"`
	FinalAmount    int64 `gorm:"not null;default:0" json:"finalAmount"`
	PaidAmount     int64 `gorm:"not null;default:0" json:"paidAmount"`

	// Financials is populated on terminal transitions (cancel/no-show).
	// originalAmount is final_amount at decision time. On cancellation,
	// refund + charge = originalAmount; on no-show, refund is 0 and charge
	// is the no-show policy's charge, which can be less than originalAmount.
	// net = refund issued minus charge applied, informational only.
	FinancialOriginal int64 `gorm:"not null;default:0" json:"financialOriginal"`
	FinancialRefund   int64 `gorm:"not null;default:0" json:"financialRefund"`
	FinancialCharge   int64 `gorm:"not null;default:0" json:"financialCharge"`
	FinancialNet      int64 `gorm:"not null;default:0" json:"financialNet"`

	Notes               string `gorm:"type:text" json:"notes,omitempty"`
	CancelReason        string `gorm:"type:text" json:"cancelReason,omitempty"`
	PreviousNoShowCount int    `gorm:"not null;default:0" json:"previousNoShowCount"`

	// CancellationPolicySnapshot/NoShowPolicySnapshot freeze the policy
	// document in effect at booking time, so a later edit to the active
	// Policy row never changes the refund math for an already-placed
	// booking.
	CancellationPolicySnapshot datatypes.JSON `gorm:"type:jsonb" json:"cancellationPolicySnapshot,omitempty"`
	NoShowPolicySnapshot       datatypes.JSON `gorm:"type:jsonb" json:"noShowPolicySnapshot,omitempty"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
	CheckedOutAt *time.Time `json:"checkedOutAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	NoShowAt    *time.Time `json:"noShowAt,omitempty"`

	Details []BookingDetail `gorm:"foreignKey:BookingID" json:"details,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// IsTerminal reports whether no further lifecycle transition is possible.
func (b *Booking) IsTerminal() bool {
	switch b.Status {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	default:
		return false
	}
}

// BalanceDue is the amount still owed against FinalAmount.
func (b *Booking) BalanceDue() int64 {
	due := b.FinalAmount - b.PaidAmount
	if due < 0 {
		return 0
	}
	return due
}

// Recompute derives BaseAmount/DetailsAmount/BeforeDiscount/FinalAmount from
// the current slot duration, studio hourly rate, the sum of Details'
// subtotals and DiscountAmount. FinalAmount never goes negative.
func (b *Booking) Recompute(studioBasePricePerHour int64, slotDuration time.Duration) {
	hours := slotDuration.Hours()
	b.BaseAmount = int64(hours * float64(studioBasePricePerHour))

	var details int64
	for _, d := range b.Details {
		details += d.Subtotal
	}
	b.DetailsAmount = details
	b.BeforeDiscount = b.BaseAmount + b.DetailsAmount

	final := b.BeforeDiscount - b.DiscountAmount
	if final < 0 {
		final = 0
	}
	b.FinalAmount = final
}

// ConfirmThreshold is the cumulative paid amount required to confirm a
// pending booking, given its pay type.
func (b *Booking) ConfirmThreshold() int64 {
	return int64(float64(b.FinalAmount) * b.PayType.DepositFraction())
}
