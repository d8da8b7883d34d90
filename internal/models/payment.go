package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle status of a single payment attempt against
// the external gateway.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentKind is what the payment is collecting against a booking.
type PaymentKind string

const (
	PaymentKindDeposit   PaymentKind = "deposit"
	PaymentKindFull      PaymentKind = "full"
	PaymentKindRemainder PaymentKind = "remainder"
	PaymentKindFine      PaymentKind = "fine"
)

// Payment records one gateway-facing transaction linked to a Booking.
// TransactionID is the gateway's own identifier and is unique so a
// replayed webhook can be matched idempotently.
type Payment struct {
	ID            string        `gorm:"type:uuid;primary_key" json:"id"`
	BookingID     string        `gorm:"type:uuid;not null;index" json:"bookingId"`
	Kind          PaymentKind   `gorm:"type:varchar(10);not null;default:'full'" json:"kind"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Amount        int64         `gorm:"not null;check:amount >= 0" json:"amount"`
	Currency      string        `gorm:"type:varchar(10);not null;default:'VND'" json:"currency"`
	TransactionID string        `gorm:"type:varchar(255);uniqueIndex" json:"transactionId,omitempty"`
	CheckoutURL   string        `gorm:"type:text" json:"checkoutUrl,omitempty"`
	GatewayCode   string        `gorm:"type:varchar(50)" json:"gatewayCode,omitempty"`
	FailureReason string        `gorm:"type:text" json:"failureReason,omitempty"`

	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// IsExpired reports whether a pending payment's hold window has lapsed.
func (p *Payment) IsExpired(now time.Time) bool {
	return p.Status == PaymentStatusPending && p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}
