package models

import "time"

// BookingDetailKind distinguishes a studio-time line item from an add-on.
type BookingDetailKind string

const (
	BookingDetailKindEquipment BookingDetailKind = "equipment"
	BookingDetailKindService   BookingDetailKind = "service"
)

// BookingDetail is a single priced line item owned by a Booking: either a
// unit of rented equipment or a flat-fee service add-on. Quantity and
// PricePerUnit are captured at booking time so later price changes on the
// catalog row never retroactively alter an existing booking's total.
type BookingDetail struct {
	ID           uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	BookingID    string            `gorm:"type:uuid;not null;index" json:"bookingId"`
	Kind         BookingDetailKind `gorm:"type:varchar(20);not null" json:"kind"`
	TargetRef    string            `gorm:"type:varchar(255);not null" json:"targetRef"`
	Quantity     int               `gorm:"not null;default:1;check:quantity > 0" json:"quantity"`
	PricePerUnit int64             `gorm:"not null;check:price_per_unit >= 0" json:"pricePerUnit"`
	Subtotal     int64             `gorm:"not null;check:subtotal >= 0" json:"subtotal"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (BookingDetail) TableName() string {
	return "booking_details"
}

// Recompute recalculates Subtotal from Quantity and PricePerUnit.
func (d *BookingDetail) Recompute() {
	d.Subtotal = int64(d.Quantity) * d.PricePerUnit
}
