package models

import "time"

// Equipment is a countable piece of inventory rentable alongside a studio.
type Equipment struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string    `gorm:"type:varchar(255);not null" json:"name"`
	PricePerHour   int64     `gorm:"not null;check:price_per_hour >= 0" json:"pricePerHour"`
	TotalQty       int       `gorm:"not null;check:total_qty >= 0" json:"totalQty"`
	MaintenanceQty int       `gorm:"not null;default:0" json:"maintenanceQty"`
	InUseQty       int       `gorm:"not null;default:0" json:"inUseQty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Equipment) TableName() string {
	return "equipment"
}

// AvailableQty is the derived quantity free to reserve.
func (e *Equipment) AvailableQty() int {
	avail := e.TotalQty - e.MaintenanceQty - e.InUseQty
	if avail < 0 {
		return 0
	}
	return avail
}
