package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudioStatus is the operating status of a studio.
type StudioStatus string

const (
	StudioStatusActive      StudioStatus = "active"
	StudioStatusInactive    StudioStatus = "inactive"
	StudioStatusMaintenance StudioStatus = "maintenance"
)

// Studio is a rentable space with an hourly base price.
type Studio struct {
	ID                string       `gorm:"type:uuid;primary_key" json:"id"`
	Name              string       `gorm:"type:varchar(255);not null" json:"name"`
	BasePricePerHour  int64        `gorm:"not null;check:base_price_per_hour >= 0" json:"basePricePerHour"`
	Capacity          int          `gorm:"not null" json:"capacity"`
	Status            StudioStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Studio) TableName() string {
	return "studios"
}

func (s *Studio) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// IsActive reports whether the studio currently accepts new bookings.
func (s *Studio) IsActive() bool {
	return s.Status == StudioStatusActive
}
