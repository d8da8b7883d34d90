package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SlotStatus is the lifecycle status of a time slot.
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusHeld      SlotStatus = "held"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusOngoing   SlotStatus = "ongoing"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

// MinGapDuration is the minimum separation required between any two
// non-terminal slots of the same studio.
const MinGapDuration = 30 * time.Minute

// MinSlotDuration is the shortest a slot's [start, end) interval may be.
const MinSlotDuration = 60 * time.Minute

// NonTerminalSlotStatuses are the statuses that participate in the
// overlap+gap invariant and in conflict detection.
var NonTerminalSlotStatuses = []SlotStatus{SlotStatusHeld, SlotStatusBooked, SlotStatusOngoing}

// Slot is a half-open [StartTime, EndTime) interval on a studio's calendar.
type Slot struct {
	ID         string     `gorm:"type:uuid;primary_key" json:"id"`
	StudioID   string     `gorm:"type:uuid;not null;index:idx_slots_studio_start,priority:1;index:idx_slots_studio_status_start,priority:1" json:"studioId"`
	StartTime  time.Time  `gorm:"not null;index:idx_slots_studio_start,priority:2;index:idx_slots_studio_status_start,priority:3" json:"startTime"`
	EndTime    time.Time  `gorm:"not null" json:"endTime"`
	Status     SlotStatus `gorm:"type:varchar(20);not null;index:idx_slots_studio_status_start,priority:2" json:"status"`
	BookingRef *string    `gorm:"type:uuid;index" json:"bookingRef,omitempty"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Slot) TableName() string {
	return "slots"
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Duration returns the slot's length.
func (s *Slot) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// IsNonTerminal reports whether the slot's status participates in the
// overlap+gap invariant.
func (s *Slot) IsNonTerminal() bool {
	switch s.Status {
	case SlotStatusHeld, SlotStatusBooked, SlotStatusOngoing:
		return true
	default:
		return false
	}
}

// OverlapsWithGap reports whether [start,end) conflicts with this slot under
// the symmetric 30-minute gap rule described in spec.md §4.1: two intervals
// conflict unless they are disjoint with at least MinGapDuration between them.
func (s *Slot) OverlapsWithGap(start, end time.Time) bool {
	return s.StartTime.Before(end.Add(MinGapDuration)) && s.EndTime.Add(MinGapDuration).After(start)
}
