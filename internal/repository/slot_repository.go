package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// SlotRepository handles time-slot persistence and the conflict query that
// underpins the Scheduler's non-overlap + gap invariant.
type SlotRepository struct {
	db *gorm.DB
}

func NewSlotRepository(db *gorm.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *SlotRepository) WithTx(tx *gorm.DB) *SlotRepository {
	return &SlotRepository{db: tx}
}

func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	if err := r.db.WithContext(ctx).Create(slot).Error; err != nil {
		return fmt.Errorf("error creating slot: %w", err)
	}
	return nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	var slot models.Slot
	if err := r.db.WithContext(ctx).First(&slot, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching slot %s: %w", id, err)
	}
	return &slot, nil
}

// FindExactAvailable returns an available slot for the studio matching the
// exact [start, end) interval, if one exists.
func (r *SlotRepository) FindExactAvailable(ctx context.Context, studioID string, start, end time.Time) (*models.Slot, error) {
	var slot models.Slot
	err := r.db.WithContext(ctx).
		Where("studio_id = ? AND status = ? AND start_time = ? AND end_time = ?", studioID, models.SlotStatusAvailable, start, end).
		First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding exact available slot: %w", err)
	}
	return &slot, nil
}

// FindConflicting locates non-terminal slots of the studio that overlap
// [start, end) once the symmetric 30-minute gap is applied. Ported from the
// teacher's FindConflictingBookings query, generalized to the gap predicate:
// other.start < proposed.end + gap AND other.end + gap > proposed.start.
func (r *SlotRepository) FindConflicting(ctx context.Context, studioID string, start, end time.Time, excludeSlotID string) ([]models.Slot, error) {
	var conflicting []models.Slot

	q := r.db.WithContext(ctx).
		Where("studio_id = ?", studioID).
		Where("status IN (?)", models.NonTerminalSlotStatuses).
		Where("start_time < ?", end.Add(models.MinGapDuration)).
		Where("end_time > ?", start.Add(-models.MinGapDuration))

	if excludeSlotID != "" {
		q = q.Where("id <> ?", excludeSlotID)
	}

	if err := q.Find(&conflicting).Error; err != nil {
		return nil, fmt.Errorf("error finding conflicting slots for studio %s: %w", studioID, err)
	}
	return conflicting, nil
}

// FindEarliestAfter returns the earliest non-terminal slot of the studio
// whose start is at or after from, used by Extend to compute headroom.
func (r *SlotRepository) FindEarliestAfter(ctx context.Context, studioID string, from time.Time, excludeSlotID string) (*models.Slot, error) {
	var slot models.Slot
	q := r.db.WithContext(ctx).
		Where("studio_id = ? AND start_time >= ? AND status IN (?)", studioID, from, models.NonTerminalSlotStatuses)
	if excludeSlotID != "" {
		q = q.Where("id <> ?", excludeSlotID)
	}
	err := q.Order("start_time asc").First(&slot).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding earliest slot after %s: %w", from, err)
	}
	return &slot, nil
}

// Reserve atomically transitions an available slot to booked, stamping
// bookingRef. RowsAffected == 0 means the slot was no longer available
// (lost the race) and the caller must surface SlotUnavailable.
func (r *SlotRepository) Reserve(ctx context.Context, slotID, bookingID string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ? AND status = ?", slotID, models.SlotStatusAvailable).
		Updates(map[string]interface{}{
			"status":      models.SlotStatusBooked,
			"booking_ref": bookingID,
		})
	if result.Error != nil {
		return false, fmt.Errorf("error reserving slot %s: %w", slotID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Release transitions a held/booked slot back to available and clears
// bookingRef.
func (r *SlotRepository) Release(ctx context.Context, slotID string) error {
	result := r.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ? AND status IN (?)", slotID, []models.SlotStatus{models.SlotStatusHeld, models.SlotStatusBooked}).
		Updates(map[string]interface{}{
			"status":      models.SlotStatusAvailable,
			"booking_ref": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("error releasing slot %s: %w", slotID, result.Error)
	}
	return nil
}

// UpdateStatus transitions slot.status unconditionally (used for
// ongoing/completed/cancelled transitions driven by the Booking Engine).
func (r *SlotRepository) UpdateStatus(ctx context.Context, slotID string, status models.SlotStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Slot{}).Where("id = ?", slotID).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("error updating slot status for %s: %w", slotID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("slot %s not found for status update", slotID)
	}
	return nil
}

// ExtendEnd atomically updates a slot's end time, used after Extend's
// conflict check has passed.
func (r *SlotRepository) ExtendEnd(ctx context.Context, slotID string, newEnd time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Slot{}).Where("id = ?", slotID).Update("end_time", newEnd)
	if result.Error != nil {
		return fmt.Errorf("error extending slot %s: %w", slotID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("slot %s not found for extension", slotID)
	}
	return nil
}

func (r *SlotRepository) List(ctx context.Context, studioID string, from, to time.Time, statuses []models.SlotStatus) ([]models.Slot, error) {
	var slots []models.Slot
	q := r.db.WithContext(ctx).Where("studio_id = ?", studioID)
	if !from.IsZero() {
		q = q.Where("start_time >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("end_time <= ?", to)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", statuses)
	}
	if err := q.Order("start_time asc").Find(&slots).Error; err != nil {
		return nil, fmt.Errorf("error listing slots for studio %s: %w", studioID, err)
	}
	return slots, nil
}
