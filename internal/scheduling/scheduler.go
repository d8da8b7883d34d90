// Package scheduling implements the Scheduler component: it maintains the
// per-studio slot invariants (non-overlap + 30-minute gap) and exposes
// atomic reservation primitives on top of internal/repository's slot
// conflict query.
package scheduling

import (
	"context"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

const maxReserveAttempts = 3

// slotAvailabilityTTL bounds how stale a cached day's slot listing can be.
// Slot writes do not invalidate the cache, so a listing can lag a write by
// up to this long.
const slotAvailabilityTTL = 30 * time.Second

// Scheduler enforces the slot invariants and transitions slot state.
type Scheduler struct {
	db     *gorm.DB
	slots  *repository.SlotRepository
	studio *repository.StudioRepository
	cache  *repository.CacheRepository
	clock  clock.Clock
	log    logger.Logger
}

func NewScheduler(db *gorm.DB, slots *repository.SlotRepository, studios *repository.StudioRepository, clk clock.Clock, log logger.Logger) *Scheduler {
	return &Scheduler{db: db, slots: slots, studio: studios, clock: clk, log: log}
}

// SetCache wires in the Redis-backed read cache after construction; nil
// (the default) disables caching entirely, which is what every existing
// test and a Redis-less development run relies on.
func (s *Scheduler) SetCache(cache *repository.CacheRepository) {
	s.cache = cache
}

func (s *Scheduler) checkRange(start, end time.Time) error {
	if !end.After(start) {
		return apperr.Validation("slot end must be after start")
	}
	if end.Sub(start) < models.MinSlotDuration {
		return apperr.Validation("slot duration must be at least %s", models.MinSlotDuration)
	}
	return nil
}

// CreateSlot validates the studio and range and inserts a new available
// slot inside a transaction that also checks for conflicts with held,
// booked and ongoing slots. Available slots are not part of that check, so
// overlapping available slots can coexist.
func (s *Scheduler) CreateSlot(ctx context.Context, studioID string, start, end time.Time) (*models.Slot, error) {
	if err := s.checkRange(start, end); err != nil {
		return nil, err
	}

	var created *models.Slot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		studio, err := s.studio.GetByID(ctx, studioID)
		if err != nil {
			return apperr.Internal(err, "loading studio %s", studioID)
		}
		if studio == nil {
			return apperr.NotFound("studio %s not found", studioID)
		}
		if !studio.IsActive() {
			return apperr.Conflict("studio %s is not active", studioID)
		}

		txSlots := s.slots.WithTx(tx)
		conflicts, err := txSlots.FindConflicting(ctx, studioID, start, end, "")
		if err != nil {
			return apperr.Internal(err, "checking slot conflicts")
		}
		if len(conflicts) > 0 {
			return apperr.Conflict("slot overlaps an existing non-terminal slot within the 30-minute gap window")
		}

		slot := &models.Slot{
			StudioID:  studioID,
			StartTime: start,
			EndTime:   end,
			Status:    models.SlotStatusAvailable,
		}
		if err := txSlots.Create(ctx, slot); err != nil {
			return apperr.Internal(err, "creating slot")
		}
		created = slot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FindOrCreateAvailable returns the exactly-matching available slot if one
// exists, or creates it.
func (s *Scheduler) FindOrCreateAvailable(ctx context.Context, studioID string, start, end time.Time) (*models.Slot, error) {
	if err := s.checkRange(start, end); err != nil {
		return nil, err
	}

	existing, err := s.slots.FindExactAvailable(ctx, studioID, start, end)
	if err != nil {
		return nil, apperr.Internal(err, "finding available slot")
	}
	if existing != nil {
		return existing, nil
	}
	return s.CreateSlot(ctx, studioID, start, end)
}

// Reserve atomically transitions an available slot to booked. Retries a
// small bounded number of times on a lost race before returning an
// apperr.Conflict error, per spec's optimistic-retry allowance.
func (s *Scheduler) Reserve(ctx context.Context, slotID, bookingID string) (*models.Slot, error) {
	var reserved bool
	var err error
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		reserved, err = s.slots.Reserve(ctx, slotID, bookingID)
		if err != nil {
			return nil, apperr.Internal(err, "reserving slot %s", slotID)
		}
		if reserved {
			break
		}
		time.Sleep(time.Duration(rand.Intn(20)+5) * time.Millisecond)
	}
	if !reserved {
		return nil, apperr.Conflict("slot %s is no longer available", slotID)
	}

	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, apperr.Internal(err, "reloading reserved slot %s", slotID)
	}
	return slot, nil
}

// Release transitions a held/booked slot back to available.
func (s *Scheduler) Release(ctx context.Context, slotID string) error {
	if err := s.slots.Release(ctx, slotID); err != nil {
		return apperr.Internal(err, "releasing slot %s", slotID)
	}
	return nil
}

// TransitionStatus moves a slot to an unconditional status (ongoing,
// completed, cancelled) as driven by the Booking Engine's lifecycle.
func (s *Scheduler) TransitionStatus(ctx context.Context, slotID string, status models.SlotStatus) error {
	if err := s.slots.UpdateStatus(ctx, slotID, status); err != nil {
		return apperr.Internal(err, "transitioning slot %s to %s", slotID, status)
	}
	return nil
}

// Extend validates headroom against the next non-terminal slot of the same
// studio and atomically updates the slot's end time.
func (s *Scheduler) Extend(ctx context.Context, slot *models.Slot, newEnd time.Time) error {
	if !newEnd.After(slot.EndTime) {
		return apperr.Validation("new end time must be after the current end time")
	}

	next, err := s.slots.FindEarliestAfter(ctx, slot.StudioID, slot.EndTime, slot.ID)
	if err != nil {
		return apperr.Internal(err, "finding next slot for extension")
	}

	var gap time.Duration = 1 << 62 // effectively unbounded when no next slot
	if next != nil {
		gap = next.StartTime.Sub(slot.EndTime)
	}

	maxExtension := gap - models.MinGapDuration
	if maxExtension <= 0 {
		return apperr.Conflict("no room to extend: next slot leaves insufficient gap")
	}
	if newEnd.Sub(slot.EndTime) > maxExtension {
		return apperr.Conflict("extension conflict: requested end exceeds available headroom before the next booking")
	}

	if err := s.slots.ExtendEnd(ctx, slot.ID, newEnd); err != nil {
		return apperr.Internal(err, "extending slot %s", slot.ID)
	}
	return nil
}

// GetSlot returns a single slot by id, read-only.
func (s *Scheduler) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return nil, apperr.Internal(err, "loading slot %s", slotID)
	}
	if slot == nil {
		return nil, apperr.NotFound("slot %s not found", slotID)
	}
	return slot, nil
}

// List returns slots for a studio within [from, to] filtered by status.
// A single-day, unfiltered query is the common "what's available today"
// read and is served from the Redis cache when one is configured.
func (s *Scheduler) List(ctx context.Context, studioID string, from, to time.Time, statuses []models.SlotStatus) ([]models.Slot, error) {
	cacheable := s.cache != nil && len(statuses) == 0 && sameUTCDay(from, to)
	var cacheKey string

	if cacheable {
		cacheKey = repository.SlotAvailabilityKey(studioID, from)
		var cached []models.Slot
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached, nil
		}
	}

	slots, err := s.slots.List(ctx, studioID, from, to, statuses)
	if err != nil {
		return nil, apperr.Internal(err, "listing slots")
	}

	if cacheable {
		if err := s.cache.Set(ctx, cacheKey, slots, slotAvailabilityTTL); err != nil {
			s.log.Warn("failed to cache slot availability", "studio_id", studioID, "error", err)
		}
	}
	return slots, nil
}

func sameUTCDay(from, to time.Time) bool {
	f, t := from.UTC(), to.UTC()
	return f.Year() == t.Year() && f.YearDay() == t.YearDay()
}

