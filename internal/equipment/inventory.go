// Package equipment implements the Equipment Inventory component: atomic
// reserve/release of countable equipment units backing booking details.
package equipment

import (
	"context"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/repository"
)

// Inventory wraps the equipment repository's conditional updates with the
// typed-error surface the Booking Engine expects.
type Inventory struct {
	repo *repository.EquipmentRepository
}

func NewInventory(repo *repository.EquipmentRepository) *Inventory {
	return &Inventory{repo: repo}
}

func (i *Inventory) WithTx(repo *repository.EquipmentRepository) *Inventory {
	return &Inventory{repo: repo}
}

// Reserve atomically increments in_use_qty by qty when sufficient stock is
// available, failing InsufficientStock otherwise.
func (i *Inventory) Reserve(ctx context.Context, equipmentID uint, qty int) error {
	if qty <= 0 {
		return apperr.Validation("reserve quantity must be positive")
	}

	ok, err := i.repo.Reserve(ctx, equipmentID, qty)
	if err != nil {
		return apperr.Internal(err, "reserving equipment %d", equipmentID)
	}
	if !ok {
		eq, getErr := i.repo.GetByID(ctx, equipmentID)
		if getErr == nil && eq == nil {
			return apperr.NotFound("equipment %d not found", equipmentID)
		}
		return apperr.Conflict("insufficient stock for equipment %d", equipmentID)
	}
	return nil
}

// Release decrements in_use_qty by qty, clamped at zero.
func (i *Inventory) Release(ctx context.Context, equipmentID uint, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := i.repo.Release(ctx, equipmentID, qty); err != nil {
		return apperr.Internal(err, "releasing equipment %d", equipmentID)
	}
	return nil
}

// SetMaintenance sets maintenanceQty, rejecting values that would exceed
// totalQty - inUseQty.
func (i *Inventory) SetMaintenance(ctx context.Context, equipmentID uint, qty int) error {
	if qty < 0 {
		return apperr.Validation("maintenance quantity must not be negative")
	}

	ok, err := i.repo.SetMaintenance(ctx, equipmentID, qty)
	if err != nil {
		return apperr.Internal(err, "setting maintenance qty for equipment %d", equipmentID)
	}
	if !ok {
		eq, getErr := i.repo.GetByID(ctx, equipmentID)
		if getErr == nil && eq == nil {
			return apperr.NotFound("equipment %d not found", equipmentID)
		}
		return apperr.Validation("maintenance quantity exceeds total minus in-use quantity")
	}
	return nil
}

// Get returns the current state of a piece of equipment.
func (i *Inventory) Get(ctx context.Context, equipmentID uint) (*models.Equipment, error) {
	eq, err := i.repo.GetByID(ctx, equipmentID)
	if err != nil {
		return nil, apperr.Internal(err, "loading equipment %d", equipmentID)
	}
	if eq == nil {
		return nil, apperr.NotFound("equipment %d not found", equipmentID)
	}
	return eq, nil
}
