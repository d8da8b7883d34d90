package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// EquipmentRepository owns the atomic reserve/release/maintenance
// conditional updates over equipment.in_use_qty / maintenance_qty.
type EquipmentRepository struct {
	db *gorm.DB
}

func NewEquipmentRepository(db *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

func (r *EquipmentRepository) WithTx(tx *gorm.DB) *EquipmentRepository {
	return &EquipmentRepository{db: tx}
}

func (r *EquipmentRepository) GetByID(ctx context.Context, id uint) (*models.Equipment, error) {
	var eq models.Equipment
	if err := r.db.WithContext(ctx).First(&eq, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching equipment %d: %w", id, err)
	}
	return &eq, nil
}

// Reserve is a compare-and-decrement: it only succeeds when
// total_qty - maintenance_qty - in_use_qty >= qty, in which case in_use_qty
// is incremented by qty in the same statement. RowsAffected == 0 means the
// caller lost the race or stock genuinely ran out.
func (r *EquipmentRepository) Reserve(ctx context.Context, equipmentID uint, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE equipment SET in_use_qty = in_use_qty + ?, updated_at = now()
		 WHERE id = ? AND total_qty - maintenance_qty - in_use_qty >= ?`,
		qty, equipmentID, qty,
	)
	if result.Error != nil {
		return false, fmt.Errorf("error reserving equipment %d: %w", equipmentID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Release decrements in_use_qty by qty, clamped at zero.
func (r *EquipmentRepository) Release(ctx context.Context, equipmentID uint, qty int) error {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE equipment SET in_use_qty = GREATEST(in_use_qty - ?, 0), updated_at = now() WHERE id = ?`,
		qty, equipmentID,
	)
	if result.Error != nil {
		return fmt.Errorf("error releasing equipment %d: %w", equipmentID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("equipment %d not found for release", equipmentID)
	}
	return nil
}

// SetMaintenance sets maintenance_qty, rejecting values that would exceed
// total_qty - in_use_qty. It returns false both when the row does not exist
// and when the guard rejects the value; callers check GetByID afterwards to
// tell them apart.
func (r *EquipmentRepository) SetMaintenance(ctx context.Context, equipmentID uint, qty int) (bool, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE equipment SET maintenance_qty = ?, updated_at = now()
		 WHERE id = ? AND total_qty - in_use_qty >= ?`,
		qty, equipmentID, qty,
	)
	if result.Error != nil {
		return false, fmt.Errorf("error setting maintenance qty for equipment %d: %w", equipmentID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *EquipmentRepository) List(ctx context.Context) ([]models.Equipment, error) {
	var list []models.Equipment
	if err := r.db.WithContext(ctx).Order("name asc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("error listing equipment: %w", err)
	}
	return list, nil
}
