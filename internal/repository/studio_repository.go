package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// StudioRepository handles studio CRUD operations.
type StudioRepository struct {
	db *gorm.DB
}

func NewStudioRepository(db *gorm.DB) *StudioRepository {
	return &StudioRepository{db: db}
}

func (r *StudioRepository) Create(ctx context.Context, studio *models.Studio) error {
	if err := r.db.WithContext(ctx).Create(studio).Error; err != nil {
		return fmt.Errorf("error creating studio: %w", err)
	}
	return nil
}

func (r *StudioRepository) GetByID(ctx context.Context, id string) (*models.Studio, error) {
	var studio models.Studio
	if err := r.db.WithContext(ctx).First(&studio, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching studio %s: %w", id, err)
	}
	return &studio, nil
}

func (r *StudioRepository) List(ctx context.Context, status models.StudioStatus, limit, offset int) ([]models.Studio, int64, error) {
	var studios []models.Studio
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Studio{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting studios: %w", err)
	}

	find := r.db.WithContext(ctx)
	if status != "" {
		find = find.Where("status = ?", status)
	}
	if err := find.Order("name asc").Limit(limit).Offset(offset).Find(&studios).Error; err != nil {
		return nil, 0, fmt.Errorf("error listing studios: %w", err)
	}
	return studios, total, nil
}

func (r *StudioRepository) UpdateStatus(ctx context.Context, id string, status models.StudioStatus) error {
	result := r.db.WithContext(ctx).Model(&models.Studio{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("error updating studio status for %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("studio %s not found for status update", id)
	}
	return nil
}
