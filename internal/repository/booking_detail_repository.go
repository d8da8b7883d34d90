package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// BookingDetailRepository handles the priced line items owned by a booking.
type BookingDetailRepository struct {
	db *gorm.DB
}

func NewBookingDetailRepository(db *gorm.DB) *BookingDetailRepository {
	return &BookingDetailRepository{db: db}
}

func (r *BookingDetailRepository) WithTx(tx *gorm.DB) *BookingDetailRepository {
	return &BookingDetailRepository{db: tx}
}

func (r *BookingDetailRepository) Create(ctx context.Context, detail *models.BookingDetail) error {
	if err := r.db.WithContext(ctx).Create(detail).Error; err != nil {
		return fmt.Errorf("error creating booking detail: %w", err)
	}
	return nil
}

func (r *BookingDetailRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.BookingDetail, error) {
	var details []models.BookingDetail
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Find(&details).Error; err != nil {
		return nil, fmt.Errorf("error listing details for booking %s: %w", bookingID, err)
	}
	return details, nil
}

func (r *BookingDetailRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.BookingDetail{}, id).Error; err != nil {
		return fmt.Errorf("error deleting booking detail %d: %w", id, err)
	}
	return nil
}

func (r *BookingDetailRepository) GetByID(ctx context.Context, id uint) (*models.BookingDetail, error) {
	var detail models.BookingDetail
	if err := r.db.WithContext(ctx).First(&detail, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching booking detail %d: %w", id, err)
	}
	return &detail, nil
}
