package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// BookingRepository handles booking CRUD, adapted directly from the
// teacher's booking_repository.go and extended with detail/snapshot columns.
type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return fmt.Errorf("error creating booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Preload("Details").First(&booking, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching booking %s: %w", id, err)
	}
	return &booking, nil
}

// GetByIDForUpdate loads a booking with a row lock, used to serialize
// concurrent lifecycle transitions on the same booking.
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Clauses(gorm.Expr("FOR UPDATE")).Preload("Details").First(&booking, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching booking %s for update: %w", id, err)
	}
	return &booking, nil
}

func (r *BookingRepository) GetBySlotID(ctx context.Context, slotID string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("slot_id = ?", slotID).First(&booking).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching booking for slot %s: %w", slotID, err)
	}
	return &booking, nil
}

func (r *BookingRepository) Update(ctx context.Context, booking *models.Booking) error {
	if err := r.db.WithContext(ctx).Save(booking).Error; err != nil {
		return fmt.Errorf("error updating booking %s: %w", booking.ID, err)
	}
	return nil
}

// ListByCustomer returns a customer's own bookings, paginated.
func (r *BookingRepository) ListByCustomer(ctx context.Context, customerRef string, status models.BookingStatus, limit, offset int) ([]models.Booking, int64, error) {
	return r.list(ctx, "customer_ref = ?", customerRef, status, limit, offset)
}

// ListAll returns bookings across all customers, paginated (staff/admin view).
func (r *BookingRepository) ListAll(ctx context.Context, status models.BookingStatus, limit, offset int) ([]models.Booking, int64, error) {
	return r.list(ctx, "", nil, status, limit, offset)
}

func (r *BookingRepository) list(ctx context.Context, scopeClause string, scopeArg interface{}, status models.BookingStatus, limit, offset int) ([]models.Booking, int64, error) {
	var bookings []models.Booking
	var total int64

	countQ := r.db.WithContext(ctx).Model(&models.Booking{})
	findQ := r.db.WithContext(ctx)
	if scopeClause != "" {
		countQ = countQ.Where(scopeClause, scopeArg)
		findQ = findQ.Where(scopeClause, scopeArg)
	}
	if status != "" {
		countQ = countQ.Where("status = ?", status)
		findQ = findQ.Where("status = ?", status)
	}

	if err := countQ.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("error counting bookings: %w", err)
	}
	if err := findQ.Order("created_at desc").Limit(limit).Offset(offset).Find(&bookings).Error; err != nil {
		return nil, 0, fmt.Errorf("error listing bookings: %w", err)
	}
	return bookings, total, nil
}

// ListConfirmedStartingBefore returns confirmed bookings whose slot started
// before cutoff, used by the background no-show sweep to find candidates
// without reaching into the Scheduler's Slot rows directly.
func (r *BookingRepository) ListConfirmedStartingBefore(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.WithContext(ctx).
		Joins("JOIN slots ON slots.id = bookings.slot_id").
		Where("bookings.status = ? AND slots.start_time < ?", models.BookingStatusConfirmed, cutoff).
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("error listing confirmed bookings starting before cutoff: %w", err)
	}
	return bookings, nil
}

// CountNoShowsByCustomer returns how many of a customer's past bookings
// ended in no_show, scoped entirely to the bookings table so it stays
// inside the Booking Engine's row-ownership boundary.
func (r *BookingRepository) CountNoShowsByCustomer(ctx context.Context, customerRef string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("customer_ref = ? AND status = ?", customerRef, models.BookingStatusNoShow).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting no-shows for customer %s: %w", customerRef, err)
	}
	return int(count), nil
}
