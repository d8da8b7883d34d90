package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// PaymentRepository handles payment CRUD and the idempotent webhook lookup.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("error creating payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching payment %s: %w", id, err)
	}
	return &payment, nil
}

// GetByTransactionIDForUpdate locks the payment row matching the gateway's
// transactionId so concurrent webhook deliveries for the same transaction
// serialize on this row.
func (r *PaymentRepository) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Clauses(gorm.Expr("FOR UPDATE")).
		Where("transaction_id = ?", transactionID).First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching payment by transaction %s: %w", transactionID, err)
	}
	return &payment, nil
}

// FindPendingByBookingAndKind returns an unexpired pending payment of the
// given kind for the booking, if one exists — used to make create_session
// idempotent.
func (r *PaymentRepository) FindPendingByBookingAndKind(ctx context.Context, bookingID string, kind models.PaymentKind, now time.Time) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND kind = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)", bookingID, kind, models.PaymentStatusPending, now).
		Order("created_at desc").
		First(&payment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding pending payment for booking %s: %w", bookingID, err)
	}
	return &payment, nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	if err := r.db.WithContext(ctx).Save(payment).Error; err != nil {
		return fmt.Errorf("error updating payment %s: %w", payment.ID, err)
	}
	return nil
}

func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("created_at desc").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("error listing payments for booking %s: %w", bookingID, err)
	}
	return payments, nil
}

// SweepExpired transitions pending payments whose expiry has lapsed to
// expired, returning how many rows were affected. Used by the background
// expiry sweep.
func (r *PaymentRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.PaymentStatusPending, now).
		Update("status", models.PaymentStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("error sweeping expired payments: %w", result.Error)
	}
	return result.RowsAffected, nil
}
