package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// PolicyRepository is the Policy Store: persists and retrieves the single
// currently-active cancellation/no-show policy per category, adapted from
// the teacher's AvailabilityRepository CRUD style.
type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

func (r *PolicyRepository) WithTx(tx *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: tx}
}

// GetActive returns the active policy document for (type, category).
func (r *PolicyRepository) GetActive(ctx context.Context, policyType models.PolicyType, category string) (*models.Policy, error) {
	var policy models.Policy
	err := r.db.WithContext(ctx).
		Where("type = ? AND category = ? AND is_active = ?", policyType, category, true).
		Order("version desc").
		First(&policy).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("error fetching active %s policy for category %s: %w", policyType, category, err)
	}
	return &policy, nil
}

func (r *PolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	if err := r.db.WithContext(ctx).Create(policy).Error; err != nil {
		return fmt.Errorf("error creating policy: %w", err)
	}
	return nil
}

// Deactivate clears is_active for all existing policies of (type, category)
// so a newly-created version becomes the sole active one.
func (r *PolicyRepository) Deactivate(ctx context.Context, policyType models.PolicyType, category string) error {
	err := r.db.WithContext(ctx).Model(&models.Policy{}).
		Where("type = ? AND category = ? AND is_active = ?", policyType, category, true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("error deactivating %s policies for category %s: %w", policyType, category, err)
	}
	return nil
}

func (r *PolicyRepository) List(ctx context.Context, policyType models.PolicyType) ([]models.Policy, error) {
	var policies []models.Policy
	q := r.db.WithContext(ctx)
	if policyType != "" {
		q = q.Where("type = ?", policyType)
	}
	if err := q.Order("category asc, version desc").Find(&policies).Error; err != nil {
		return nil, fmt.Errorf("error listing policies: %w", err)
	}
	return policies, nil
}
