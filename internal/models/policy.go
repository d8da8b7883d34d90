package models

import (
	"time"

	"gorm.io/datatypes"
)

// PolicyType distinguishes cancellation policies from no-show policies.
type PolicyType string

const (
	PolicyTypeCancellation PolicyType = "cancellation"
	PolicyTypeNoShow       PolicyType = "no_show"
)

// NoShowChargeType enumerates how a no-show charge is computed.
type NoShowChargeType string

const (
	NoShowChargeFull       NoShowChargeType = "FULL_CHARGE"
	NoShowChargePercentage NoShowChargeType = "PERCENTAGE"
	NoShowChargeEscalating NoShowChargeType = "ESCALATING"
)

// RefundTier is one row of a cancellation policy's refund schedule.
type RefundTier struct {
	HoursBefore      int `json:"hoursBefore"`
	RefundPercentage int `json:"refundPercentage"`
}

// CancellationPolicy is the tagged-sum payload for a cancellation policy.
type CancellationPolicy struct {
	Tiers []RefundTier `json:"tiers"`
}

// NoShowPolicy is the tagged-sum payload for a no-show policy.
//
// BasePercentage/StepPercentage are used only when ChargeType is
// ESCALATING: chargeAmount% = min(100, basePercentage + stepPercentage*previousNoShowCount).
// These fields were inferred from usage in the original source (spec.md §9)
// rather than from an explicit schema. The Policy Store does not validate
// them on write; ComputeNoShowCharge clamps the resulting percentage to 100.
type NoShowPolicy struct {
	ChargeType        NoShowChargeType `json:"chargeType"`
	ChargePercentage  int              `json:"chargePercentage,omitempty"`
	BasePercentage    int              `json:"basePercentage,omitempty"`
	StepPercentage    int              `json:"stepPercentage,omitempty"`
	GraceMinutes      int              `json:"graceMinutes"`
}

// Policy is a persisted, versioned cancellation or no-show policy document.
// The payload is stored as JSON and decoded into CancellationPolicy or
// NoShowPolicy depending on Type; Category groups policies (the Booking
// Engine uses the studio ID as the category) so the Policy Store can pick
// the single currently-active one.
type Policy struct {
	ID       uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Type     PolicyType     `gorm:"type:varchar(20);not null;index:idx_policies_type_category_active,priority:1" json:"type"`
	Category string         `gorm:"type:varchar(100);not null;index:idx_policies_type_category_active,priority:2" json:"category"`
	Payload  datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	IsActive bool           `gorm:"not null;default:true;index:idx_policies_type_category_active,priority:3" json:"isActive"`
	Version  int            `gorm:"not null;default:1" json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Policy) TableName() string {
	return "policies"
}
