package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/policy"
)

// TestCancellationTiers covers S3: tiers [{48h,100%},{24h,50%},{0h,0%}].
func TestCancellationTiers(t *testing.T) {
	snapshot := models.CancellationPolicy{
		Tiers: []models.RefundTier{
			{HoursBefore: 48, RefundPercentage: 100},
			{HoursBefore: 24, RefundPercentage: 50},
			{HoursBefore: 0, RefundPercentage: 0},
		},
	}
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	amount := int64(1_000_000)

	cases := []struct {
		name           string
		leadHours      float64
		expectedRefund int64
		expectedCharge int64
	}{
		{"49h before", 49, 1_000_000, 0},
		{"30h before", 30, 500_000, 500_000},
		{"1h before", 1, 0, 1_000_000},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			now := start.Add(-time.Duration(c.leadHours * float64(time.Hour)))
			result := policy.ComputeCancellationRefund(snapshot, start, now, amount)
			assert.Equal(t, c.expectedRefund, result.RefundAmount)
			assert.Equal(t, c.expectedCharge, result.ChargeAmount)
		})
	}
}

// TestNoShowGrace covers S6: graceMinutes=15, FULL_CHARGE, start=10:00,
// amount=500000. Mark at 10:14 is still within grace; at 10:16 it charges.
func TestNoShowGrace(t *testing.T) {
	snapshot := models.NoShowPolicy{ChargeType: models.NoShowChargeFull, GraceMinutes: 15}
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	amount := int64(500_000)

	assert.True(t, policy.IsWithinNoShowGrace(snapshot, start, start.Add(14*time.Minute)))
	assert.False(t, policy.IsWithinNoShowGrace(snapshot, start, start.Add(16*time.Minute)))

	result := policy.ComputeNoShowCharge(snapshot, start, nil, amount, 0)
	assert.Equal(t, int64(500_000), result.ChargeAmount)
	assert.Equal(t, 100, result.Percentage)
}

func TestNoShowEscalating(t *testing.T) {
	snapshot := models.NoShowPolicy{
		ChargeType:     models.NoShowChargeEscalating,
		BasePercentage: 20,
		StepPercentage: 30,
		GraceMinutes:   10,
	}
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	amount := int64(1_000_000)

	result := policy.ComputeNoShowCharge(snapshot, start, nil, amount, 3)
	assert.Equal(t, 100, result.Percentage) // 20 + 30*3 = 110, clamped to 100
	assert.Equal(t, int64(1_000_000), result.ChargeAmount)

	result = policy.ComputeNoShowCharge(snapshot, start, nil, amount, 1)
	assert.Equal(t, 50, result.Percentage) // 20 + 30*1
	assert.Equal(t, int64(500_000), result.ChargeAmount)
}

func TestNoShowCheckInWithinGraceIsNotCharged(t *testing.T) {
	snapshot := models.NoShowPolicy{ChargeType: models.NoShowChargeFull, GraceMinutes: 15}
	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	checkIn := start.Add(10 * time.Minute)

	result := policy.ComputeNoShowCharge(snapshot, start, &checkIn, 500_000, 0)
	assert.Equal(t, int64(0), result.ChargeAmount)
}
