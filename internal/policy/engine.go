// Package policy implements the Policy Engine: pure, side-effect-free
// functions computing cancellation refunds and no-show charges from a
// policy snapshot. No GORM/NATS/HTTP imports by design.
package policy

import (
	"math"
	"sort"
	"time"

	"github.com/datquang03/studio-booking-engine/internal/models"
)

// CancellationResult is the refund computation's output.
type CancellationResult struct {
	RefundAmount int64
	ChargeAmount int64
	TierApplied  *models.RefundTier
}

// ComputeCancellationRefund applies the snapshot's refund tiers to
// bookingAmount given how many hours before bookingStartTime "now" falls.
// Tiers are sorted by hoursBefore descending; the first tier whose
// threshold is met by the actual lead time is selected. No match means a
// 0% refund.
func ComputeCancellationRefund(snapshot models.CancellationPolicy, bookingStartTime, now time.Time, bookingAmount int64) CancellationResult {
	hoursBefore := bookingStartTime.Sub(now).Hours()
	if hoursBefore < 0 {
		hoursBefore = 0
	}

	tiers := make([]models.RefundTier, len(snapshot.Tiers))
	copy(tiers, snapshot.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].HoursBefore > tiers[j].HoursBefore
	})

	var applied *models.RefundTier
	for idx := range tiers {
		if hoursBefore >= float64(tiers[idx].HoursBefore) {
			applied = &tiers[idx]
			break
		}
	}

	pct := 0
	if applied != nil {
		pct = applied.RefundPercentage
	}

	refund := int64(math.Floor(float64(bookingAmount) * float64(pct) / 100.0))
	charge := bookingAmount - refund

	return CancellationResult{RefundAmount: refund, ChargeAmount: charge, TierApplied: applied}
}

// NoShowResult is the no-show charge computation's output.
type NoShowResult struct {
	ChargeAmount int64
	Percentage   int
}

// ComputeNoShowCharge decides the charge for a no-show given the booking's
// start time, an optional actual check-in time, and how many prior
// no-shows the customer has accrued (used only by the ESCALATING charge
// type). A checkInTime within graceMinutes after bookingStartTime is not a
// no-show at all.
func ComputeNoShowCharge(snapshot models.NoShowPolicy, bookingStartTime time.Time, checkInTime *time.Time, bookingAmount int64, previousNoShowCount int) NoShowResult {
	grace := time.Duration(snapshot.GraceMinutes) * time.Minute
	if checkInTime != nil && !checkInTime.After(bookingStartTime.Add(grace)) {
		return NoShowResult{ChargeAmount: 0, Percentage: 0}
	}

	var pct int
	switch snapshot.ChargeType {
	case models.NoShowChargeFull:
		pct = 100
	case models.NoShowChargePercentage:
		pct = snapshot.ChargePercentage
	case models.NoShowChargeEscalating:
		pct = snapshot.BasePercentage + snapshot.StepPercentage*previousNoShowCount
		if pct > 100 {
			pct = 100
		}
	}
	if pct < 0 {
		pct = 0
	}

	charge := int64(math.Floor(float64(bookingAmount) * float64(pct) / 100.0))
	return NoShowResult{ChargeAmount: charge, Percentage: pct}
}

// IsWithinNoShowGrace reports whether now is still inside the grace
// window after bookingStartTime, used by the background sweep to decide
// whether it's too early to auto-mark a no-show.
func IsWithinNoShowGrace(snapshot models.NoShowPolicy, bookingStartTime, now time.Time) bool {
	grace := time.Duration(snapshot.GraceMinutes) * time.Minute
	return !now.After(bookingStartTime.Add(grace))
}
