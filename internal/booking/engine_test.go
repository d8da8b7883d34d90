package booking_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/booking"
	"github.com/datquang03/studio-booking-engine/internal/equipment"
	"github.com/datquang03/studio-booking-engine/internal/middleware"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/notifier"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/internal/scheduling"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/events"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

type EngineTestSuite struct {
	suite.Suite
	DB       *gorm.DB
	Engine   *booking.Engine
	Studio   *models.Studio
	Customer middleware.AuthContext
	Staff    middleware.AuthContext
	Clock    *clock.Frozen
}

func (s *EngineTestSuite) SetupSuite() {
	dsn := "host=localhost user=postgres password=postgres dbname=studio_booking_test port=5432 sslmode=disable"
	if envURL := os.Getenv("TEST_DATABASE_URL"); envURL != "" {
		dsn = envURL
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		s.T().Fatalf("failed to connect to postgres: %v", err)
	}
	s.DB = db

	assert.NoError(s.T(), s.DB.AutoMigrate(
		&models.Studio{}, &models.Slot{}, &models.Equipment{},
		&models.Booking{}, &models.BookingDetail{}, &models.Policy{},
	))
}

func (s *EngineTestSuite) TearDownSuite() {
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *EngineTestSuite) SetupTest() {
	s.DB.Exec("DELETE FROM booking_details")
	s.DB.Exec("DELETE FROM bookings")
	s.DB.Exec("DELETE FROM slots")
	s.DB.Exec("DELETE FROM equipment")
	s.DB.Exec("DELETE FROM policies")
	s.DB.Exec("DELETE FROM studios")

	s.Studio = &models.Studio{Name: "Studio A", BasePricePerHour: 100000, Capacity: 10, Status: models.StudioStatusActive}
	assert.NoError(s.T(), s.DB.Create(s.Studio).Error)

	cancelPayload, _ := json.Marshal(models.CancellationPolicy{
		Tiers: []models.RefundTier{
			{HoursBefore: 48, RefundPercentage: 100},
			{HoursBefore: 24, RefundPercentage: 50},
			{HoursBefore: 0, RefundPercentage: 0},
		},
	})
	assert.NoError(s.T(), s.DB.Create(&models.Policy{
		Type: models.PolicyTypeCancellation, Category: s.Studio.ID,
		Payload: datatypes.JSON(cancelPayload), IsActive: true, Version: 1,
	}).Error)

	noShowPayload, _ := json.Marshal(models.NoShowPolicy{ChargeType: models.NoShowChargeFull, GraceMinutes: 15})
	assert.NoError(s.T(), s.DB.Create(&models.Policy{
		Type: models.PolicyTypeNoShow, Category: s.Studio.ID,
		Payload: datatypes.JSON(noShowPayload), IsActive: true, Version: 1,
	}).Error)

	log := logger.New("debug")
	s.Clock = clock.NewFrozen(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	slotRepo := repository.NewSlotRepository(s.DB)
	studioRepo := repository.NewStudioRepository(s.DB)
	equipmentRepo := repository.NewEquipmentRepository(s.DB)
	bookingRepo := repository.NewBookingRepository(s.DB)
	detailRepo := repository.NewBookingDetailRepository(s.DB)
	policyRepo := repository.NewPolicyRepository(s.DB)

	sched := scheduling.NewScheduler(s.DB, slotRepo, studioRepo, s.Clock, log)
	inv := equipment.NewInventory(equipmentRepo)
	notif := notifier.New(events.NewNullPublisher(log), nil, log)

	s.Engine = booking.NewEngine(s.DB, bookingRepo, detailRepo, policyRepo, studioRepo, equipmentRepo, sched, inv, s.Clock, notif, log)

	s.Customer = middleware.AuthContext{UserID: "customer-1", Role: middleware.RoleCustomer}
	s.Staff = middleware.AuthContext{UserID: "staff-1", Role: middleware.RoleStaff}
}

func (s *EngineTestSuite) TestCreate_PendingWithComputedTotals() {
	ctx := context.Background()
	start := s.Clock.Now().Add(48 * time.Hour)
	end := start.Add(2 * time.Hour)

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID,
		StudioID:    s.Studio.ID,
		StartTime:   start,
		EndTime:     end,
		PayType:     models.PayTypeDeposit30,
	})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.BookingStatusPending, b.Status)
	assert.Equal(s.T(), int64(200000), b.FinalAmount)
	assert.Equal(s.T(), int64(60000), b.ConfirmThreshold())
}

func (s *EngineTestSuite) TestCreate_ReservesEquipmentAndReleasesOnSlotConflict() {
	ctx := context.Background()
	eq := &models.Equipment{Name: "Mic", PricePerHour: 10000, TotalQty: 2}
	assert.NoError(s.T(), s.DB.Create(eq).Error)
	eqRef := fmt.Sprintf("%d", eq.ID)

	start := s.Clock.Now().Add(48 * time.Hour)
	end := start.Add(2 * time.Hour)

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID,
		StudioID:    s.Studio.ID,
		StartTime:   start,
		EndTime:     end,
		Details: []booking.DetailInput{
			{Kind: models.BookingDetailKindEquipment, TargetRef: eqRef, Quantity: 2},
		},
	})
	assert.NoError(s.T(), err)
	assert.Len(s.T(), b.Details, 1)

	var reloaded models.Equipment
	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 2, reloaded.InUseQty)

	// A second create for the same range must fail and must not touch equipment.
	_, err = s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID,
		StudioID:    s.Studio.ID,
		StartTime:   start,
		EndTime:     end,
		Details: []booking.DetailInput{
			{Kind: models.BookingDetailKindEquipment, TargetRef: eqRef, Quantity: 1},
		},
	})
	assert.Error(s.T(), err)

	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 2, reloaded.InUseQty)
}

// TestCancel_ComputesRefundTiers covers S3 at the engine level.
func (s *EngineTestSuite) TestCancel_ComputesRefundTiers() {
	ctx := context.Background()
	start := s.Clock.Now().Add(49 * time.Hour)
	end := start.Add(10 * time.Hour) // 10h * 100000 = 1,000,000

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID,
		StudioID:    s.Studio.ID,
		StartTime:   start,
		EndTime:     end,
		PayType:     models.PayTypeFull,
	})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1_000_000), b.FinalAmount)

	cancelled, result, err := s.Engine.Cancel(ctx, b.ID, "change of plans", s.Customer)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.BookingStatusCancelled, cancelled.Status)
	assert.Equal(s.T(), int64(1_000_000), result.RefundAmount)
	assert.Equal(s.T(), int64(0), result.ChargeAmount)

	var slot models.Slot
	assert.NoError(s.T(), s.DB.First(&slot, "id = ?", b.SlotID).Error)
	assert.Equal(s.T(), models.SlotStatusAvailable, slot.Status)
}

func (s *EngineTestSuite) TestCancel_RejectsOtherCustomer() {
	ctx := context.Background()
	start := s.Clock.Now().Add(49 * time.Hour)
	end := start.Add(2 * time.Hour)

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID, StudioID: s.Studio.ID, StartTime: start, EndTime: end,
	})
	assert.NoError(s.T(), err)

	other := middleware.AuthContext{UserID: "someone-else", Role: middleware.RoleCustomer}
	_, _, err = s.Engine.Cancel(ctx, b.ID, "nope", other)
	assert.Error(s.T(), err)
}

// TestMarkNoShow_RejectsWithinGraceThenSucceeds covers S6 at the engine level.
func (s *EngineTestSuite) TestMarkNoShow_RejectsWithinGraceThenSucceeds() {
	ctx := context.Background()
	start := s.Clock.Now().Add(time.Hour)
	end := start.Add(5 * time.Hour) // 500000 at 100000/hr

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID, StudioID: s.Studio.ID, StartTime: start, EndTime: end, PayType: models.PayTypeFull,
	})
	assert.NoError(s.T(), err)
	_, err = s.Engine.Confirm(ctx, b.ID, nil)
	assert.NoError(s.T(), err)

	s.Clock.Set(start.Add(14 * time.Minute))
	_, err = s.Engine.MarkNoShow(ctx, b.ID, nil, &s.Staff)
	assert.Error(s.T(), err)

	s.Clock.Set(start.Add(16 * time.Minute))
	noShow, err := s.Engine.MarkNoShow(ctx, b.ID, nil, &s.Staff)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.BookingStatusNoShow, noShow.Status)
	assert.Equal(s.T(), int64(500000), noShow.FinancialCharge)
	assert.Equal(s.T(), int64(0), noShow.FinancialRefund)
}

// TestMarkNoShow_EscalatesWithCustomerHistory covers spec §4.3's ESCALATING
// no-show charge: the percentage must grow with the customer's real prior
// no-show count, not stay pinned at the base rate.
func (s *EngineTestSuite) TestMarkNoShow_EscalatesWithCustomerHistory() {
	ctx := context.Background()

	escalating, _ := json.Marshal(models.NoShowPolicy{
		ChargeType:     models.NoShowChargeEscalating,
		GraceMinutes:   15,
		BasePercentage: 20,
		StepPercentage: 10,
	})
	assert.NoError(s.T(), s.DB.Model(&models.Policy{}).
		Where("type = ? AND category = ?", models.PolicyTypeNoShow, s.Studio.ID).
		Update("payload", datatypes.JSON(escalating)).Error)

	makeNoShow := func(hoursFromNow int) *models.Booking {
		start := s.Clock.Now().Add(time.Duration(hoursFromNow) * time.Hour)
		end := start.Add(2 * time.Hour) // 200000 at 100000/hr
		b, err := s.Engine.Create(ctx, booking.CreateInput{
			CustomerRef: s.Customer.UserID, StudioID: s.Studio.ID, StartTime: start, EndTime: end, PayType: models.PayTypeFull,
		})
		assert.NoError(s.T(), err)
		_, err = s.Engine.Confirm(ctx, b.ID, nil)
		assert.NoError(s.T(), err)

		s.Clock.Set(start.Add(16 * time.Minute))
		noShow, err := s.Engine.MarkNoShow(ctx, b.ID, nil, &s.Staff)
		assert.NoError(s.T(), err)
		return noShow
	}

	first := makeNoShow(1)
	// basePercentage=20, previousNoShowCount=0 -> 20% of 200000
	assert.Equal(s.T(), int64(40000), first.FinancialCharge)

	second := makeNoShow(25)
	// this customer now has one prior no-show on record -> 30% of 200000
	assert.Equal(s.T(), int64(60000), second.FinancialCharge)
}

func (s *EngineTestSuite) TestCheckInCheckOutLifecycle() {
	ctx := context.Background()
	start := s.Clock.Now().Add(2 * time.Hour)
	end := start.Add(2 * time.Hour)

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID, StudioID: s.Studio.ID, StartTime: start, EndTime: end, PayType: models.PayTypeFull,
	})
	assert.NoError(s.T(), err)
	_, err = s.Engine.Confirm(ctx, b.ID, nil)
	assert.NoError(s.T(), err)

	// Too early: more than 15 minutes before start.
	_, err = s.Engine.CheckIn(ctx, b.ID, s.Staff)
	assert.Error(s.T(), err)

	s.Clock.Set(start.Add(-5 * time.Minute))
	checkedIn, err := s.Engine.CheckIn(ctx, b.ID, s.Staff)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.BookingStatusCheckedIn, checkedIn.Status)

	completed, err := s.Engine.CheckOut(ctx, b.ID, s.Staff)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), models.BookingStatusCompleted, completed.Status)

	var slot models.Slot
	assert.NoError(s.T(), s.DB.First(&slot, "id = ?", b.SlotID).Error)
	assert.Equal(s.T(), models.SlotStatusCompleted, slot.Status)
}

func (s *EngineTestSuite) TestUpdate_AddAndRemoveDetailsRecomputesTotals() {
	ctx := context.Background()
	eq := &models.Equipment{Name: "Light", PricePerHour: 20000, TotalQty: 5}
	assert.NoError(s.T(), s.DB.Create(eq).Error)
	eqRef := fmt.Sprintf("%d", eq.ID)

	start := s.Clock.Now().Add(48 * time.Hour)
	end := start.Add(1 * time.Hour)

	b, err := s.Engine.Create(ctx, booking.CreateInput{
		CustomerRef: s.Customer.UserID, StudioID: s.Studio.ID, StartTime: start, EndTime: end,
	})
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(100000), b.FinalAmount)

	updated, err := s.Engine.Update(ctx, b.ID, booking.UpdateInput{
		AddDetails: []booking.DetailInput{{Kind: models.BookingDetailKindEquipment, TargetRef: eqRef, Quantity: 1}},
	}, s.Staff)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(120000), updated.FinalAmount)
	assert.Len(s.T(), updated.Details, 1)

	var reloaded models.Equipment
	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 1, reloaded.InUseQty)

	removeID := updated.Details[0].ID
	updated, err = s.Engine.Update(ctx, b.ID, booking.UpdateInput{RemoveDetailIDs: []uint{removeID}}, s.Staff)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), int64(100000), updated.FinalAmount)
	assert.Len(s.T(), updated.Details, 0)

	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 0, reloaded.InUseQty)
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
