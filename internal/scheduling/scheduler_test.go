package scheduling_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/repository"
	"github.com/datquang03/studio-booking-engine/internal/scheduling"
	"github.com/datquang03/studio-booking-engine/pkg/clock"
	"github.com/datquang03/studio-booking-engine/pkg/logger"
)

type SchedulerTestSuite struct {
	suite.Suite
	DB        *gorm.DB
	Scheduler *scheduling.Scheduler
	SlotRepo  *repository.SlotRepository
	Studio    *models.Studio
}

func (s *SchedulerTestSuite) SetupSuite() {
	dsn := "host=localhost user=postgres password=postgres dbname=studio_booking_test port=5432 sslmode=disable"
	if envURL := os.Getenv("TEST_DATABASE_URL"); envURL != "" {
		dsn = envURL
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		s.T().Fatalf("failed to connect to postgres: %v", err)
	}
	s.DB = db

	err = s.DB.AutoMigrate(&models.Studio{}, &models.Slot{})
	assert.NoError(s.T(), err)

	s.SlotRepo = repository.NewSlotRepository(s.DB)
	studioRepo := repository.NewStudioRepository(s.DB)
	s.Scheduler = scheduling.NewScheduler(s.DB, s.SlotRepo, studioRepo, clock.Real{}, logger.New("debug"))
}

func (s *SchedulerTestSuite) TearDownSuite() {
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *SchedulerTestSuite) SetupTest() {
	s.DB.Exec("DELETE FROM slots")
	s.DB.Exec("DELETE FROM studios")

	s.Studio = &models.Studio{Name: "Studio A", BasePricePerHour: 100000, Capacity: 10, Status: models.StudioStatusActive}
	assert.NoError(s.T(), s.DB.Create(s.Studio).Error)
}

func mustParse(t *testing.T, value string) time.Time {
	tm, err := time.Parse(time.RFC3339, value)
	assert.NoError(t, err)
	return tm
}

func (s *SchedulerTestSuite) TestCreateSlot_NoConflict() {
	ctx := context.Background()
	start := mustParse(s.T(), "2026-08-01T10:00:00Z")
	end := mustParse(s.T(), "2026-08-01T12:00:00Z")

	slot, err := s.Scheduler.CreateSlot(ctx, s.Studio.ID, start, end)
	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), slot)
	assert.Equal(s.T(), models.SlotStatusAvailable, slot.Status)
}

// TestGapInvariant covers S2: a 15-minute gap from an existing booked slot
// conflicts, a 30-minute gap does not.
func (s *SchedulerTestSuite) TestGapInvariant() {
	ctx := context.Background()
	existingStart := mustParse(s.T(), "2026-08-01T10:00:00Z")
	existingEnd := mustParse(s.T(), "2026-08-01T12:00:00Z")

	existing := &models.Slot{StudioID: s.Studio.ID, StartTime: existingStart, EndTime: existingEnd, Status: models.SlotStatusBooked}
	assert.NoError(s.T(), s.DB.Create(existing).Error)

	_, err := s.Scheduler.CreateSlot(ctx, s.Studio.ID, existingEnd.Add(15*time.Minute), existingEnd.Add(75*time.Minute))
	assert.Error(s.T(), err)

	slot, err := s.Scheduler.CreateSlot(ctx, s.Studio.ID, existingEnd.Add(30*time.Minute), existingEnd.Add(90*time.Minute))
	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), slot)
}

// TestConcurrentReserve covers S1: of two concurrent reservations against
// the same available slot, exactly one succeeds.
func (s *SchedulerTestSuite) TestConcurrentReserve() {
	ctx := context.Background()
	start := mustParse(s.T(), "2026-08-02T10:00:00Z")
	end := mustParse(s.T(), "2026-08-02T12:00:00Z")

	slot, err := s.Scheduler.CreateSlot(ctx, s.Studio.ID, start, end)
	assert.NoError(s.T(), err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	bookingIDs := []string{"booking-a", "booking-b"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Scheduler.Reserve(ctx, slot.ID, bookingIDs[i])
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(s.T(), 1, successes)

	var persisted models.Slot
	assert.NoError(s.T(), s.DB.First(&persisted, "id = ?", slot.ID).Error)
	assert.Equal(s.T(), models.SlotStatusBooked, persisted.Status)
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}
