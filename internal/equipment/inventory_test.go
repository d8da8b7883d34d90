package equipment_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/apperr"
	"github.com/datquang03/studio-booking-engine/internal/equipment"
	"github.com/datquang03/studio-booking-engine/internal/models"
	"github.com/datquang03/studio-booking-engine/internal/repository"
)

type InventoryTestSuite struct {
	suite.Suite
	DB        *gorm.DB
	Inventory *equipment.Inventory
}

func (s *InventoryTestSuite) SetupSuite() {
	dsn := "host=localhost user=postgres password=postgres dbname=studio_booking_test port=5432 sslmode=disable"
	if envURL := os.Getenv("TEST_DATABASE_URL"); envURL != "" {
		dsn = envURL
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		s.T().Fatalf("failed to connect to postgres: %v", err)
	}
	s.DB = db

	assert.NoError(s.T(), s.DB.AutoMigrate(&models.Equipment{}))
	s.Inventory = equipment.NewInventory(repository.NewEquipmentRepository(s.DB))
}

func (s *InventoryTestSuite) TearDownSuite() {
	sqlDB, _ := s.DB.DB()
	sqlDB.Close()
}

func (s *InventoryTestSuite) SetupTest() {
	s.DB.Exec("DELETE FROM equipment")
}

func (s *InventoryTestSuite) TestReserveAndRelease() {
	ctx := context.Background()
	eq := &models.Equipment{Name: "Camera", PricePerHour: 50000, TotalQty: 3}
	assert.NoError(s.T(), s.DB.Create(eq).Error)

	assert.NoError(s.T(), s.Inventory.Reserve(ctx, eq.ID, 2))

	var reloaded models.Equipment
	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 2, reloaded.InUseQty)
	assert.Equal(s.T(), 1, reloaded.AvailableQty())

	err := s.Inventory.Reserve(ctx, eq.ID, 2)
	assert.Error(s.T(), err)
	appErr, ok := apperr.As(err)
	assert.True(s.T(), ok)
	assert.Equal(s.T(), apperr.KindConflict, appErr.Kind)

	assert.NoError(s.T(), s.Inventory.Release(ctx, eq.ID, 2))
	assert.NoError(s.T(), s.DB.First(&reloaded, eq.ID).Error)
	assert.Equal(s.T(), 0, reloaded.InUseQty)
}

func (s *InventoryTestSuite) TestSetMaintenanceRejectsOverBooked() {
	ctx := context.Background()
	eq := &models.Equipment{Name: "Mixer", PricePerHour: 20000, TotalQty: 2, InUseQty: 1}
	assert.NoError(s.T(), s.DB.Create(eq).Error)

	err := s.Inventory.SetMaintenance(ctx, eq.ID, 2)
	assert.Error(s.T(), err)

	assert.NoError(s.T(), s.Inventory.SetMaintenance(ctx, eq.ID, 1))
}

func TestInventoryTestSuite(t *testing.T) {
	suite.Run(t, new(InventoryTestSuite))
}
