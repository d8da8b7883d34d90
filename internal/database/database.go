package database

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/datquang03/studio-booking-engine/internal/config"
	"github.com/datquang03/studio-booking-engine/internal/models"
)

// Connect connects to the PostgreSQL database.
func Connect(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.URI), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate runs database migrations.
func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.Studio{},
		&models.Slot{},
		&models.Equipment{},
		&models.Policy{},
		&models.Booking{},
		&models.BookingDetail{},
		&models.Payment{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createIndexes creates additional indexes for common query patterns not
// already covered by gorm tags.
func createIndexes(db *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_slots_status_start ON slots(status, start_time)",

		"CREATE INDEX IF NOT EXISTS idx_bookings_customer_status ON bookings(customer_ref, status)",
		"CREATE INDEX IF NOT EXISTS idx_bookings_studio_status ON bookings(studio_id, status)",

		"CREATE INDEX IF NOT EXISTS idx_equipment_name ON equipment(name)",

		"CREATE INDEX IF NOT EXISTS idx_payments_booking_status ON payments(booking_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_payments_expires_at ON payments(expires_at) WHERE status = 'pending'",
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// ConnectRedis connects to Redis, used for the scheduler's slot-listing read
// cache and the rate limiter's sliding-window counters.
func ConnectRedis(cfg config.Redis) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	return client, nil
}
