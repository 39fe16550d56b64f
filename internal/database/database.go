package database

import (
	"fmt"
	"time"

	"github.com/clinova/backend/internal/config"
	"github.com/clinova/backend/internal/database/migrations"
	"github.com/clinova/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the database connection with configuration
func InitDB(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		// Duplicate-key detection in the commission idempotency path
		// relies on translated errors
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dbConfig.URL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(dbConfig.MaxIdle)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// Migrate runs schema auto-migration followed by the versioned
// migrations that add what GORM tags cannot express
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Tenancy
		&models.Clinic{},

		// Affiliates and attribution
		&models.Affiliate{},
		&models.PatientAttribution{},

		// Commission configuration
		&models.CommissionPlan{},
		&models.CommissionTier{},
		&models.ProductRate{},
		&models.Promotion{},
		&models.PlanAssignment{},

		// Ledger and risk
		&models.CommissionEvent{},
		&models.FraudAlert{},
	); err != nil {
		return err
	}

	return migrations.RunMigrations(db)
}
