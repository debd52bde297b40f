package database

import (
	"fmt"

	"github.com/ksred/invest-api/internal/database/migrations"
	"github.com/ksred/invest-api/internal/positions"
	"github.com/ksred/invest-api/internal/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase initializes a GORM connection at the given path and brings the
// schema up to date
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "invest.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddPositionIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddDistributionRecords(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Auto-migrate other schemas
	err = db.AutoMigrate(
		&types.Balance{},
		&types.AuditTransaction{},
		&positions.IdempotencyRecord{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
