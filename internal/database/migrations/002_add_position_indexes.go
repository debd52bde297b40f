package migrations

import (
	"github.com/ksred/invest-api/internal/types"
	"gorm.io/gorm"
)

// AddPositionIndexes creates the positions table and the indexes the
// eligibility scans depend on.
func AddPositionIndexes(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Position{}); err != nil {
		return err
	}

	indexes := []string{
		// Composite index for the scanner's status + kind filter
		`CREATE INDEX IF NOT EXISTS idx_positions_status_kind
		 ON positions(status, kind)`,

		// Index for client portfolio listings
		`CREATE INDEX IF NOT EXISTS idx_positions_client
		 ON positions(client_id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
