package migrations

import (
	"github.com/ksred/invest-api/internal/types"
	"gorm.io/gorm"
)

// AddDistributionRecords creates the distribution records table and its
// indexes. The composite unique index on (position_id, period_index) is the
// engine's core correctness guarantee, so it is created with raw SQL here
// rather than relying on struct tags alone.
func AddDistributionRecords(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.DistributionRecord{}); err != nil {
		return err
	}

	indexes := []string{
		// At most one payout per period per position. The insert racing
		// against this index is the engine's only serialization mechanism.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_distribution_period
		 ON distribution_records(position_id, period_index)`,

		// Index for per-position count and conservation queries
		`CREATE INDEX IF NOT EXISTS idx_distribution_records_position
		 ON distribution_records(position_id)`,

		// Index for period-boundary reporting queries
		`CREATE INDEX IF NOT EXISTS idx_distribution_records_period_time
		 ON distribution_records(period_time)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
