package positions

import (
	"time"

	"gorm.io/gorm"
)

// IdempotencyRecord makes position creation safe to retry: a repeated
// request with the same key returns the position created the first time.
type IdempotencyRecord struct {
	gorm.Model
	IdempotencyKey string    `gorm:"uniqueIndex" json:"idempotency_key"`
	ResourceID     string    `json:"resource_id"`
	ResourceType   string    `json:"resource_type"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// OpenPositionRequest is the request body for opening a position. StartTime
// is optional and defaults to now; a back-dated start is accepted so
// migrated commitments keep their original accrual schedule.
type OpenPositionRequest struct {
	Kind          string     `json:"kind" binding:"required"`
	Principal     float64    `json:"principal" binding:"required"`
	RatePerPeriod float64    `json:"rate_per_period" binding:"required"`
	TotalPeriods  int        `json:"total_periods" binding:"required"`
	StartTime     *time.Time `json:"start_time,omitempty"`
}
