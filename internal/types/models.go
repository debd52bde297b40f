package types

import (
	"time"

	"gorm.io/gorm"
)

// Position statuses
const (
	PositionActive    = "ACTIVE"
	PositionCompleted = "COMPLETED"
	PositionCancelled = "CANCELLED"
)

// Position kinds: daily investments accrue once per day, hourly live-trades
// accrue once per hour. The two are structurally identical otherwise.
const (
	KindDaily  = "daily"
	KindHourly = "hourly"
)

// Audit transaction types
const (
	TxnProfit          = "PROFIT"
	TxnPrincipalReturn = "PRINCIPAL_RETURN"
	TxnDeposit         = "DEPOSIT"
	TxnWithdrawal      = "WITHDRAWAL"
)

// Position is a single open financial commitment. It is created by the
// position service, credited by the distribution engine, and only ever
// transitions to a terminal status, never deleted.
type Position struct {
	gorm.Model         `json:"-"`
	PositionID         string     `gorm:"uniqueIndex" json:"position_id"`
	ClientID           string     `gorm:"index" json:"client_id"`
	Kind               string     `json:"kind"` // daily or hourly
	Principal          float64    `json:"principal"`
	RatePerPeriod      float64    `json:"rate_per_period"`
	TotalPeriods       int        `json:"total_periods"`
	StartTime          time.Time  `json:"start_time"`
	Status             string     `json:"status"` // ACTIVE, COMPLETED, CANCELLED
	EndTime            *time.Time `json:"end_time,omitempty"`
	TotalProfitAccrued float64    `json:"total_profit_accrued"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PeriodLength returns the accrual window for the position's kind.
func (p *Position) PeriodLength() time.Duration {
	if p.Kind == KindHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// DistributionRecord is proof that one period of one position has been paid.
// The composite unique index on (position_id, period_index) is the engine's
// sole concurrency guard: a duplicate insert means another invocation already
// credited the period.
type DistributionRecord struct {
	gorm.Model  `json:"-"`
	PositionID  string    `gorm:"uniqueIndex:idx_distribution_period" json:"position_id"`
	PeriodIndex int       `gorm:"uniqueIndex:idx_distribution_period" json:"period_index"`
	Amount      float64   `json:"amount"`
	PeriodTime  time.Time `json:"period_time"` // period boundary, not insert time
	CreatedAt   time.Time `json:"created_at"`
}

// Balance is a client's running total. Mutations are single atomic
// increments inside the same transaction as the write that caused them.
type Balance struct {
	gorm.Model  `json:"-"`
	ClientID    string    `gorm:"uniqueIndex" json:"client_id"`
	TotalAmount float64   `json:"total_amount"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditTransaction is an append-only ledger row mirroring every balance
// mutation. Never updated or deleted.
type AuditTransaction struct {
	gorm.Model    `json:"-"`
	TransactionID string    `gorm:"uniqueIndex" json:"transaction_id"`
	ClientID      string    `gorm:"index" json:"client_id"`
	Type          string    `json:"type"` // PROFIT, PRINCIPAL_RETURN, DEPOSIT, WITHDRAWAL
	Amount        float64   `json:"amount"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
