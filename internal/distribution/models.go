package distribution

import (
	"errors"
	"time"
)

// PeriodKind selects which family of positions a run covers.
type PeriodKind string

const (
	KindDaily  PeriodKind = "daily"
	KindHourly PeriodKind = "hourly"
)

var ErrUnknownKind = errors.New("unknown period kind")

// ParseKind validates a kind string from an API route or trigger.
func ParseKind(s string) (PeriodKind, error) {
	switch PeriodKind(s) {
	case KindDaily, KindHourly:
		return PeriodKind(s), nil
	}
	return "", ErrUnknownKind
}

// PeriodLength returns the accrual window for the kind.
func (k PeriodKind) PeriodLength() time.Duration {
	if k == KindHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// PositionView is one scanner row: the position's plan fields plus its
// persisted distribution count, annotated with the derived window state so
// no further lookups are needed downstream.
type PositionView struct {
	PositionID    string    `json:"position_id"`
	ClientID      string    `json:"client_id"`
	Kind          string    `json:"kind"`
	Principal     float64   `json:"principal"`
	RatePerPeriod float64   `json:"rate_per_period"`
	TotalPeriods  int       `json:"total_periods"`
	StartTime     time.Time `json:"start_time"`
	Status        string    `json:"status"`

	DistributedCount int `json:"distributed_count"`

	// Derived by the scanner from the window calculation.
	ElapsedPeriods  int  `gorm:"-" json:"elapsed_periods"`
	MissingPeriods  int  `gorm:"-" json:"missing_periods"`
	NextPeriodIndex int  `gorm:"-" json:"next_period_index"`
	IsExpired       bool `gorm:"-" json:"is_expired"`
}

// Window is the output of the time-window calculation for one position.
type Window struct {
	ElapsedPeriods  int
	MissingPeriods  int
	NextPeriodIndex int
}

// ExecutionResult reports what one executor pass actually committed.
type ExecutionResult struct {
	PeriodsDistributed int     `json:"periods_distributed"`
	TotalAmount        float64 `json:"total_amount"`
}

// PositionError is one failed position in a batch summary.
type PositionError struct {
	PositionID string `json:"position_id"`
	Message    string `json:"message"`
}

// Summary aggregates one orchestrator run. Per-position failures are
// collected here and never abort the batch.
type Summary struct {
	Kind                    PeriodKind      `json:"kind"`
	PositionsProcessed      int             `json:"positions_processed"`
	TotalPeriodsDistributed int             `json:"total_periods_distributed"`
	TotalAmountDistributed  float64         `json:"total_amount_distributed"`
	PositionsCompleted      int             `json:"positions_completed"`
	Errors                  []PositionError `json:"errors"`
}

// PositionDetail is the per-position breakdown returned by manual runs.
type PositionDetail struct {
	PositionID         string  `json:"position_id"`
	PeriodsDistributed int     `json:"periods_distributed"`
	AmountDistributed  float64 `json:"amount_distributed"`
	Completed          bool    `json:"completed"`
}

// DetailedSummary is the manual-run response: the aggregate plus who
// triggered it and what happened to each position.
type DetailedSummary struct {
	Summary
	ActorID string           `json:"actor_id"`
	Details []PositionDetail `json:"details"`
}

// PendingPreview is one row of the read-only eligibility preview.
type PendingPreview struct {
	PositionID     string `json:"position_id"`
	PendingPeriods int    `json:"pending_periods"`
}
