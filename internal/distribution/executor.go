package distribution

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPlan = errors.New("position has invalid plan metadata")

// Executor credits owed periods to a single position, one atomic
// transaction per period.
type Executor struct {
	db *Database
}

func NewExecutor(db *Database) *Executor {
	return &Executor{db: db}
}

// Execute credits every owed period for one position, oldest-missing first.
// The distributed count is re-read from storage so a stale scanner row never
// causes periods to be skipped or re-attempted from the wrong index; a
// period that was written by a concurrent run in the meantime simply counts
// as zero effect and the loop moves on. Invalid plan metadata aborts the
// position before anything is credited.
func (e *Executor) Execute(pos *PositionView, now time.Time) (ExecutionResult, error) {
	var result ExecutionResult

	if err := validatePlan(pos); err != nil {
		return result, err
	}

	distributed, err := e.db.CountFor(pos.PositionID)
	if err != nil {
		return result, fmt.Errorf("failed to count distributions: %w", err)
	}

	periodLength := PeriodKind(pos.Kind).PeriodLength()
	window := CalculateWindow(pos.StartTime, periodLength, now, pos.TotalPeriods, distributed)
	if window.MissingPeriods <= 0 {
		return result, nil
	}

	periodAmount := pos.Principal * pos.RatePerPeriod

	for i := 0; i < window.MissingPeriods; i++ {
		periodIndex := window.NextPeriodIndex + i
		boundary := pos.StartTime.Add(time.Duration(periodIndex) * periodLength)

		inserted, err := e.db.CreditPeriod(pos, periodIndex, periodAmount, boundary)
		if err != nil {
			return result, fmt.Errorf("failed to credit period %d: %w", periodIndex, err)
		}
		if inserted {
			result.PeriodsDistributed++
			result.TotalAmount += periodAmount
		}
	}

	return result, nil
}

func validatePlan(pos *PositionView) error {
	if pos.Principal <= 0 {
		return fmt.Errorf("%w: principal %f", ErrInvalidPlan, pos.Principal)
	}
	if pos.RatePerPeriod <= 0 {
		return fmt.Errorf("%w: rate %f", ErrInvalidPlan, pos.RatePerPeriod)
	}
	if pos.TotalPeriods <= 0 {
		return fmt.Errorf("%w: total periods %d", ErrInvalidPlan, pos.TotalPeriods)
	}
	if _, err := ParseKind(pos.Kind); err != nil {
		return fmt.Errorf("%w: kind %q", ErrInvalidPlan, pos.Kind)
	}
	return nil
}
