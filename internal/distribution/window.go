package distribution

import "time"

// CalculateWindow reports how many accrual periods a position is still owed.
// Elapsed time is measured in whole periods from the position's start and
// capped at the position's total duration, so a position can never be owed
// more periods than its plan declares. A clock reading before the start time
// yields zero elapsed periods.
func CalculateWindow(start time.Time, periodLength time.Duration, now time.Time, totalPeriods, alreadyDistributed int) Window {
	elapsed := 0
	if now.After(start) {
		elapsed = int(now.Sub(start) / periodLength)
	}
	if elapsed > totalPeriods {
		elapsed = totalPeriods
	}

	missing := elapsed - alreadyDistributed
	if missing < 0 {
		missing = 0
	}

	return Window{
		ElapsedPeriods:  elapsed,
		MissingPeriods:  missing,
		NextPeriodIndex: alreadyDistributed + 1,
	}
}
