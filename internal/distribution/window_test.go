package distribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateWindow(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	tests := []struct {
		name               string
		start              time.Time
		periodLength       time.Duration
		now                time.Time
		totalPeriods       int
		alreadyDistributed int
		want               Window
	}{
		{
			name:         "nothing elapsed yet",
			start:        base,
			periodLength: day,
			now:          base.Add(12 * time.Hour),
			totalPeriods: 10,
			want:         Window{ElapsedPeriods: 0, MissingPeriods: 0, NextPeriodIndex: 1},
		},
		{
			name:         "six whole periods elapsed, none distributed",
			start:        base,
			periodLength: day,
			now:          base.Add(6 * day),
			totalPeriods: 10,
			want:         Window{ElapsedPeriods: 6, MissingPeriods: 6, NextPeriodIndex: 1},
		},
		{
			name:         "partial period does not count",
			start:        base,
			periodLength: day,
			now:          base.Add(6*day - time.Minute),
			totalPeriods: 10,
			want:         Window{ElapsedPeriods: 5, MissingPeriods: 5, NextPeriodIndex: 1},
		},
		{
			name:               "partial catch-up",
			start:              base,
			periodLength:       day,
			now:                base.Add(7 * day),
			totalPeriods:       10,
			alreadyDistributed: 3,
			want:               Window{ElapsedPeriods: 7, MissingPeriods: 4, NextPeriodIndex: 4},
		},
		{
			name:         "elapsed capped at total periods",
			start:        base,
			periodLength: day,
			now:          base.Add(20 * day),
			totalPeriods: 5,
			want:         Window{ElapsedPeriods: 5, MissingPeriods: 5, NextPeriodIndex: 1},
		},
		{
			name:               "fully distributed position owes nothing",
			start:              base,
			periodLength:       day,
			now:                base.Add(20 * day),
			totalPeriods:       5,
			alreadyDistributed: 5,
			want:               Window{ElapsedPeriods: 5, MissingPeriods: 0, NextPeriodIndex: 6},
		},
		{
			name:         "clock before start yields zero",
			start:        base,
			periodLength: day,
			now:          base.Add(-3 * day),
			totalPeriods: 10,
			want:         Window{ElapsedPeriods: 0, MissingPeriods: 0, NextPeriodIndex: 1},
		},
		{
			name:               "distributed ahead of elapsed never goes negative",
			start:              base,
			periodLength:       day,
			now:                base.Add(2 * day),
			totalPeriods:       10,
			alreadyDistributed: 4,
			want:               Window{ElapsedPeriods: 2, MissingPeriods: 0, NextPeriodIndex: 5},
		},
		{
			name:         "hourly periods",
			start:        base,
			periodLength: time.Hour,
			now:          base.Add(90 * time.Minute),
			totalPeriods: 24,
			want:         Window{ElapsedPeriods: 1, MissingPeriods: 1, NextPeriodIndex: 1},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CalculateWindow(tt.start, tt.periodLength, tt.now, tt.totalPeriods, tt.alreadyDistributed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind("daily")
	assert.NoError(t, err)
	assert.Equal(t, KindDaily, kind)
	assert.Equal(t, 24*time.Hour, kind.PeriodLength())

	kind, err = ParseKind("hourly")
	assert.NoError(t, err)
	assert.Equal(t, KindHourly, kind)
	assert.Equal(t, time.Hour, kind.PeriodLength())

	_, err = ParseKind("weekly")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
