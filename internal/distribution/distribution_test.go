package distribution

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/invest-api/internal/database"
	"github.com/ksred/invest-api/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := database.NewDatabase(path)
	require.NoError(t, err)

	return NewService(db), db
}

// seedPosition creates an active position whose start time lies the given
// number of whole periods in the past, with a small margin so test runtime
// never lands exactly on a period boundary.
func seedPosition(t *testing.T, db *gorm.DB, kind string, principal, rate float64, totalPeriods, periodsAgo int) *types.Position {
	t.Helper()

	length := 24 * time.Hour
	if kind == types.KindHourly {
		length = time.Hour
	}

	position := &types.Position{
		PositionID:    "POS_" + uuid.New().String(),
		ClientID:      "client-1",
		Kind:          kind,
		Principal:     principal,
		RatePerPeriod: rate,
		TotalPeriods:  totalPeriods,
		StartTime:     time.Now().Add(-time.Duration(periodsAgo)*length - time.Minute),
		Status:        types.PositionActive,
	}
	require.NoError(t, db.Create(position).Error)
	return position
}

func recordCount(t *testing.T, db *gorm.DB, positionID string) int {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&types.DistributionRecord{}).Where("position_id = ?", positionID).Count(&count).Error)
	return int(count)
}

func clientBalance(t *testing.T, db *gorm.DB, clientID string) float64 {
	t.Helper()
	var balance types.Balance
	err := db.Where("client_id = ?", clientID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0
	}
	require.NoError(t, err)
	return balance.TotalAmount
}

func reloadPosition(t *testing.T, db *gorm.DB, positionID string) *types.Position {
	t.Helper()
	var position types.Position
	require.NoError(t, db.Where("position_id = ?", positionID).First(&position).Error)
	return &position
}

func TestBackfillDistributesElapsedPeriods(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PositionsProcessed)
	assert.Equal(t, 6, summary.TotalPeriodsDistributed)
	assert.InDelta(t, 6*1000*0.02, summary.TotalAmountDistributed, 1e-9)
	assert.Empty(t, summary.Errors)

	assert.Equal(t, 6, recordCount(t, db, pos.PositionID))

	// Periods form a contiguous run 1..6
	var records []types.DistributionRecord
	require.NoError(t, db.Where("position_id = ?", pos.PositionID).Order("period_index ASC").Find(&records).Error)
	for i, r := range records {
		assert.Equal(t, i+1, r.PeriodIndex)
		assert.Equal(t, pos.StartTime.Add(time.Duration(i+1)*24*time.Hour).Unix(), r.PeriodTime.Unix())
	}
}

func TestScheduledRunIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)

	_, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	second, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	assert.Equal(t, 0, second.TotalPeriodsDistributed)
	assert.Zero(t, second.TotalAmountDistributed)
	assert.Equal(t, 6, recordCount(t, db, pos.PositionID))
	assert.InDelta(t, 120, clientBalance(t, db, "client-1"), 1e-9)
}

func TestBackfillCappedAtTotalPeriods(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 5, 20)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.TotalPeriodsDistributed)
	assert.Equal(t, 1, summary.PositionsCompleted)
	assert.Equal(t, 5, recordCount(t, db, pos.PositionID))

	reloaded := reloadPosition(t, db, pos.PositionID)
	assert.Equal(t, types.PositionCompleted, reloaded.Status)
	require.NotNil(t, reloaded.EndTime)
}

func TestPartialCatchUp(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 7)

	// Three periods already recorded by an earlier run
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.Create(&types.DistributionRecord{
			PositionID:  pos.PositionID,
			PeriodIndex: i,
			Amount:      20,
			PeriodTime:  pos.StartTime.Add(time.Duration(i) * 24 * time.Hour),
		}).Error)
	}
	require.NoError(t, db.Model(&types.Position{}).
		Where("position_id = ?", pos.PositionID).
		UpdateColumn("total_profit_accrued", 60.0).Error)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalPeriodsDistributed)
	assert.Equal(t, 7, recordCount(t, db, pos.PositionID))

	var records []types.DistributionRecord
	require.NoError(t, db.Where("position_id = ?", pos.PositionID).Order("period_index ASC").Find(&records).Error)
	assert.Equal(t, 7, len(records))
	for i, r := range records {
		assert.Equal(t, i+1, r.PeriodIndex)
	}
}

func TestConservation(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 750, 0.015, 10, 4)

	_, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)
	_, err = svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	var recordSum float64
	require.NoError(t, db.Model(&types.DistributionRecord{}).
		Where("position_id = ?", pos.PositionID).
		Select("COALESCE(SUM(amount), 0)").Scan(&recordSum).Error)

	reloaded := reloadPosition(t, db, pos.PositionID)
	assert.InDelta(t, recordSum, reloaded.TotalProfitAccrued, 1e-9)

	// Every profit credit has a matching audit entry
	var auditSum float64
	require.NoError(t, db.Model(&types.AuditTransaction{}).
		Where("client_id = ? AND type = ?", "client-1", types.TxnProfit).
		Select("COALESCE(SUM(amount), 0)").Scan(&auditSum).Error)
	assert.InDelta(t, recordSum, auditSum, 1e-9)
}

func TestExactlyOnceCompletion(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindHourly, 500, 0.01, 4, 9)

	completions := 0
	for i := 0; i < 3; i++ {
		summary, err := svc.RunScheduled(KindHourly)
		require.NoError(t, err)
		completions += summary.PositionsCompleted
	}

	assert.Equal(t, 1, completions)
	assert.Equal(t, 4, recordCount(t, db, pos.PositionID))

	var principalReturns int64
	require.NoError(t, db.Model(&types.AuditTransaction{}).
		Where("reference_id = ? AND type = ?", pos.PositionID, types.TxnPrincipalReturn).
		Count(&principalReturns).Error)
	assert.Equal(t, int64(1), principalReturns)

	// 4 periods of profit plus the principal, exactly once
	assert.InDelta(t, 4*500*0.01+500, clientBalance(t, db, "client-1"), 1e-9)
}

func TestEndToEndScenario(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 5, 6)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.TotalPeriodsDistributed)
	assert.InDelta(t, 100, summary.TotalAmountDistributed, 1e-9)
	assert.Equal(t, 1, summary.PositionsCompleted)

	reloaded := reloadPosition(t, db, pos.PositionID)
	assert.Equal(t, types.PositionCompleted, reloaded.Status)
	assert.InDelta(t, 100, reloaded.TotalProfitAccrued, 1e-9)
	assert.InDelta(t, 1100, clientBalance(t, db, "client-1"), 1e-9)

	second, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalPeriodsDistributed)
	assert.Equal(t, 0, second.PositionsCompleted)
	assert.InDelta(t, 1100, clientBalance(t, db, "client-1"), 1e-9)
}

func TestManualRunReturnsDetail(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 3)

	detailed, err := svc.RunManual(KindDaily, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, "admin-1", detailed.ActorID)
	require.Len(t, detailed.Details, 1)
	assert.Equal(t, pos.PositionID, detailed.Details[0].PositionID)
	assert.Equal(t, 3, detailed.Details[0].PeriodsDistributed)
	assert.False(t, detailed.Details[0].Completed)
	assert.Equal(t, 3, recordCount(t, db, pos.PositionID))
}

func TestManualRunRepairsExpiredPosition(t *testing.T) {
	svc, db := newTestService(t)
	// Duration lapsed long ago and no scheduled run ever saw the position
	pos := seedPosition(t, db, types.KindHourly, 200, 0.05, 3, 50)

	detailed, err := svc.RunManual(KindHourly, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, 3, detailed.TotalPeriodsDistributed)
	assert.Equal(t, 1, detailed.PositionsCompleted)
	assert.Equal(t, types.PositionCompleted, reloadPosition(t, db, pos.PositionID).Status)
}

func TestCancelledPositionsAreNeverDistributed(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)
	require.NoError(t, db.Model(&types.Position{}).
		Where("position_id = ?", pos.PositionID).
		Update("status", types.PositionCancelled).Error)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PositionsProcessed)
	assert.Equal(t, 0, recordCount(t, db, pos.PositionID))

	detailed, err := svc.RunManual(KindDaily, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 0, detailed.PositionsProcessed)
}

func TestPreviewMutatesNothing(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)

	preview, err := svc.Preview(KindDaily)
	require.NoError(t, err)
	require.Len(t, preview, 1)
	assert.Equal(t, pos.PositionID, preview[0].PositionID)
	assert.Equal(t, 6, preview[0].PendingPeriods)

	assert.Equal(t, 0, recordCount(t, db, pos.PositionID))
	assert.Zero(t, clientBalance(t, db, "client-1"))
}

func TestInvalidPlanIsReportedNotCredited(t *testing.T) {
	svc, db := newTestService(t)
	bad := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)
	require.NoError(t, db.Model(&types.Position{}).
		Where("position_id = ?", bad.PositionID).
		Update("rate_per_period", 0.0).Error)
	good := seedPosition(t, db, types.KindDaily, 1000, 0.02, 10, 6)

	summary, err := svc.RunScheduled(KindDaily)
	require.NoError(t, err)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, bad.PositionID, summary.Errors[0].PositionID)
	assert.Equal(t, 0, recordCount(t, db, bad.PositionID))

	// The sibling position is unaffected by the bad one
	assert.Equal(t, 6, recordCount(t, db, good.PositionID))
}

func TestConcurrentSamePeriodCredit(t *testing.T) {
	svc, db := newTestService(t)
	pos := seedPosition(t, db, types.KindHourly, 1000, 0.02, 10, 1)

	view := PositionView{
		PositionID:    pos.PositionID,
		ClientID:      pos.ClientID,
		Kind:          pos.Kind,
		Principal:     pos.Principal,
		RatePerPeriod: pos.RatePerPeriod,
		TotalPeriods:  pos.TotalPeriods,
		StartTime:     pos.StartTime,
		Status:        pos.Status,
	}
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := view
			// Errors are tolerated here; what matters is that no period
			// is ever credited twice.
			_, _ = svc.executor.Execute(&v, now)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, recordCount(t, db, pos.PositionID))
	assert.InDelta(t, 1000*0.02, clientBalance(t, db, pos.ClientID), 1e-9)

	var profitCredits int64
	require.NoError(t, db.Model(&types.AuditTransaction{}).
		Where("reference_id = ? AND type = ?", pos.PositionID, types.TxnProfit).
		Count(&profitCredits).Error)
	assert.Equal(t, int64(1), profitCredits)
}

func TestFinalPeriodCreditedBeforeCompletion(t *testing.T) {
	svc, db := newTestService(t)
	// Expired with nothing distributed: the completion path must backfill
	// every period, including the final one, before returning principal.
	pos := seedPosition(t, db, types.KindHourly, 300, 0.02, 6, 6)

	summary, err := svc.RunScheduled(KindHourly)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.TotalPeriodsDistributed)
	assert.Equal(t, 1, summary.PositionsCompleted)

	var last types.DistributionRecord
	require.NoError(t, db.Where("position_id = ?", pos.PositionID).
		Order("period_index DESC").First(&last).Error)
	assert.Equal(t, 6, last.PeriodIndex)
}
