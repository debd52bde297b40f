package distribution

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/invest-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// ListActive returns every ACTIVE position of the given kind together with
// its persisted distribution count, fetched in one query so the scanner
// needs no per-position lookups.
func (d *Database) ListActive(kind PeriodKind) ([]PositionView, error) {
	var views []PositionView
	err := d.db.Table("positions").
		Select(`positions.position_id, positions.client_id, positions.kind,
			positions.principal, positions.rate_per_period, positions.total_periods,
			positions.start_time, positions.status,
			(SELECT COUNT(*) FROM distribution_records dr
			 WHERE dr.position_id = positions.position_id AND dr.deleted_at IS NULL) AS distributed_count`).
		Where("positions.status = ? AND positions.kind = ? AND positions.deleted_at IS NULL",
			types.PositionActive, string(kind)).
		Order("positions.start_time ASC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// CountFor returns the number of periods already recorded for a position.
func (d *Database) CountFor(positionID string) (int, error) {
	var count int64
	err := d.db.Model(&types.DistributionRecord{}).
		Where("position_id = ?", positionID).
		Count(&count).Error
	return int(count), err
}

// CreditPeriod atomically pays one period of one position: the record
// insert, the balance increment, the audit row and the accrued-profit
// increment commit or roll back together. The unique index on
// (position_id, period_index) is the only concurrency guard: when the
// insert collides, the whole transaction rolls back and the period is
// reported as not inserted, which callers treat as a benign no-op.
func (d *Database) CreditPeriod(pos *PositionView, periodIndex int, amount float64, periodTime time.Time) (bool, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	record := types.DistributionRecord{
		PositionID:  pos.PositionID,
		PeriodIndex: periodIndex,
		Amount:      amount,
		PeriodTime:  periodTime,
	}
	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		if isUniqueConstraintError(err) {
			// Another invocation already paid this period.
			return false, nil
		}
		return false, err
	}

	if err := incrementBalance(tx, pos.ClientID, amount); err != nil {
		tx.Rollback()
		return false, err
	}

	audit := types.AuditTransaction{
		TransactionID: "TXN_" + uuid.New().String(),
		ClientID:      pos.ClientID,
		Type:          types.TxnProfit,
		Amount:        amount,
		ReferenceID:   pos.PositionID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		return false, err
	}

	err := tx.Model(&types.Position{}).
		Where("position_id = ?", pos.PositionID).
		UpdateColumn("total_profit_accrued", gorm.Expr("total_profit_accrued + ?", amount)).Error
	if err != nil {
		tx.Rollback()
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		return false, err
	}
	return true, nil
}

// CompletePosition retires a fully-distributed position and returns its
// principal. The status update doubles as the optimistic guard: zero rows
// affected means another invocation completed the position first, and the
// transaction rolls back without crediting anything.
func (d *Database) CompletePosition(pos *PositionView, now time.Time) (bool, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return false, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&types.Position{}).
		Where("position_id = ? AND status = ?", pos.PositionID, types.PositionActive).
		Updates(map[string]interface{}{
			"status":   types.PositionCompleted,
			"end_time": now,
		})
	if result.Error != nil {
		tx.Rollback()
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return false, nil
	}

	if err := incrementBalance(tx, pos.ClientID, pos.Principal); err != nil {
		tx.Rollback()
		return false, err
	}

	audit := types.AuditTransaction{
		TransactionID: "TXN_" + uuid.New().String(),
		ClientID:      pos.ClientID,
		Type:          types.TxnPrincipalReturn,
		Amount:        pos.Principal,
		ReferenceID:   pos.PositionID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		return false, err
	}
	return true, nil
}

// incrementBalance applies a single atomic increment to the client's
// balance row, creating the row when the client has never held funds.
func incrementBalance(tx *gorm.DB, clientID string, amount float64) error {
	result := tx.Model(&types.Balance{}).
		Where("client_id = ?", clientID).
		UpdateColumn("total_amount", gorm.Expr("total_amount + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return tx.Create(&types.Balance{ClientID: clientID, TotalAmount: amount}).Error
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
