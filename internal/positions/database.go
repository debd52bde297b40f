package positions

import (
	"errors"
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

func (d *Database) GetPosition(positionID string) (*types.Position, error) {
	var position types.Position
	if err := d.db.Where("position_id = ?", positionID).First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (d *Database) GetPositionByIDAndClientID(positionID, clientID string) (*types.Position, error) {
	var position types.Position
	if err := d.db.Where("position_id = ? AND client_id = ?", positionID, clientID).First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

func (d *Database) GetClientPositions(clientID string) ([]types.Position, error) {
	var positions []types.Position
	if err := d.db.Where("client_id = ?", clientID).Order("created_at DESC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// GetIdempotencyRecord retrieves an idempotency record by key
func (d *Database) GetIdempotencyRecord(key string) (*IdempotencyRecord, error) {
	var record IdempotencyRecord
	if err := d.db.Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &record, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreatePositionWithIdempotency creates a new position and its idempotency
// record in one transaction
func (d *Database) CreatePositionWithIdempotency(position *types.Position, idempotencyKey string) error {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(position).Error; err != nil {
		tx.Rollback()
		return err
	}

	record := IdempotencyRecord{
		IdempotencyKey: idempotencyKey,
		ResourceID:     position.PositionID,
		ResourceType:   "position",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}

	if err := tx.Create(&record).Error; err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

// CancelPosition transitions an ACTIVE position to CANCELLED and refunds its
// principal in one transaction. The status update is the optimistic guard:
// zero rows affected means the position was already terminal.
func (d *Database) CancelPosition(position *types.Position, now time.Time) (bool, error) {
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
		Where("position_id = ? AND status = ?", position.PositionID, types.PositionActive).
		Updates(map[string]interface{}{
			"status":   types.PositionCancelled,
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

	res := tx.Model(&types.Balance{}).
		Where("client_id = ?", position.ClientID).
		UpdateColumn("total_amount", gorm.Expr("total_amount + ?", position.Principal))
	if res.Error != nil {
		tx.Rollback()
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if err := tx.Create(&types.Balance{ClientID: position.ClientID, TotalAmount: position.Principal}).Error; err != nil {
			tx.Rollback()
			return false, err
		}
	}

	audit := types.AuditTransaction{
		TransactionID: "TXN_" + uuid.New().String(),
		ClientID:      position.ClientID,
		Type:          types.TxnPrincipalReturn,
		Amount:        position.Principal,
		ReferenceID:   position.PositionID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		return false, err
	}

	return true, tx.Commit().Error
}
