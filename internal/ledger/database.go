package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ksred/invest-api/internal/types"
	"gorm.io/gorm"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetBalance(clientID string) (*types.Balance, error) {
	var balance types.Balance
	if err := d.db.Where("client_id = ?", clientID).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.Balance{ClientID: clientID, TotalAmount: 0}, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (d *Database) GetClientTransactions(clientID string) ([]types.AuditTransaction, error) {
	var transactions []types.AuditTransaction
	if err := d.db.Where("client_id = ?", clientID).Order("created_at DESC").Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

func (d *Database) GetPositionTransactions(positionID string) ([]types.AuditTransaction, error) {
	var transactions []types.AuditTransaction
	if err := d.db.Where("reference_id = ?", positionID).Order("created_at ASC").Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

// Credit increases the client's balance and appends the matching audit row
// in one transaction.
func (d *Database) Credit(clientID, txnType string, amount float64, referenceID string) (*types.AuditTransaction, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&types.Balance{}).
		Where("client_id = ?", clientID).
		UpdateColumn("total_amount", gorm.Expr("total_amount + ?", amount))
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if err := tx.Create(&types.Balance{ClientID: clientID, TotalAmount: amount}).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	audit := types.AuditTransaction{
		TransactionID: "TXN_" + uuid.New().String(),
		ClientID:      clientID,
		Type:          txnType,
		Amount:        amount,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &audit, nil
}

// Debit decreases the client's balance and appends the matching audit row in
// one transaction. The decrement is conditional on sufficient funds; zero
// rows affected means the balance would have gone negative.
func (d *Database) Debit(clientID, txnType string, amount float64, referenceID string) (*types.AuditTransaction, error) {
	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	result := tx.Model(&types.Balance{}).
		Where("client_id = ? AND total_amount >= ?", clientID, amount).
		UpdateColumn("total_amount", gorm.Expr("total_amount - ?", amount))
	if result.Error != nil {
		tx.Rollback()
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		tx.Rollback()
		return nil, ErrInsufficientFunds
	}

	audit := types.AuditTransaction{
		TransactionID: "TXN_" + uuid.New().String(),
		ClientID:      clientID,
		Type:          txnType,
		Amount:        amount,
		ReferenceID:   referenceID,
		CreatedAt:     time.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &audit, nil
}
