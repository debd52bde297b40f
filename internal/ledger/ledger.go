package ledger

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/ksred/invest-api/internal/auth"
	"github.com/ksred/invest-api/internal/types"
	"github.com/ksred/invest-api/pkg/response"
	"gorm.io/gorm"
)

var ErrInvalidAmount = errors.New("amount must be positive")

// Service handles client balances and the append-only transaction ledger
type Service struct {
	db *Database
}

// NewService creates a new ledger service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// GetBalance returns the client's balance; a client with no balance row has
// a zero balance
func (s *Service) GetBalance(clientID string) (*types.Balance, error) {
	return s.db.GetBalance(clientID)
}

// ListTransactions returns the client's ledger entries, newest first
func (s *Service) ListTransactions(clientID string) ([]types.AuditTransaction, error) {
	return s.db.GetClientTransactions(clientID)
}

// Deposit credits the client's balance
func (s *Service) Deposit(clientID string, amount float64) (*types.AuditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.db.Credit(clientID, types.TxnDeposit, amount, "")
}

// Withdraw debits the client's balance, failing when funds are insufficient
func (s *Service) Withdraw(clientID string, amount float64) (*types.AuditTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.db.Debit(clientID, types.TxnWithdrawal, amount, "")
}

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type amountRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		balance, err := h.service.GetBalance(clientID)
		response.Handle(c, balance, err)
	}
}

func (h *GinHandlers) ListTransactionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		transactions, err := h.service.ListTransactions(clientID)
		response.Handle(c, transactions, err)
	}
}

func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Deposit(clientID, req.Amount)
		if errors.Is(err, ErrInvalidAmount) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, txn, err)
	}
}

func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req amountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		txn, err := h.service.Withdraw(clientID, req.Amount)
		switch {
		case errors.Is(err, ErrInvalidAmount):
			response.BadRequest(c, err.Error())
		case errors.Is(err, ErrInsufficientFunds):
			response.Conflict(c, err.Error())
		default:
			response.Handle(c, txn, err)
		}
	}
}

func clientIDFromContext(c *gin.Context) string {
	if clientID := c.GetString("clientID"); clientID != "" {
		return clientID
	}
	if claims, exists := c.Get("claims"); exists {
		return auth.GetClientID(claims)
	}
	return ""
}
