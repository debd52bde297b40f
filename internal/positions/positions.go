package positions

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ksred/invest-api/internal/auth"
	"github.com/ksred/invest-api/internal/types"
	"github.com/ksred/invest-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrInvalidKind    = errors.New("kind must be daily or hourly")
	ErrInvalidPlan    = errors.New("principal, rate and total periods must be positive")
	ErrNotCancellable = errors.New("position is not active")
)

// Service handles position lifecycle operations other than profit accrual,
// which belongs to the distribution engine
type Service struct {
	db *Database
}

// NewService creates a new positions service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// OpenPosition creates a new position with idempotency support
// A repeated request with the same idempotency key returns the position
// created by the first request instead of opening a duplicate
func (s *Service) OpenPosition(clientID string, req *OpenPositionRequest, idempotencyKey string) (*types.Position, error) {
	record, err := s.db.GetIdempotencyRecord(idempotencyKey)

	if err == nil && record != nil && record.ExpiresAt.After(time.Now()) {
		existing, err := s.db.GetPosition(record.ResourceID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.New("position not found")
		}
		return existing, nil
	}

	if req.Kind != types.KindDaily && req.Kind != types.KindHourly {
		return nil, ErrInvalidKind
	}
	if req.Principal <= 0 || req.RatePerPeriod <= 0 || req.TotalPeriods <= 0 {
		return nil, ErrInvalidPlan
	}

	start := time.Now()
	if req.StartTime != nil {
		start = *req.StartTime
	}

	position := &types.Position{
		PositionID:    "POS_" + uuid.New().String(),
		ClientID:      clientID,
		Kind:          req.Kind,
		Principal:     req.Principal,
		RatePerPeriod: req.RatePerPeriod,
		TotalPeriods:  req.TotalPeriods,
		StartTime:     start,
		Status:        types.PositionActive,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.db.CreatePositionWithIdempotency(position, idempotencyKey); err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}

	return position, nil
}

// GetClientPosition retrieves one of the client's positions by ID
func (s *Service) GetClientPosition(positionID, clientID string) (*types.Position, error) {
	return s.db.GetPositionByIDAndClientID(positionID, clientID)
}

// ListClientPositions retrieves all positions for a client
func (s *Service) ListClientPositions(clientID string) ([]types.Position, error) {
	return s.db.GetClientPositions(clientID)
}

// CancelPosition cancels one of the client's active positions and refunds
// its principal. Cancelled positions are never distributed or completed.
func (s *Service) CancelPosition(positionID, clientID string) (*types.Position, error) {
	position, err := s.db.GetPositionByIDAndClientID(positionID, clientID)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}

	cancelled, err := s.db.CancelPosition(position, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel position: %w", err)
	}
	if !cancelled {
		return nil, ErrNotCancellable
	}

	return s.db.GetPosition(positionID)
}

// GinHandlers contains HTTP handlers for position endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for position endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// OpenPositionHandler handles POST requests to open new positions
// Requires a valid JWT token and idempotency key in headers
func (h *GinHandlers) OpenPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		var req OpenPositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		position, err := h.service.OpenPosition(clientID, &req, idempotencyKey)
		if errors.Is(err, ErrInvalidKind) || errors.Is(err, ErrInvalidPlan) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Handle(c, position, err)
	}
}

// GetPositionHandler handles GET requests to retrieve a single position
// URL parameter: position_id
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		positionID := c.Param("position_id")
		if positionID == "" {
			response.BadRequest(c, "Position ID is required")
			return
		}

		position, err := h.service.GetClientPosition(positionID, clientID)
		if err != nil || position == nil {
			response.NotFound(c, "Position not found")
			return
		}

		response.Success(c, position)
	}
}

// ListPositionsHandler handles GET requests to list the client's positions
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		positions, err := h.service.ListClientPositions(clientID)
		response.Handle(c, positions, err)
	}
}

// CancelPositionHandler handles POST requests to cancel an active position
// URL parameter: position_id
func (h *GinHandlers) CancelPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFromContext(c)
		if clientID == "" {
			response.Unauthorized(c, "Invalid client ID in token")
			return
		}

		positionID := c.Param("position_id")

		position, err := h.service.CancelPosition(positionID, clientID)
		if errors.Is(err, ErrNotCancellable) {
			response.Conflict(c, err.Error())
			return
		}
		if err == nil && position == nil {
			response.NotFound(c, "Position not found")
			return
		}
		response.Handle(c, position, err)
	}
}

// clientIDFromContext extracts the authenticated client ID set by the JWT
// middleware, falling back to the raw claims object.
func clientIDFromContext(c *gin.Context) string {
	if clientID := c.GetString("clientID"); clientID != "" {
		return clientID
	}
	if claims, exists := c.Get("claims"); exists {
		return auth.GetClientID(claims)
	}
	return ""
}
