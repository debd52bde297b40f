package distribution

import (
	"github.com/gin-gonic/gin"
	"github.com/ksred/invest-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the admin distribution endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// RunDistributionHandler handles POST requests to trigger a manual
// distribution run for one position kind
// Requires internal authentication; the acting client becomes the run's actor
// URL parameter: kind (daily or hourly)
func (h *GinHandlers) RunDistributionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := ParseKind(c.Param("kind"))
		if err != nil {
			response.BadRequest(c, "kind must be daily or hourly")
			return
		}

		actorID := c.GetString("clientID")
		if actorID == "" {
			response.Unauthorized(c, "Missing actor identity")
			return
		}

		summary, err := h.service.RunManual(kind, actorID)
		response.Handle(c, summary, err)
	}
}

// PreviewDistributionHandler handles GET requests for the read-only
// eligibility preview; nothing is credited
// URL parameter: kind (daily or hourly)
func (h *GinHandlers) PreviewDistributionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, err := ParseKind(c.Param("kind"))
		if err != nil {
			response.BadRequest(c, "kind must be daily or hourly")
			return
		}

		preview, err := h.service.Preview(kind)
		response.Handle(c, preview, err)
	}
}
