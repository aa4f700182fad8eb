package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/integrations"
	apperrors "github.com/hearth-home/hearth-backend-go/pkg/errors"
)

// Handlers carries the dependencies for all HTTP handlers
type Handlers struct {
	entitySvc *entities.Service
	manager   *integrations.Manager
	logger    *logrus.Logger
}

// Health reports process liveness and per-integration status
func (h *Handlers) Health(c *gin.Context) {
	health := h.manager.Health()

	status := "healthy"
	for _, integration := range health {
		if integration.State != "healthy" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"integrations": health,
	})
}

// ListEntities returns all current entity states
func (h *Handlers) ListEntities(c *gin.Context) {
	if integrationID := c.Query("integration"); integrationID != "" {
		c.JSON(http.StatusOK, gin.H{"entities": h.entitySvc.ListByIntegration(integrationID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": h.entitySvc.List()})
}

// GetEntity returns one entity state by ID
func (h *Handlers) GetEntity(c *gin.Context) {
	state, err := h.entitySvc.Get(c.Param("id"))
	if err != nil {
		c.JSON(apperrors.GetStatusCode(err), gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

type actionRequest struct {
	Action string `json:"action" binding:"required"`
}

// EntityAction routes a command to the integration owning the entity
func (h *Handlers) EntityAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
		return
	}

	entityID := c.Param("id")
	if err := h.manager.ExecuteAction(c.Request.Context(), entityID, req.Action); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"entity_id": entityID,
			"action":    req.Action,
		}).Warn("Entity action failed")
		c.JSON(apperrors.GetStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entity_id": entityID,
		"action":    req.Action,
		"success":   true,
	})
}

// ListIntegrations returns the health report of every integration
func (h *Handlers) ListIntegrations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"integrations": h.manager.Health()})
}
