// Package api exposes the REST and websocket surface of the hub.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hearth-home/hearth-backend-go/internal/config"
	"github.com/hearth-home/hearth-backend-go/internal/entities"
	"github.com/hearth-home/hearth-backend-go/internal/integrations"
	"github.com/hearth-home/hearth-backend-go/internal/metrics"
	"github.com/hearth-home/hearth-backend-go/internal/websocket"
)

// NewRouter builds the gin engine with all routes registered
func NewRouter(cfg *config.Config, entitySvc *entities.Service, manager *integrations.Manager, hub *websocket.Hub, reg *metrics.Registry, logger *logrus.Logger) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.Default())

	h := &Handlers{
		entitySvc: entitySvc,
		manager:   manager,
		logger:    logger,
	}

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/entities", h.ListEntities)
		v1.GET("/entities/:id", h.GetEntity)
		v1.POST("/entities/:id/action", h.EntityAction)
		v1.GET("/integrations", h.ListIntegrations)
	}

	if hub != nil {
		router.GET("/ws", websocket.HandleWebSocketGin(hub))
	}
	if reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{})))
	}

	return router
}

// requestLogger logs non-2xx responses; successful reads are too chatty to
// log individually.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status >= 400 {
			logger.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
				"status": status,
			}).Warn("Request failed")
		}
	}
}
