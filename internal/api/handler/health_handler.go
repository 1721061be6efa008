package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/paper-analysis-be/internal/health"
)

// HealthHandler serves the composite health verdict
type HealthHandler struct {
	logger  *slog.Logger
	health  *health.Service
	version string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:  deps.Logger,
		health:  deps.Health,
		version: deps.Version,
	}
}

// GetHealth handles GET /health
// Always responds 200; the verdict lives in the body so load balancers and
// operators read the same payload.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	result := h.health.GetLastHealthCheck()
	if result == nil {
		result = h.health.PerformHealthCheck(c.Request.Context())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    result.Overall,
		"services":  result.Services,
		"uptime_ms": result.UptimeMs,
		"timestamp": result.Timestamp,
		"version":   h.version,
	})
}
