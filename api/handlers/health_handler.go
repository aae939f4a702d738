package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/vgrab-go/internal/app"
)

// Version is reported by /health
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	service *app.BatchService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *app.BatchService) *HealthHandler {
	return &HealthHandler{
		service: service,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Batch   struct {
		Accepting bool   `json:"accepting"`
		Current   string `json:"current,omitempty"`
	} `json:"batch"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	run := h.service.Current()
	response.Batch.Accepting = h.service.IsRunning() && run == nil
	if run != nil {
		response.Batch.Current = run.ID
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.service.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "batch service not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
