package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
)

// BatchHandler handles batch-related HTTP requests
type BatchHandler struct {
	service *app.BatchService
	logger  *zap.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(service *app.BatchService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{
		service: service,
		logger:  logger,
	}
}

// SubmitBatchRequest represents a request to run a batch for a page
type SubmitBatchRequest struct {
	URL string `json:"url" binding:"required"`
}

// SubmitBatch handles POST /api/v1/batches
func (h *BatchHandler) SubmitBatch(c *gin.Context) {
	var req SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.service.Submit(req.URL)
	switch {
	case errors.Is(err, app.ErrInvalidPageURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, app.ErrBatchInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, app.ErrServiceStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to submit batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Batch submitted", zap.String("run_id", run.ID), zap.String("page_url", run.PageURL))
	c.JSON(http.StatusAccepted, run)
}

// ListBatches handles GET /api/v1/batches
func (h *BatchHandler) ListBatches(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		limit = 20
	}

	runs, err := h.service.ListRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetBatch handles GET /api/v1/batches/:id
func (h *BatchHandler) GetBatch(c *gin.Context) {
	detail, err := h.service.GetRun(c.Param("id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetCurrent handles GET /api/v1/batches/current
func (h *BatchHandler) GetCurrent(c *gin.Context) {
	run := h.service.Current()
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no batch running"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetStats handles GET /api/v1/stats
func (h *BatchHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
