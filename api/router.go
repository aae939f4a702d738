package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/api/middleware"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/pkg/logger"
)

// SetupRouter sets up the HTTP router. ml may be nil, logsDir may be empty
// when category logs are disabled.
func SetupRouter(
	service *app.BatchService,
	hub *handlers.ProgressHub,
	log *zap.Logger,
	ml *logger.MultiLogger,
	logsDir string,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log, ml))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(service)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		batchHandler := handlers.NewBatchHandler(service, log)
		batches := v1.Group("/batches")
		{
			batches.POST("", batchHandler.SubmitBatch)
			batches.GET("", batchHandler.ListBatches)
			batches.GET("/current", batchHandler.GetCurrent)
			batches.GET("/:id", batchHandler.GetBatch)
		}
		v1.GET("/stats", batchHandler.GetStats)

		v1.GET("/progress/ws", hub.HandleWebSocket)

		if logsDir != "" {
			logHandler := handlers.NewLogHandler(logsDir)
			logWS := handlers.NewLogWebSocketHandler(logsDir, log)
			logs := v1.Group("/logs")
			{
				logs.GET("/categories", logHandler.GetCategories)
				logs.GET("/ws", logWS.HandleWebSocket)
				logs.GET("/:category", logHandler.GetLogs)
				logs.GET("/:category/search", logHandler.SearchLogs)
				logs.GET("/:category/dates", logHandler.ListDates)
				logs.GET("/:category/export", logHandler.ExportLogs)
			}
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
