package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/aura-ai-core/internal/diagnosis"
	"github.com/example/aura-ai-core/internal/hardware"
	"github.com/example/aura-ai-core/internal/loader"
)

// DiagnosisService is the orchestrator surface the HTTP layer depends on.
type DiagnosisService interface {
	Diagnose(ctx context.Context, req loader.ImageRequest) (*diagnosis.Outcome, error)
	GetOutcome(ctx context.Context, requestID string) (*diagnosis.Outcome, error)
	GetMetricsSummary(ctx context.Context) (*diagnosis.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. authMiddleware
// is optional; when nil the diagnose surface is open (development mode).
func RegisterRoutes(router *gin.Engine, svc DiagnosisService, authMiddleware gin.HandlerFunc, device hardware.Info, resultsDir string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "ai-core",
			"hardware": device,
		})
	})

	// overlay artifacts at a predictable path
	router.Static("/results", resultsDir)

	api := router.Group("/")
	if authMiddleware != nil {
		api.Use(authMiddleware)
	}

	api.POST("/diagnose", func(c *gin.Context) {
		var req loader.ImageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.FileName == "" && req.ImageURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_name or image_url is required"})
			return
		}

		outcome, err := svc.Diagnose(c.Request.Context(), req)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	api.GET("/diagnoses/:id", func(c *gin.Context) {
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		outcome, err := svc.GetOutcome(c.Request.Context(), requestID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "diagnosis not found"})
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	api.GET("/metrics/summary", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
