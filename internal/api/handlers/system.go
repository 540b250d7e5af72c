package handlers

import (
	"context"
	"net/http"
	"time"

	"msgboard/internal/api/interfaces"
	"msgboard/internal/api/models"

	"github.com/gin-gonic/gin"
)

const version = "0.1.0"

var startTime = time.Now()

// HealthCheck reports liveness and database reachability.
func HealthCheck(services interfaces.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		start := time.Now()
		dbCheck := models.HealthCheck{Status: "healthy"}
		if err := services.Ping(ctx); err != nil {
			services.GetLogger().Error("Database health check failed", "error", err.Error())
			dbCheck = models.HealthCheck{Status: "unhealthy", Message: "database unreachable"}
		}
		dbCheck.Latency = time.Since(start).String()

		status, code := "healthy", http.StatusOK
		if dbCheck.Status != "healthy" {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, models.HealthCheckResponse{
			Status:    status,
			Timestamp: time.Now().Unix(),
			Version:   version,
			Uptime:    int64(time.Since(startTime).Seconds()),
			Checks:    map[string]models.HealthCheck{"database": dbCheck},
		})
	}
}
