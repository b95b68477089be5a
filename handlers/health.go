package handlers

import (
	"net/http"

	"schedulebot/utils"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports the latest snapshot of the background health monitor.
func HealthHandler(calendarID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := utils.GetHealthStatus()
		status, code := "ok", http.StatusOK
		if !checks.Healthy() {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"calendar": calendarID,
			"checks":   checks,
		})
	}
}
