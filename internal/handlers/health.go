package handlers

import (
	"github.com/campuspool/backend/internal/models"
	"github.com/campuspool/backend/internal/services"

	"github.com/gin-gonic/gin"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct {
	hub *services.PartyEventHub
}

func NewHealthHandler(hub *services.PartyEventHub) *HealthHandler {
	return &HealthHandler{hub: hub}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Open party / pending request counts
	var openParties int64
	models.GetDB().Model(&models.Party{}).
		Where("status = ?", models.PartyOpen).
		Count(&openParties)

	var pendingRequests int64
	models.GetDB().Model(&models.JoinRequest{}).
		Where("status = ?", models.RequestPending).
		Count(&pendingRequests)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "campuspool",
		"components": gin.H{
			"database":         dbStatus,
			"queue_mode":       queueMode,
			"sse_clients":      h.hub.ClientCount(),
			"open_parties":     openParties,
			"pending_requests": pendingRequests,
		},
	})
}
