package handlers

import (
	"github.com/campuspool/backend/internal/services"
	"github.com/campuspool/backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// SystemLogHandler exposes the durable operation log for operators.
type SystemLogHandler struct {
	service *services.SystemLogService
}

func NewSystemLogHandler(service *services.SystemLogService) *SystemLogHandler {
	return &SystemLogHandler{service: service}
}

// List returns paginated system logs
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.service.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}
