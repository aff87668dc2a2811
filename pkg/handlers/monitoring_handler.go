package handlers

import (
	"net/http"

	"friction-intel-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler serves the ops dashboard's request-log aggregates.
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler creates the handler.
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{
		Service: service,
	}
}

// GetLogs returns aggregated request-log data for the requested period.
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	periodStr := c.DefaultQuery("period", "24h")
	var hours int

	switch periodStr {
	case "1h":
		hours = 1
	case "24h":
		hours = 24
	case "7d":
		hours = 24 * 7
	default:
		hours = 24
	}

	data := h.Service.GetDashboardData(hours)
	c.JSON(http.StatusOK, data)
}
