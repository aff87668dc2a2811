package services

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// LogEntry is one recorded API request.
type LogEntry struct {
	Timestamp    time.Time
	Path         string
	Method       string
	StatusCode   int
	ResponseTime time.Duration
}

// MonitoringService keeps an in-memory request log for the ops dashboard.
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
}

// NewMonitoringService creates an empty monitoring service.
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
	}
}

// LogRequest records one request.
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
}

// LoggingMiddleware records request metadata for every API call except the
// monitoring endpoints themselves.
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/monitoring") || path == "/health" {
			return
		}

		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		})
	}
}

// DashboardData is the aggregated view served to the ops dashboard.
type DashboardData struct {
	Endpoints    map[string]int   `json:"endpoints"`
	StatusCodes  map[string]int   `json:"statusCodes"`
	AvgMillis    map[string]int64 `json:"avgResponseMillis"`
	RecentErrors []LogEntry       `json:"recentErrors"`
	TotalCount   int              `json:"totalCount"`
}

// GetDashboardData aggregates the request log for the trailing periodHours.
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := time.Now().UTC().Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{
		"2xx Success":      0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	responseTimeSum := make(map[string]time.Duration)
	responseCount := make(map[string]int)

	for _, entry := range filtered {
		endpoints[entry.Path]++
		switch {
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			statusCodes["2xx Success"]++
		case entry.StatusCode >= 400 && entry.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case entry.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}
		responseTimeSum[entry.Path] += entry.ResponseTime
		responseCount[entry.Path]++
	}

	avgMillis := make(map[string]int64)
	for path, total := range responseTimeSum {
		avgMillis[path] = total.Milliseconds() / int64(responseCount[path])
	}

	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
			if len(recentErrors) >= 10 {
				break
			}
		}
	}

	return DashboardData{
		Endpoints:    endpoints,
		StatusCodes:  statusCodes,
		AvgMillis:    avgMillis,
		RecentErrors: recentErrors,
		TotalCount:   len(filtered),
	}
}
