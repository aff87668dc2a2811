package handlers

import (
	"context"
	"errors"
	"net/http"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// BatchEngine is the slice of the batch service the handlers call.
type BatchEngine interface {
	ProcessAccountBatch(ctx context.Context, accountID string, batchSize int) (*models.BatchResult, error)
}

// FrictionHandler exposes the friction-analysis pipeline over HTTP.
type FrictionHandler struct {
	batch BatchEngine
}

// NewFrictionHandler creates the handler.
func NewFrictionHandler(batch BatchEngine) *FrictionHandler {
	return &FrictionHandler{batch: batch}
}

// AnalyzeRequest is the body for POST /friction/analyze.
type AnalyzeRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	BatchSize int    `json:"batch_size,omitempty"`
}

// AnalyzeFriction runs one classification batch for an account.
func (h *FrictionHandler) AnalyzeFriction(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "account_id is required"})
		return
	}

	result, err := h.batch.ProcessAccountBatch(c.Request.Context(), req.AccountID, req.BatchSize)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// BulkAnalyzeRequest is the body for POST /friction/bulk-analyze.
type BulkAnalyzeRequest struct {
	AccountIDs []string `json:"account_ids" binding:"required"`
	BatchSize  int      `json:"batch_size,omitempty"`
}

// BulkAnalyzeFriction runs one batch per account, sequentially. Accounts are
// not parallelized here for the same reason cases are not: the classifier
// API's rate limit.
func (h *FrictionHandler) BulkAnalyzeFriction(c *gin.Context) {
	var req BulkAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AccountIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "account_ids is required"})
		return
	}

	results := make([]gin.H, 0, len(req.AccountIDs))
	for _, accountID := range req.AccountIDs {
		result, err := h.batch.ProcessAccountBatch(c.Request.Context(), accountID, req.BatchSize)
		if err != nil {
			results = append(results, gin.H{
				"account_id": accountID,
				"error":      err.Error(),
				"error_kind": errorKind(err),
			})
			// A dead key fails every account the same way; stop early.
			if errors.Is(err, services.ErrConfiguration) {
				break
			}
			continue
		}
		results = append(results, gin.H{"account_id": accountID, "result": result})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": results})
}

// respondPipelineError maps the pipeline error taxonomy onto HTTP statuses so
// the dashboard can render a config fix differently from a retry prompt.
func respondPipelineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrConfiguration):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTransientService):
		status = http.StatusBadGateway
	case errors.Is(err, services.ErrAccountBusy):
		status = http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, gin.H{
		"success":    false,
		"error":      err.Error(),
		"error_kind": errorKind(err),
	})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return "configuration"
	case errors.Is(err, services.ErrTransientService):
		return "service_degraded"
	case errors.Is(err, services.ErrAccountBusy):
		return "account_busy"
	case errors.Is(err, services.ErrPersistence):
		return "persistence"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// HealthCheck answers load-balancer probes.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "Friction Intelligence API",
	})
}
