package handlers

import (
	"context"
	"net/http"
	"time"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/store"

	"github.com/gin-gonic/gin"
)

// ScoringEngine is the slice of the scoring service the handlers call.
type ScoringEngine interface {
	ComputeOFI(ctx context.Context, accountID string, asOf time.Time) (*models.OFIResult, error)
}

// OFIHandler exposes score calculation and snapshot history over HTTP.
type OFIHandler struct {
	scoring ScoringEngine
	store   store.Store
}

// NewOFIHandler creates the handler.
func NewOFIHandler(scoring ScoringEngine, st store.Store) *OFIHandler {
	return &OFIHandler{scoring: scoring, store: st}
}

// CalculateRequest is the body for POST /ofi/calculate.
type CalculateRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	AsOf      string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

// CalculateOFI scores an account and replaces today's snapshot.
func (h *OFIHandler) CalculateOFI(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "account_id is required"})
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = parsed
	}

	result, err := h.scoring.ComputeOFI(c.Request.Context(), req.AccountID, asOf)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	if result.NoData {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"no_data":   true,
				"ofi_score": 0,
				"message":   "no friction records in scoring window",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result.Snapshot})
}

// GetSnapshots returns an account's snapshot history, newest first.
func (h *OFIHandler) GetSnapshots(c *gin.Context) {
	accountID := c.Param("accountId")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "accountId is required"})
		return
	}

	limit := 90
	snapshots, err := h.store.ListSnapshots(c.Request.Context(), accountID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    snapshots,
		"count":   len(snapshots),
	})
}
