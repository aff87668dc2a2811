package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBatchEngine struct {
	result *models.BatchResult
	err    error
	calls  []string
}

func (s *stubBatchEngine) ProcessAccountBatch(_ context.Context, accountID string, _ int) (*models.BatchResult, error) {
	s.calls = append(s.calls, accountID)
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	result.AccountID = accountID
	return &result, nil
}

type stubScoringEngine struct {
	result *models.OFIResult
	err    error
}

func (s *stubScoringEngine) ComputeOFI(_ context.Context, _ string, _ time.Time) (*models.OFIResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", HealthCheck)

	req, err := http.NewRequest("GET", "/health", nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAnalyzeFriction(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubBatchEngine{result: &models.BatchResult{
		Status: models.BatchCompleted, Analyzed: 12, FrictionCount: 4, NormalCount: 8,
	}}
	router := gin.New()
	router.POST("/api/v1/friction/analyze", NewFrictionHandler(engine).AnalyzeFriction)

	w := postJSON(router, "/api/v1/friction/analyze", `{"account_id": "acct-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"analyzed":12`)
	assert.Equal(t, []string{"acct-1"}, engine.calls)
}

func TestAnalyzeFrictionRequiresAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/friction/analyze", NewFrictionHandler(&stubBatchEngine{}).AnalyzeFriction)

	w := postJSON(router, "/api/v1/friction/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnalyzeFrictionErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{fmt.Errorf("%w: bad key", services.ErrConfiguration), http.StatusServiceUnavailable, "configuration"},
		{fmt.Errorf("%w: 429", services.ErrTransientService), http.StatusBadGateway, "service_degraded"},
		{fmt.Errorf("%w: acct", services.ErrAccountBusy), http.StatusConflict, "account_busy"},
		{fmt.Errorf("%w: down", services.ErrPersistence), http.StatusInternalServerError, "persistence"},
	}

	for _, tc := range tests {
		router := gin.New()
		router.POST("/analyze", NewFrictionHandler(&stubBatchEngine{err: tc.err}).AnalyzeFriction)

		w := postJSON(router, "/analyze", `{"account_id": "acct-1"}`)
		assert.Equal(t, tc.wantStatus, w.Code)
		assert.Contains(t, w.Body.String(), tc.wantKind)
	}
}

func TestBulkAnalyzeStopsOnConfigurationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubBatchEngine{err: fmt.Errorf("%w: dead key", services.ErrConfiguration)}
	router := gin.New()
	router.POST("/bulk", NewFrictionHandler(engine).BulkAnalyzeFriction)

	w := postJSON(router, "/bulk", `{"account_ids": ["a", "b", "c"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	// A dead key fails every account the same way; only the first was tried.
	assert.Equal(t, []string{"a"}, engine.calls)
}

func TestBulkAnalyzeContinuesPastPerAccountErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubBatchEngine{err: fmt.Errorf("%w: other run", services.ErrAccountBusy)}
	router := gin.New()
	router.POST("/bulk", NewFrictionHandler(engine).BulkAnalyzeFriction)

	w := postJSON(router, "/bulk", `{"account_ids": ["a", "b"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a", "b"}, engine.calls)
}

func TestCalculateOFI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	trend := -20
	engine := &stubScoringEngine{result: &models.OFIResult{Snapshot: &models.AccountSnapshot{
		AccountID:    "acct-1",
		SnapshotDate: "2026-09-01",
		OFIScore:     42,
		TrendVsPrior: &trend,
	}}}
	router := gin.New()
	router.POST("/calculate", NewOFIHandler(engine, nil).CalculateOFI)

	w := postJSON(router, "/calculate", `{"account_id": "acct-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ofi_score":42`)
	assert.Contains(t, w.Body.String(), `"trend_vs_prior_period":-20`)
}

func TestCalculateOFINoData(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := &stubScoringEngine{result: &models.OFIResult{NoData: true}}
	router := gin.New()
	router.POST("/calculate", NewOFIHandler(engine, nil).CalculateOFI)

	w := postJSON(router, "/calculate", `{"account_id": "acct-1"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"no_data":true`)
	assert.Contains(t, w.Body.String(), `"ofi_score":0`)
}

func TestCalculateOFIRejectsBadDate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/calculate", NewOFIHandler(&stubScoringEngine{}, nil).CalculateOFI)

	w := postJSON(router, "/calculate", `{"account_id": "acct-1", "as_of": "01/09/2026"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
