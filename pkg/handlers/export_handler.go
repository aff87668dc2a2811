package handlers

import (
	"fmt"
	"net/http"

	"friction-intel-api/pkg/store"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// ExportHandler streams an account's snapshot history as an Excel workbook
// for offline visit-prep reports.
type ExportHandler struct {
	store store.Store
}

// NewExportHandler creates the handler.
func NewExportHandler(st store.Store) *ExportHandler {
	return &ExportHandler{store: st}
}

// ExportSnapshots writes the snapshot history to an .xlsx download.
func (h *ExportHandler) ExportSnapshots(c *gin.Context) {
	accountID := c.Param("accountId")
	if accountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "accountId is required"})
		return
	}

	snapshots, err := h.store.ListSnapshots(c.Request.Context(), accountID, 365)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "OFI History"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Date", "OFI Score", "Trend Direction", "Trend vs Prior (%)",
		"Friction Cards", "High Severity", "Case Volume",
		"Weighted Score", "Base Score", "Density Multiplier",
		"High-Severity Boost", "Health Amplifier", "Top Theme",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, s := range snapshots {
		trend := ""
		if s.TrendVsPrior != nil {
			trend = fmt.Sprintf("%+d", *s.TrendVsPrior)
		}
		topTheme := ""
		if len(s.TopThemes) > 0 {
			topTheme = s.TopThemes[0].Theme
		}

		values := []any{
			s.SnapshotDate, s.OFIScore, s.TrendDirection, trend,
			s.FrictionCardCount, s.HighSeverityCount, s.CaseVolume,
			s.Breakdown.WeightedScore, s.Breakdown.BaseScore, s.Breakdown.DensityMultiplier,
			s.Breakdown.HighSeverityBoost, s.Breakdown.HealthAmplifier, topTheme,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("ofi-history-%s.xlsx", accountID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
