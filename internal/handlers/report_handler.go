package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler serves admin reports
type ReportHandler struct {
	reports *affiliate.Reporter
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *affiliate.Reporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// reportFilter reads from, to, owner_id and code from the query string
func reportFilter(c *gin.Context) (affiliate.ReportFilter, error) {
	var (
		f   affiliate.ReportFilter
		err error
	)
	if f.From, err = queryTime(c, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return f, err
	}
	if raw := strings.TrimSpace(c.Query("owner_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, errors.New("invalid owner_id")
		}
		f.OwnerID = &id
	}
	f.Code = c.Query("code")
	return f, nil
}

// AffiliateReport returns one line per affiliate code
func (h *ReportHandler) AffiliateReport(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.reports.AffiliateReport(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliates": stats, "count": len(stats)})
}

// SystemReport returns the system-wide rollup
func (h *ReportHandler) SystemReport(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	stats, err := h.reports.SystemReport(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportAffiliateReport downloads the affiliate report as a spreadsheet
func (h *ReportHandler) ExportAffiliateReport(c *gin.Context) {
	filter, err := reportFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := h.reports.ExportAffiliateReport(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("affiliates-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
