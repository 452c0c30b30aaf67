package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AffiliateHandler is the admin surface for codes and commissions
type AffiliateHandler struct {
	registry   *affiliate.Registry
	ledger     *affiliate.Ledger
	reports    *affiliate.Reporter
	defaultPct decimal.Decimal
	logger     *slog.Logger
}

// NewAffiliateHandler creates a new affiliate admin handler. defaultPct applies
// when a code is created without a commission percentage.
func NewAffiliateHandler(svc *affiliate.Service, defaultPct decimal.Decimal) *AffiliateHandler {
	return &AffiliateHandler{
		registry:   svc.Registry,
		ledger:     svc.Ledger,
		reports:    svc.Reports,
		defaultPct: defaultPct,
		logger:     slog.Default().With("module", "handlers", "handler", "affiliate"),
	}
}

// CreateCodeRequest represents the request body for code creation
type CreateCodeRequest struct {
	OwnerID              string           `json:"owner_id" binding:"required,uuid"`
	CommissionPercentage *decimal.Decimal `json:"commission_percentage"`
	Code                 string           `json:"code"`
}

// SetActiveRequest toggles a code
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetCommissionRequest changes the live rate of a code
type SetCommissionRequest struct {
	CommissionPercentage *decimal.Decimal `json:"commission_percentage" binding:"required"`
}

// CreateCode provisions an affiliate code
func (h *AffiliateHandler) CreateCode(c *gin.Context) {
	var req CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pct := h.defaultPct
	if req.CommissionPercentage != nil {
		pct = *req.CommissionPercentage
	}

	code, err := h.registry.CreateCode(c.Request.Context(), affiliate.CreateCodeInput{
		OwnerID:              uuid.MustParse(req.OwnerID),
		CommissionPercentage: pct,
		Code:                 req.Code,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"affiliate_code": code})
}

// ListCodes lists codes, optionally for one owner
func (h *AffiliateHandler) ListCodes(c *gin.Context) {
	var ownerID *uuid.UUID
	if raw := strings.TrimSpace(c.Query("owner_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_id"})
			return
		}
		ownerID = &id
	}

	codes, err := h.registry.List(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_codes": codes, "count": len(codes)})
}

// GetCode returns a code with its current stats
func (h *AffiliateHandler) GetCode(c *gin.Context) {
	code, err := h.registry.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.reports.AffiliateStatsFor(c.Request.Context(), code.Code, affiliate.ReportFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_code": code, "stats": stats})
}

// SetActive enables or disables a code
func (h *AffiliateHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.registry.SetActive(c.Request.Context(), c.Param("code"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_code": code})
}

// SetCommission changes the rate applied to future commissions
func (h *AffiliateHandler) SetCommission(c *gin.Context) {
	var req SetCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code, err := h.registry.SetCommissionPercentage(c.Request.Context(), c.Param("code"), *req.CommissionPercentage)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"affiliate_code": code})
}

// ListCommissions lists commissions for operators
func (h *AffiliateHandler) ListCommissions(c *gin.Context) {
	filter := affiliate.CommissionFilter{
		AffiliateCode: c.Query("code"),
		Status:        models.CommissionStatus(strings.ToLower(c.Query("status"))),
	}
	switch filter.Status {
	case "", models.CommissionStatusPending, models.CommissionStatusPaid, models.CommissionStatusCancelled:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	if raw := strings.TrimSpace(c.Query("user_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		filter.UserID = &id
	}

	var err error
	if filter.From, err = queryTime(c, "from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Limit, err = queryInt(c, "limit", 100); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commissions": rows, "count": len(rows)})
}
