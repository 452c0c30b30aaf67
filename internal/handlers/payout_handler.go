package handlers

import (
	"net/http"
	"time"

	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler settles commission batches
type PayoutHandler struct {
	payouts *affiliate.PayoutProcessor
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(payouts *affiliate.PayoutProcessor) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// SettleRequest represents the request body for a payout run
type SettleRequest struct {
	CommissionIDs []string   `json:"commission_ids" binding:"required,min=1,dive,uuid"`
	PaymentMethod string     `json:"payment_method" binding:"required"`
	Reference     string     `json:"reference"`
	Note          string     `json:"note"`
	PaidAt        *time.Time `json:"paid_at"`
	PeriodStart   *time.Time `json:"period_start"`
	PeriodEnd     *time.Time `json:"period_end"`
}

// Settle marks the listed commissions paid and reports what actually moved
func (h *PayoutHandler) Settle(c *gin.Context) {
	var req SettleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids := make([]uuid.UUID, 0, len(req.CommissionIDs))
	for _, raw := range req.CommissionIDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	settle := affiliate.SettleRequest{
		CommissionIDs: ids,
		PaymentMethod: req.PaymentMethod,
		Reference:     req.Reference,
		Note:          req.Note,
		PeriodStart:   req.PeriodStart,
		PeriodEnd:     req.PeriodEnd,
	}
	if req.PaidAt != nil {
		settle.PaidAt = *req.PaidAt
	}
	if actor, ok := middleware.CurrentUserID(c); ok {
		settle.ActorID = &actor
	}

	result, err := h.payouts.Settle(c.Request.Context(), settle)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListBatches returns recent payout batches
func (h *PayoutHandler) ListBatches(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	batches, err := h.payouts.ListBatches(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "count": len(batches)})
}
