package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConversionReconciler applies conversion events
type ConversionReconciler interface {
	OnConversionEvent(ctx context.Context, ev affiliate.ConversionEvent) (*affiliate.ConversionResult, error)
}

var (
	conversionEvents = map[string]bool{
		"initial_purchase": true,
		"purchase":         true,
		"renewal":          true,
		"uncancellation":   true,
		"product_change":   true,
	}
	cancellationEvents = map[string]bool{
		"cancellation": true,
		"expiration":   true,
		"refund":       true,
	}
)

// WebhookHandler receives subscription events from the payment provider relay.
// Authentication happens in middleware before the handler runs.
type WebhookHandler struct {
	reconciler ConversionReconciler
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler ConversionReconciler) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     slog.Default().With("module", "handlers", "handler", "webhook"),
	}
}

// SubscriptionEvent is the webhook payload. EventID must be unique per billable
// event; renewals carry their own id.
type SubscriptionEvent struct {
	EventID     string          `json:"event_id" binding:"required"`
	EventType   string          `json:"event_type" binding:"required"`
	UserID      string          `json:"user_id" binding:"required"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
}

// SubscriptionWebhook maps the provider event onto a conversion or a
// cancellation. Failures answer 5xx so the provider redelivers.
func (h *WebhookHandler) SubscriptionWebhook(c *gin.Context) {
	var payload SubscriptionEvent
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
		return
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	eventType := strings.ToLower(strings.TrimSpace(payload.EventType))
	var isConversion bool
	switch {
	case conversionEvents[eventType]:
		isConversion = true
	case cancellationEvents[eventType]:
		isConversion = false
	default:
		h.logger.Info("webhook event ignored", "event_id", payload.EventID, "event_type", eventType)
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event_id": payload.EventID})
		return
	}

	result, err := h.reconciler.OnConversionEvent(c.Request.Context(), affiliate.ConversionEvent{
		UserID:              userID,
		SubscriptionEventID: payload.EventID,
		GrossAmount:         payload.GrossAmount,
		IsConversion:        isConversion,
	})
	if err != nil {
		if errors.Is(err, affiliate.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("webhook processing failed",
			"event_id", payload.EventID,
			"event_type", eventType,
			"user_id", userID,
			"error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed, retry later"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "processed",
		"event_id": payload.EventID,
		"result":   result,
	})
}
