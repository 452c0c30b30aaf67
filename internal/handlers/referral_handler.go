package handlers

import (
	"net/http"

	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
)

// ReferralHandler serves the signed-in user's own referral and affiliate data
type ReferralHandler struct {
	tracker *affiliate.Tracker
	reports *affiliate.Reporter
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(tracker *affiliate.Tracker, reports *affiliate.Reporter) *ReferralHandler {
	return &ReferralHandler{tracker: tracker, reports: reports}
}

// ApplyReferralRequest attaches a code to an account created without one
type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// ApplyReferral registers a referral for the caller. Unlike signup, errors are
// returned so the app can tell the user the code was not accepted.
func (h *ReferralHandler) ApplyReferral(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.tracker.RegisterReferral(c.Request.Context(), userID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referral": ref})
}

// GetMyReferral returns the caller's referral, null when they were not referred
func (h *ReferralHandler) GetMyReferral(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ref, err := h.tracker.GetReferral(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"referral": ref})
}

// Dashboard returns stats for every code the caller owns
func (h *ReferralHandler) Dashboard(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	filter, err := reportFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dash, err := h.reports.OwnerDashboard(c.Request.Context(), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dash)
}
