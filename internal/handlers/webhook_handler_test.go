package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockReconciler is a mock implementation of ConversionReconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) OnConversionEvent(ctx context.Context, ev affiliate.ConversionEvent) (*affiliate.ConversionResult, error) {
	args := m.Called(ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*affiliate.ConversionResult), args.Error(1)
}

func setupWebhookRouter(reconciler ConversionReconciler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewWebhookHandler(reconciler)
	router.POST("/webhooks/subscriptions", middleware.WebhookAPIKeyMiddleware(testWebhookKey), handler.SubscriptionWebhook)
	return router
}

func postWebhook(router *gin.Engine, apiKey string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/subscriptions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set(middleware.WebhookAPIKeyHeader, apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookMapsEventTypes(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		eventType    string
		isConversion bool
	}{
		{"INITIAL_PURCHASE", true},
		{"renewal", true},
		{"uncancellation", true},
		{"product_change", true},
		{"cancellation", false},
		{"expiration", false},
		{"refund", false},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			reconciler := new(MockReconciler)
			router := setupWebhookRouter(reconciler)

			eventID := "evt_" + tt.eventType
			reconciler.On("OnConversionEvent", mock.MatchedBy(func(ev affiliate.ConversionEvent) bool {
				return ev.UserID == userID &&
					ev.SubscriptionEventID == eventID &&
					ev.IsConversion == tt.isConversion &&
					ev.GrossAmount.StringFixed(2) == "9.99"
			})).Return(&affiliate.ConversionResult{Outcome: affiliate.OutcomeCommissionCreated}, nil)

			w := postWebhook(router, testWebhookKey, gin.H{
				"event_id":     eventID,
				"event_type":   tt.eventType,
				"user_id":      userID.String(),
				"gross_amount": "9.99",
			})

			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
			reconciler.AssertExpectations(t)
		})
	}
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	reconciler := new(MockReconciler)
	router := setupWebhookRouter(reconciler)

	w := postWebhook(router, testWebhookKey, gin.H{
		"event_id":   "evt_1",
		"event_type": "billing_issue",
		"user_id":    uuid.NewString(),
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	reconciler.AssertNotCalled(t, "OnConversionEvent", mock.Anything)
}

func TestWebhookFailuresAskForRedelivery(t *testing.T) {
	reconciler := new(MockReconciler)
	router := setupWebhookRouter(reconciler)
	reconciler.On("OnConversionEvent", mock.Anything).Return(nil, errors.New("database unavailable"))

	w := postWebhook(router, testWebhookKey, gin.H{
		"event_id":     "evt_1",
		"event_type":   "purchase",
		"user_id":      uuid.NewString(),
		"gross_amount": 9.99,
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookRejectsMalformedInput(t *testing.T) {
	reconciler := new(MockReconciler)
	router := setupWebhookRouter(reconciler)
	reconciler.On("OnConversionEvent", mock.Anything).
		Return(nil, fmt.Errorf("%w: gross amount must not be negative", affiliate.ErrInvalidInput))

	w := postWebhook(router, testWebhookKey, gin.H{"event_type": "purchase"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postWebhook(router, testWebhookKey, gin.H{"event_id": "e", "event_type": "purchase", "user_id": "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postWebhook(router, testWebhookKey, gin.H{"event_id": "e", "event_type": "purchase", "user_id": uuid.NewString(), "gross_amount": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRequiresAPIKey(t *testing.T) {
	reconciler := new(MockReconciler)
	router := setupWebhookRouter(reconciler)
	payload := gin.H{"event_id": "e", "event_type": "purchase", "user_id": uuid.NewString()}

	assert.Equal(t, http.StatusUnauthorized, postWebhook(router, "", payload).Code)
	assert.Equal(t, http.StatusUnauthorized, postWebhook(router, "wrong", payload).Code)
	reconciler.AssertNotCalled(t, "OnConversionEvent", mock.Anything)
}

func TestWebhookEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.seedCode(t, "SUMMER25", "30")
	member := env.createUser(t, "Member", models.RoleUser)
	_, err := env.svc.Tracker.RegisterReferral(context.Background(), member.ID, "summer25")
	require.NoError(t, err)

	send := func(eventID, eventType string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(gin.H{
			"event_id":     eventID,
			"event_type":   eventType,
			"user_id":      member.ID.String(),
			"gross_amount": "9.99",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/subscriptions", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.WebhookAPIKeyHeader, testWebhookKey)
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, req)
		return w
	}

	w := send("tx_1", "initial_purchase")
	requireStatus(t, w, http.StatusOK)
	result := decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, string(affiliate.OutcomeCommissionCreated), result["outcome"])

	w = send("tx_1", "initial_purchase")
	requireStatus(t, w, http.StatusOK)
	result = decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, string(affiliate.OutcomeDuplicateEvent), result["outcome"])

	w = send("tx_cancel", "cancellation")
	requireStatus(t, w, http.StatusOK)
	result = decode(t, w)["result"].(map[string]interface{})
	assert.Equal(t, string(affiliate.OutcomeCancelled), result["outcome"])
	assert.EqualValues(t, 1, result["cancelled_count"])
}
