package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fittrack/backend/internal/database"
	"github.com/fittrack/backend/internal/database/migrations"
	"github.com/fittrack/backend/internal/lock"
	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/models"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/fittrack/backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookKey = "test-webhook-key"

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	svc    *affiliate.Service
	issuer *utils.TokenIssuer
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// newTestEnv mounts the handlers the way the route table does, without the
// rate limiter.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	svc := affiliate.NewService(db, lock.NewKeyedMutex(), affiliate.RegistryConfig{MaxAttempts: 3, SuffixLength: 2})
	issuer := utils.NewTokenIssuer("test-secret", time.Hour)

	auth := NewAuthHandler(db, svc.Tracker, issuer)
	referral := NewReferralHandler(svc.Tracker, svc.Reports)
	admin := NewAffiliateHandler(svc, decimal.NewFromInt(20))
	payout := NewPayoutHandler(svc.Payouts)
	report := NewReportHandler(svc.Reports)
	webhook := NewWebhookHandler(svc.Reconciler)

	router := gin.New()
	router.GET("/health", NewHealthHandler(db).Health)
	api := router.Group("/api/v1")
	api.POST("/auth/register", auth.Register)
	api.POST("/auth/login", auth.Login)
	api.POST("/webhooks/subscriptions", middleware.WebhookAPIKeyMiddleware(testWebhookKey), webhook.SubscriptionWebhook)

	user := api.Group("", middleware.AuthMiddleware(issuer))
	user.POST("/referrals", referral.ApplyReferral)
	user.GET("/referrals/me", referral.GetMyReferral)
	user.GET("/affiliate/dashboard", referral.Dashboard)

	adm := api.Group("/admin", middleware.AuthMiddleware(issuer), middleware.AdminMiddleware())
	adm.POST("/affiliate-codes", admin.CreateCode)
	adm.GET("/affiliate-codes", admin.ListCodes)
	adm.GET("/affiliate-codes/:code", admin.GetCode)
	adm.PATCH("/affiliate-codes/:code/active", admin.SetActive)
	adm.PATCH("/affiliate-codes/:code/commission", admin.SetCommission)
	adm.GET("/commissions", admin.ListCommissions)
	adm.POST("/payouts", payout.Settle)
	adm.GET("/payouts", payout.ListBatches)
	adm.GET("/reports/affiliates", report.AffiliateReport)
	adm.GET("/reports/affiliates.xlsx", report.ExportAffiliateReport)
	adm.GET("/reports/system", report.SystemReport)

	return &testEnv{router: router, db: db, svc: svc, issuer: issuer}
}

func (e *testEnv) createUser(t *testing.T, name string, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		DisplayName:  name,
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) token(t *testing.T, u *models.User) string {
	t.Helper()
	token, _, err := e.issuer.GenerateToken(u.ID, u.Email, string(u.Role))
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) seedCode(t *testing.T, code, pct string) *models.AffiliateCode {
	t.Helper()
	owner := e.createUser(t, "Owner", models.RoleUser)
	ac, err := e.svc.Registry.CreateCode(context.Background(), affiliate.CreateCodeInput{
		OwnerID:              owner.ID,
		CommissionPercentage: decimal.RequireFromString(pct),
		Code:                 code,
	})
	require.NoError(t, err)
	return ac
}

func (e *testEnv) convert(t *testing.T, userID uuid.UUID, eventID string) *models.Commission {
	t.Helper()
	res, err := e.svc.Reconciler.OnConversionEvent(context.Background(), affiliate.ConversionEvent{
		UserID:              userID,
		SubscriptionEventID: eventID,
		GrossAmount:         decimal.RequireFromString("10.00"),
		IsConversion:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Commission)
	return res.Commission
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
}
