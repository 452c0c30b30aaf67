package routes

import (
	"github.com/fittrack/backend/internal/handlers"
	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Auth      *handlers.AuthHandler
	Referral  *handlers.ReferralHandler
	Affiliate *handlers.AffiliateHandler
	Payout    *handlers.PayoutHandler
	Report    *handlers.ReportHandler
	Webhook   *handlers.WebhookHandler
	Health    *handlers.HealthHandler
}

// Options carries the middleware dependencies of the route table
type Options struct {
	Issuer        *utils.TokenIssuer
	RateLimiter   *middleware.RateLimiter
	WebhookAPIKey string
}

// RegisterRoutes mounts the public, user, webhook and admin routes
func RegisterRoutes(router *gin.Engine, h Handlers, opts Options) {
	router.GET("/health", h.Health.Health)

	api := router.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(opts.RateLimiter.AuthRateLimiterMiddleware())
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
	}

	webhookGroup := api.Group("/webhooks")
	webhookGroup.Use(opts.RateLimiter.IPRateLimiterMiddleware(), middleware.WebhookAPIKeyMiddleware(opts.WebhookAPIKey))
	{
		webhookGroup.POST("/subscriptions", h.Webhook.SubscriptionWebhook)
	}

	userGroup := api.Group("")
	userGroup.Use(middleware.AuthMiddleware(opts.Issuer))
	{
		userGroup.POST("/referrals", opts.RateLimiter.IPRateLimiterMiddleware(), h.Referral.ApplyReferral)
		userGroup.GET("/referrals/me", h.Referral.GetMyReferral)
		userGroup.GET("/affiliate/dashboard", h.Referral.Dashboard)
	}

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AuthMiddleware(opts.Issuer), middleware.AdminMiddleware())
	{
		adminGroup.POST("/affiliate-codes", h.Affiliate.CreateCode)
		adminGroup.GET("/affiliate-codes", h.Affiliate.ListCodes)
		adminGroup.GET("/affiliate-codes/:code", h.Affiliate.GetCode)
		adminGroup.PATCH("/affiliate-codes/:code/active", h.Affiliate.SetActive)
		adminGroup.PATCH("/affiliate-codes/:code/commission", h.Affiliate.SetCommission)

		adminGroup.GET("/commissions", h.Affiliate.ListCommissions)

		adminGroup.POST("/payouts", h.Payout.Settle)
		adminGroup.GET("/payouts", h.Payout.ListBatches)

		adminGroup.GET("/reports/affiliates", h.Report.AffiliateReport)
		adminGroup.GET("/reports/affiliates.xlsx", h.Report.ExportAffiliateReport)
		adminGroup.GET("/reports/system", h.Report.SystemReport)
	}
}
