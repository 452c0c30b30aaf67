package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fittrack/backend/internal/config"
	"github.com/fittrack/backend/internal/database"
	"github.com/fittrack/backend/internal/handlers"
	"github.com/fittrack/backend/internal/lock"
	"github.com/fittrack/backend/internal/middleware"
	"github.com/fittrack/backend/internal/routes"
	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/fittrack/backend/internal/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	// Initialize configuration
	cfg := config.LoadConfig()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database)
	if err != nil {
		slog.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Reconciler locks go through Redis when several instances share the store
	locker, redisClient := newLocker(cfg)

	defaultPct, err := decimal.NewFromString(cfg.Affiliate.DefaultCommissionPercentage)
	if err != nil {
		slog.Error("invalid default commission percentage", "value", cfg.Affiliate.DefaultCommissionPercentage, "error", err)
		os.Exit(1)
	}

	// Initialize services
	svc := affiliate.NewService(db, locker, affiliate.RegistryConfig{
		MaxAttempts:  cfg.Affiliate.CodeMaxAttempts,
		SuffixLength: cfg.Affiliate.CodeSuffixLength,
	})
	issuer := utils.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Expiration)
	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.AuthRequestsPerMinute,
		cfg.RateLimit.Burst,
		cfg.RateLimit.AuthBurst,
	)
	if cfg.Webhook.APIKey == "" {
		slog.Warn("WEBHOOK_API_KEY is not set, subscription webhooks will be rejected")
	}

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.SecureHeadersMiddleware(middleware.DefaultSecureHeadersConfig(cfg.IsProduction())))

	// Setup routes
	routes.RegisterRoutes(router, routes.Handlers{
		Auth:      handlers.NewAuthHandler(db, svc.Tracker, issuer),
		Referral:  handlers.NewReferralHandler(svc.Tracker, svc.Reports),
		Affiliate: handlers.NewAffiliateHandler(svc, defaultPct),
		Payout:    handlers.NewPayoutHandler(svc.Payouts),
		Report:    handlers.NewReportHandler(svc.Reports),
		Webhook:   handlers.NewWebhookHandler(svc.Reconciler),
		Health:    handlers.NewHealthHandler(db),
	}, routes.Options{
		Issuer:        issuer,
		RateLimiter:   rateLimiter,
		WebhookAPIKey: cfg.Webhook.APIKey,
	})

	// Start server
	srv := startServer(router, cfg.Server)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	rateLimiter.Stop()
	if redisClient != nil {
		redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	slog.Info("server exiting")
}

// newLocker returns a Redis-backed locker when REDIS_URL is set and reachable,
// otherwise an in-process one
func newLocker(cfg *config.Config) (lock.Locker, *redis.Client) {
	if cfg.Redis.URL == "" {
		slog.Info("REDIS_URL not set, using in-process reconciler locks")
		return lock.NewKeyedMutex(), nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.Warn("invalid REDIS_URL, using in-process reconciler locks", "error", err)
		return lock.NewKeyedMutex(), nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, using in-process reconciler locks", "error", err)
		client.Close()
		return lock.NewKeyedMutex(), nil
	}

	return lock.NewRedisLocker(client, "fittrack:lock:", cfg.Affiliate.LockTTL, cfg.Affiliate.LockRetryInterval), client
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	return srv
}
