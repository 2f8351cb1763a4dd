package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/infra/config"
	"github.com/nklact/normaai/internal/transport/http/handlers"
	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Identity      *usecase.IdentityService
	Trial         *usecase.TrialService
	Entitlement   *usecase.EntitlementService
	Lifecycle     *usecase.LifecycleService
	Subscriptions *usecase.SubscriptionService
	PasswordReset *usecase.PasswordResetService
	Sessions      *usecase.SessionService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
	Metrics     *middleware.HTTPMetrics
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Services.Identity)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		isDev := deps.Config.App.Env == "development"

		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Identity, handlers.WithDevMode(isDev))
		authHandler.RegisterRoutes(authGroup, buildLoginMiddlewares(deps), buildRegisterMiddlewares(deps))

		passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, isDev)
		authGroup.POST("/verify-email", passwordHandler.VerifyEmail)

		resetGroup := api.Group("/password/reset")
		resetGroup.POST("/request", passwordHandler.RequestReset)
		resetGroup.POST("/confirm", passwordHandler.ConfirmReset)

		trialGroup := api.Group("/trial")
		trialHandler := handlers.NewTrialHandler(deps.Services.Trial)
		trialHandler.RegisterRoutes(trialGroup, buildTrialMiddlewares(deps)...)

		accountGroup := api.Group("/account")
		accountGroup.Use(authMiddleware)
		accountHandler := handlers.NewAccountHandler(deps.Services.Entitlement, deps.Services.Lifecycle)
		accountHandler.RegisterRoutes(accountGroup)

		sessionGroup := api.Group("/sessions")
		sessionGroup.Use(authMiddleware)
		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(sessionGroup)

		subscriptionGroup := api.Group("/subscription")
		subscriptionGroup.Use(authMiddleware)
		subscriptionHandler := handlers.NewSubscriptionHandler(deps.Services.Subscriptions)
		subscriptionHandler.RegisterRoutes(subscriptionGroup)

		webhookHandler := handlers.NewWebhookHandler(deps.Services.Subscriptions, deps.Config.Billing.WebhookSecret, deps.Logger)
		api.POST("/webhook/revenuecat", webhookHandler.HandleProviderEvent)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildIPRateLimit(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts)
}

func buildRegisterMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildIPRateLimit(deps, "auth_register_ip", deps.Config.RateLimit.RegisterMaxAttempts)
}

func buildTrialMiddlewares(deps Dependencies) []gin.HandlerFunc {
	return buildIPRateLimit(deps, "trial_start_ip", deps.Config.RateLimit.TrialMaxAttempts)
}

func buildIPRateLimit(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
