package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nklact/normaai/internal/core/domain"
	"github.com/nklact/normaai/internal/core/port"
	"github.com/nklact/normaai/internal/infra/billing"
	"github.com/nklact/normaai/internal/infra/config"
	"github.com/nklact/normaai/internal/infra/database"
	kafkainfra "github.com/nklact/normaai/internal/infra/kafka"
	"github.com/nklact/normaai/internal/infra/logger"
	redisinfra "github.com/nklact/normaai/internal/infra/redis"
	"github.com/nklact/normaai/internal/infra/security"
	postgresrepo "github.com/nklact/normaai/internal/repository/postgres"
	redisrepo "github.com/nklact/normaai/internal/repository/redis"
	"github.com/nklact/normaai/internal/transport/http/middleware"
	"github.com/nklact/normaai/internal/transport/http/routes"
	"github.com/nklact/normaai/internal/usecase"
	"github.com/nklact/normaai/internal/worker"
)

// localIssuerName identifies tokens minted by this service inside the
// verifier chain.
const localIssuerName = "norma-local"

type Application struct {
	cfg     *config.AppConfig
	engine  *gin.Engine
	logger  *zap.Logger
	pool    *pgxpool.Pool
	redis   *redisinfra.Client
	cleanup *worker.Cleanup
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	hasher := security.NewPasswordHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	validator := security.DefaultPasswordValidator()

	issuer := security.NewHS256Issuer(localIssuerName, cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)

	verifiers := make([]security.TokenVerifier, 0, 2)
	if cfg.JWT.ExternalSecret != "" {
		verifiers = append(verifiers, security.NewHS256Issuer("external", cfg.JWT.ExternalSecret, cfg.JWT.AccessTokenTTL))
	}
	verifiers = append(verifiers, issuer)
	chain := security.NewVerifierChain(verifiers...)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "norma:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	entitlementCache := redisrepo.NewEntitlementCache(redisClient.Client())

	sessionService := usecase.NewSessionService(repos.Sessions, eventPublisher, log, cfg.Sessions.MaxPerAccount, cfg.Sessions.TTL)

	entitlementService := usecase.NewEntitlementService(repos.Accounts, log).
		WithCache(entitlementCache, cfg.Redis.EntitlementTTL)

	lifecycleService := usecase.NewLifecycleService(repos.Accounts, sessionService, eventPublisher, log, cfg.Cleanup.AccountGrace).
		WithEntitlement(entitlementService)

	policy := domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(cfg.Sessions.DegradationPolicy))
	identityService := usecase.NewIdentityService(chain, localIssuerName, sessionService, policy, log).
		WithLifecycle(lifecycleService)

	trialService := usecase.NewTrialService(repos.Accounts, repos.Trials, eventPublisher, log, cfg.Trial.Messages, cfg.Trial.IPMaxCount)

	authService := usecase.NewAuthService(repos.Accounts, sessionService, repos.Tokens, hasher, validator, issuer, eventPublisher, log).
		WithLifecycle(lifecycleService).
		WithEntitlement(entitlementService)

	passwordResetService := usecase.NewPasswordResetService(repos.Accounts, repos.Tokens, sessionService, hasher, validator, log)

	billingClient := billing.NewClient(cfg.Billing, log)
	subscriptionService := usecase.NewSubscriptionService(repos.Accounts, billingClient, eventPublisher, log).
		WithEntitlement(entitlementService)

	cleanup := worker.NewCleanup(sessionService, passwordResetService, lifecycleService, entitlementService, log, cfg.Cleanup.Interval)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Database:    pool,
		Cache:       redisClient,
		Metrics:     httpMetrics,
		Services: routes.ServiceSet{
			Auth:          authService,
			Identity:      identityService,
			Trial:         trialService,
			Entitlement:   entitlementService,
			Lifecycle:     lifecycleService,
			Subscriptions: subscriptionService,
			PasswordReset: passwordResetService,
			Sessions:      sessionService,
		},
	})

	return &Application{
		cfg:     cfg,
		engine:  engine,
		logger:  log,
		pool:    pool,
		redis:   redisClient,
		cleanup: cleanup,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go a.cleanup.Run(workerCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting NormaAI API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		stopWorker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
