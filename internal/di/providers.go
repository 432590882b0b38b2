package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-session-service/internal/config"
	"github.com/sandeepkv93/credential-session-service/internal/database"
	"github.com/sandeepkv93/credential-session-service/internal/health"
	"github.com/sandeepkv93/credential-session-service/internal/http/handler"
	"github.com/sandeepkv93/credential-session-service/internal/http/middleware"
	"github.com/sandeepkv93/credential-session-service/internal/http/router"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"
	"github.com/sandeepkv93/credential-session-service/internal/service"
)

const rateLimitKeyPrefix = "rl"

func provideDB(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = database.Close(db) }, nil
}

// provideRedis returns a nil client when redis is disabled; every consumer
// checks for that and falls back to its in-process variant.
func provideRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, func(), error) {
	if !cfg.RedisEnabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func provideClock() service.Clock { return service.SystemClock() }

func provideJWTManager(cfg *config.Config) (*security.JWTManager, error) {
	return security.NewJWTManager(security.SigningConfig{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Secret:   []byte(cfg.JWTAccessSecret),
		TTL:      cfg.AccessTokenTTL,
	})
}

func provideHasher(cfg *config.Config) *security.BcryptHasher {
	return security.NewBcryptHasher(cfg.PasswordBcryptCost)
}

func provideSessionService(store repository.Store, cfg *config.Config, now service.Clock, logger *slog.Logger) *service.SessionService {
	return service.NewSessionService(store, cfg.RefreshTokenTTL, now, logger)
}

func provideEmailTokenService(store repository.Store, cfg *config.Config, now service.Clock) *service.EmailTokenService {
	return service.NewEmailTokenService(store, service.EmailTokenPolicy{
		VerifyTTL:   cfg.VerifyTokenTTL,
		ResetTTL:    cfg.ResetTokenTTL,
		ResetWindow: cfg.ResetRateLimitWindow,
	}, now)
}

func provideMailer(cfg *config.Config, emailTokens *service.EmailTokenService) *service.Mailer {
	return service.NewMailer(cfg.FrontendURL, emailTokens.Policy())
}

func provideNotifier(cfg *config.Config, client redis.UniversalClient, now service.Clock, logger *slog.Logger) (service.Notifier, error) {
	switch cfg.MailTransport {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("mail transport redis requires REDIS_ENABLED=true")
		}
		return service.NewRedisStreamNotifier(client, cfg.MailStream, cfg.MailFrom, now), nil
	default:
		return service.NewLogNotifier(cfg.MailFrom, logger), nil
	}
}

// provideCookieConfig ties the cookie lifetime to the session lifetime the
// service actually applies, including its default when the TTL is unset.
func provideCookieConfig(cfg *config.Config, sessions *service.SessionService) security.CookieConfig {
	return security.CookieConfig{
		Name:     cfg.RefreshCookieName,
		Path:     cfg.RefreshCookiePath,
		Secure:   cfg.IsProduction(),
		SameSite: cfg.CookieSameSite(),
		MaxAge:   sessions.TTL(),
	}
}

func provideReadiness(db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.NewRedisChecker(client))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func provideRouterDependencies(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	jwtMgr *security.JWTManager,
	readiness *health.ProbeRunner,
	client redis.UniversalClient,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:                authHandler,
		TokenVerifier:              jwtMgr,
		CORSOrigins:                cfg.CORSOrigins,
		AuthRateLimitRPM:           cfg.AuthRateLimitRPM,
		PasswordForgotRateLimitRPM: cfg.PasswordForgotRateLimitRPM,
		APIRateLimitRPM:            cfg.APIRateLimitRPM,
		Readiness:                  readiness,
		EnableOTelHTTP:             cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
		TrustProxyHeaders:          cfg.TrustProxyHeaders,
	}
	if cfg.RateLimitBackend == "redis" && client != nil {
		limiter := middleware.NewRedisFixedWindowLimiter(client, rateLimitKeyPrefix)
		mode := middleware.FailureMode(cfg.RateLimitFailureMode)
		dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.APIRateLimitRPM, time.Minute, mode, "api").Middleware()
		dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitRPM, time.Minute, mode, "auth").Middleware()
		dep.ForgotRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.PasswordForgotRateLimitRPM, time.Minute, mode, "forgot").Middleware()
	}
	return dep
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// provideObservability carries the log provider created before wiring so
// App.Run flushes it together with metrics and traces.
func provideObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}
