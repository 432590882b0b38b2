//go:build wireinject

package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-session-service/internal/app"
	"github.com/sandeepkv93/credential-session-service/internal/config"
	"github.com/sandeepkv93/credential-session-service/internal/http/handler"
	"github.com/sandeepkv93/credential-session-service/internal/http/router"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
	"github.com/sandeepkv93/credential-session-service/internal/security"
	"github.com/sandeepkv93/credential-session-service/internal/service"
)

var storeSet = wire.NewSet(provideDB, repository.NewStore)

var serviceSet = wire.NewSet(
	provideClock,
	provideJWTManager,
	provideHasher,
	provideSessionService,
	provideEmailTokenService,
	provideMailer,
	provideNotifier,
	service.NewAuthService,
	wire.Bind(new(service.PasswordHasher), new(*security.BcryptHasher)),
	wire.Bind(new(service.AccessTokenIssuer), new(*security.JWTManager)),
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
)

var httpSet = wire.NewSet(
	provideCookieConfig,
	handler.NewAuthHandler,
	provideReadiness,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*app.App, func(), error) {
	wire.Build(storeSet, provideRedis, serviceSet, httpSet, provideObservability, app.New)
	return nil, nil, nil
}

func InitializeDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	wire.Build(provideDB)
	return nil, nil, nil
}
