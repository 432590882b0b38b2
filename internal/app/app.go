package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/credential-session-service/internal/config"
	"github.com/sandeepkv93/credential-session-service/internal/health"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Readiness     *health.ProbeRunner

	ShutdownTimeout          time.Duration
	ShutdownHTTPDrainTimeout time.Duration
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner) *App {
	return &App{
		Config:                   cfg,
		Logger:                   logger,
		Server:                   server,
		Observability:            runtime,
		Readiness:                readiness,
		ShutdownTimeout:          cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout: cfg.ShutdownHTTPDrainTime,
	}
}

// Run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests and flushes telemetry within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server starting", "addr", a.Server.Addr, "env", a.Config.AppEnv)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})
	return g.Wait()
}

func (a *App) shutdown() error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	drain := a.ShutdownHTTPDrainTimeout
	if drain <= 0 || drain > timeout {
		drain = timeout
	}
	httpCtx, httpCancel := context.WithTimeout(ctx, drain)
	defer httpCancel()

	a.Logger.Info("http server shutting down")
	var errs []error
	if err := a.Server.Shutdown(httpCtx); err != nil {
		a.Logger.Error("http shutdown failed", "error", err)
		errs = append(errs, err)
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		a.Logger.Error("observability shutdown failed", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
