package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sandeepkv93/credential-session-service/internal/config"
	"github.com/sandeepkv93/credential-session-service/internal/database"
	"github.com/sandeepkv93/credential-session-service/internal/di"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
)

func newServeCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, proc, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			if migrate {
				if err := migrateDatabase(ctx, cfg); err != nil {
					return err
				}
			}

			a, cleanup, err := di.InitializeApp(ctx, cfg, proc.logger, proc.provider)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply database migrations before serving")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			return migrateDatabase(cmd.Context(), cfg)
		},
	}
}

type processLogger struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

// bootstrap loads configuration and installs the process logger as the
// slog default.
func bootstrap(ctx context.Context) (*config.Config, processLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, processLogger{}, err
	}
	logger, lp, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return nil, processLogger{}, fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger)
	return cfg, processLogger{logger: logger, provider: lp}, nil
}

func migrateDatabase(ctx context.Context, cfg *config.Config) error {
	db, cleanup, err := di.InitializeDatabase(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return database.Migrate(ctx, db, cfg.DBDriver)
}
