package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-service/internal/di"
	"github.com/sandeepkv93/credential-session-service/internal/observability"
	"github.com/sandeepkv93/credential-session-service/internal/repository"
)

type purgeResult struct {
	Sessions    int64
	EmailTokens int64
}

func newPurgeCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete sessions and email tokens that expired before a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			cfg, _, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			db, cleanup, err := di.InitializeDatabase(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			before := time.Now().UTC().Add(-olderThan)
			res, err := purgeExpired(cmd.Context(), repository.NewStore(db), before)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged sessions=%d email_tokens=%d before=%s\n",
				res.Sessions, res.EmailTokens, before.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only purge rows that expired at least this long ago")
	return cmd
}

// purgeExpired removes expired rows in one transaction. Revoked but
// unexpired sessions are kept so reuse of their secrets is still detected.
func purgeExpired(ctx context.Context, store repository.Store, before time.Time) (purgeResult, error) {
	var res purgeResult
	err := store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		if res.Sessions, err = tx.Sessions().CleanupExpired(ctx, before); err != nil {
			return err
		}
		res.EmailTokens, err = tx.EmailTokens().CleanupExpired(ctx, before)
		return err
	})
	if err != nil {
		return purgeResult{}, fmt.Errorf("purge expired: %w", err)
	}
	observability.RecordPurgedRows(ctx, "session", res.Sessions)
	observability.RecordPurgedRows(ctx, "email_token", res.EmailTokens)
	slog.InfoContext(ctx, "expired credentials purged",
		"sessions", res.Sessions,
		"email_tokens", res.EmailTokens,
		"before", before,
	)
	return res, nil
}
