package cli

import (
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-session-service/internal/config"
)

type options struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "authsvc",
		Short:         "Credential and session lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file seeded into the environment; existing variables win")
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newPurgeCommand())
	return cmd
}
