package cli

import (
	"github.com/spf13/cobra"

	"fintrack/internal/config"
	applog "fintrack/internal/log"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// app is the state the persistent pre-run prepares for subcommands.
type app struct {
	envFiles []string
	logLevel string

	logger *applog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     "fintrack",
		Short:   "Record income and expenses by chatting, and review them on a dashboard",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadEnvFile(a.envFiles...); err != nil {
				return err
			}
			level := a.logLevel
			if level == "" {
				level = config.Load().LogLevel
			}
			logger, err := SetupLogger(level)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "environment file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newSheetCommand(a))
	rootCmd.AddCommand(newSummaryCommand(a))
	rootCmd.AddCommand(newMirrorCommand(a))

	return rootCmd
}
