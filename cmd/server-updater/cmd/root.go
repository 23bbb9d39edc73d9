package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/logger"
	"github.com/oshokin/server-updater/internal/version"
)

var (
	// configPath to the configuration file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd represents the base command; every action is a subcommand.
	rootCmd = &cobra.Command{
		Use:   "server-updater",
		Short: "Keep server jars in sync with their upstream builds.",
		Long: `Resolves the latest build of a server distribution (PaperMC projects, Jenkins jobs),
compares it with the change token stored after the previous install and downloads
the artifact only when something changed. The target file is replaced atomically.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return applyLogLevel()
		},
	}
)

// Execute runs the server-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file (YAML or TOML)")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "", "log level: debug, info, warn, error (default from configuration)")
}

// signalContext returns a context canceled on SIGTERM and SIGINT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// applyLogLevel sets the global level from the flag or, failing that, from the settings file.
func applyLogLevel() error {
	level := logLevel
	if level == "" {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			// The command itself reports unreadable settings.
			return nil
		}

		level = cfg.LogLevel
	}

	if level == "" {
		return nil
	}

	return logger.Configure(level)
}
