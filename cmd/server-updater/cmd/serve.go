package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/server-updater/internal/service/watcher"
)

var (
	// serveInterval overrides the configured delay between rounds.
	serveInterval time.Duration

	// serveCmd runs the watch daemon.
	serveCmd = &cobra.Command{
		Use:   "serve [listen-address]",
		Short: "Update the configured targets periodically and serve their health over gRPC.",
		Long: `Runs an update round over every configured target immediately and then on every interval.

The outcome of the latest round is published through the standard gRPC health service:
the empty service name reports the daemon, each lower-cased project name reports its target.
Listen address can be provided as argument to override config (e.g., 127.0.0.1:50051).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			return watcher.Run(ctx, &watcher.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
				Interval:      serveInterval,
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	serveCmd.Flags().DurationVarP(&serveInterval, "interval", "i", 0, "delay between update rounds (default from configuration)")

	rootCmd.AddCommand(serveCmd)
}
