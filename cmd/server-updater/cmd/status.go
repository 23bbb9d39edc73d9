package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/oshokin/server-updater/internal/api/grpc/health"
	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/service/common"
)

var (
	// statusAddress overrides the configured daemon address.
	statusAddress string
	// statusTimeout bounds the health call.
	statusTimeout time.Duration

	// statusCmd queries the watch daemon.
	statusCmd = &cobra.Command{
		Use:   "status [project [output]]",
		Short: "Query the health of the watch daemon or of one of its targets.",
		Long: `Without arguments reports the daemon itself. With a project reports the worst status
of the project's targets; adding the output file narrows it to a single target.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			address := statusAddress
			if address == "" {
				cfg, err := config.LoadOrDefault(configPath)
				if err != nil {
					return err
				}

				address = cfg.Serve.ListenAddress
			}

			service := statusService(args)

			client, err := common.Dial(ctx, address, common.WithCallTimeout(statusTimeout))
			if err != nil {
				return err
			}

			defer func() {
				_ = client.Close()
			}()

			resp, err := client.Check(ctx, service)
			if err != nil {
				return err
			}

			data, err := protojson.MarshalOptions{EmitUnpopulated: true}.Marshal(resp)
			if err != nil {
				return fmt.Errorf("encode health response: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return nil
		},
	}
)

// statusService maps the command arguments to the health service name the daemon publishes.
func statusService(args []string) string {
	switch len(args) {
	case 0:
		return ""
	case 1:
		return health.ServiceName(args[0])
	default:
		return health.TargetServiceName(args[0], args[1])
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	statusCmd.Flags().StringVarP(&statusAddress, "address", "a", "", "daemon address (default from configuration)")
	statusCmd.Flags().DurationVarP(&statusTimeout, "timeout", "t", config.DefaultTimeout, "health call timeout")

	rootCmd.AddCommand(statusCmd)
}
