package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/server-updater/internal/config"
	"github.com/oshokin/server-updater/internal/provider/catalog"
)

// providersCmd lists the registered provider names.
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the project names that can be updated.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}

		registry, err := catalog.NewRegistry(cfg.Jenkins)
		if err != nil {
			return err
		}

		for _, name := range registry.Names() {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
		}

		return nil
	},
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.AddCommand(providersCmd)
}
