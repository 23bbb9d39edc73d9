package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/oshokin/server-updater/internal/service/runner"
)

var (
	// updateOptions collects the update command flags.
	updateOptions runner.Options
	// showProgress renders a progress bar for downloads.
	showProgress bool

	// updateCmd updates the configured targets or one ad-hoc project.
	updateCmd = &cobra.Command{
		Use:   "update [project]",
		Short: "Update the configured targets or a single project.",
		Long: `Updates every target from the configuration file, or only the project given as argument.

For each target the provider's change token is compared with the stored one:
an unchanged build is reported as UpToDate without downloading anything.
With --check-only a changed build is reported as OutOfDate and nothing is written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			options := updateOptions
			options.ConfigPath = explicitConfigPath(cmd)

			if len(args) > 0 {
				options.Project = args[0]
			}

			if showProgress {
				options.Progress = newProgressBar
			}

			results, err := runner.Run(ctx, &options)
			for _, result := range results {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					result.Target.Project, result.Target.Output, result.Outcome.Status)
			}

			return err
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	flags := updateCmd.Flags()
	flags.StringVarP(&updateOptions.Version, "version", "v", "", `requested version, "default" for the provider's latest`)
	flags.StringVarP(&updateOptions.Output, "output", "o", "", "target file of the project (default server.jar)")
	flags.StringVarP(&updateOptions.WorkingDirectory, "working-dir", "w", "", "directory for checksum files and the run lock")
	flags.StringVar(&updateOptions.ChecksumFile, "checksum-file", "", "change token file, relative to the working directory")
	flags.BoolVar(&updateOptions.CheckOnly, "check-only", false, "report OutOfDate instead of downloading")
	flags.BoolVarP(&showProgress, "progress", "p", false, "show a download progress bar")

	rootCmd.AddCommand(updateCmd)
}

// explicitConfigPath returns the config flag only when the user set it,
// so that a missing default file means "no configured targets".
func explicitConfigPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return configPath
	}

	return ""
}

// newProgressBar renders download progress on stderr.
func newProgressBar(total int64) io.Writer {
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}
