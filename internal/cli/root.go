// Package cli implements the ccdash command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/briangreenhill/ccdash/internal/app"
	"github.com/briangreenhill/ccdash/internal/collector"
	"github.com/briangreenhill/ccdash/internal/config"
	"github.com/briangreenhill/ccdash/internal/logging"
)

func Execute(version string) error {
	return newRootCmd(version).Execute()
}

type rootOptions struct {
	format string
}

func newRootCmd(version string) *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "ccdash",
		Short:         "Fetch and inspect cached contact-center snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(opts.format)
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "table", "Output format: table, json or yaml")

	cmd.AddCommand(
		newFetchCmd(&opts),
		newStatusCmd(&opts),
		newClearCmd(),
		newVersionCmd(version),
	)
	return cmd
}

// build loads configuration from the environment and wires the app. Logs go
// to stderr so stdout stays machine-readable.
func build(cmd *cobra.Command, onProgress collector.ProgressFunc) (context.Context, *app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	ctx := logger.WithContext(cmd.Context())

	a, err := app.Build(ctx, cfg, app.Options{OnProgress: onProgress})
	if err != nil {
		return nil, nil, err
	}
	return ctx, a, nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := io.WriteString(cmd.OutOrStdout(), "ccdash "+version+"\n")
			return err
		},
	}
}
