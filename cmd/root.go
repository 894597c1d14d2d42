// Package cmd defines the CLI commands for the snapvault executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapvault/snapvault/internal/app"
	"github.com/snapvault/snapvault/internal/config"
)

var cfgFile string

// appKey is the context key under which the service container travels from
// the root command to subcommands.
type appKey struct{}

// newRootCmd creates and configures the root command. The service container
// is built in PersistentPreRunE so every subcommand finds it in the context,
// and torn down in PersistentPostRun.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapvault",
		Short: "Fault-tolerant bulk web page screenshot capture.",
		Long: `snapvault renders batches of web pages in headless Chrome, stores each
screenshot, and bundles every batch into a downloadable zip archive. Failed
pages are retried with growing timeouts; a circuit breaker aborts jobs whose
render backend keeps failing.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			application, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, application))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey{}).(*app.App); ok && a != nil {
				a.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCaptureCmd())

	return cmd
}

// resolveApp pulls the service container out of the command context.
func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey{}).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
