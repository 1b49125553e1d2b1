// Package cmd defines and implements the CLI commands for the progress-tracker
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/progress-tracker/internal/app"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can swap in
// an App built with a private Prometheus registry.
var newApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	return app.New(ctx, app.Options{ConfigPath: cfgPath})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "progress-tracker",
		Short: "Follow a server-side job's progress from the terminal.",
		Long: `progress-tracker polls a progress service for one subject, renders each
step board as it changes, and tells the server to clean up when the job
finishes, times out, or the process is interrupted.

The serve command runs a local progress service with simulated jobs.`,
		SilenceUsage: true,

		// Build the application after flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); TRACKER_* env vars override it")

	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp resolves the App for a subcommand and always closes it afterwards,
// including when the command fails, so events and spans are flushed.
func withApp(run func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			err = errors.Join(err, appInstance.Close(ctx))
		}()
		return run(cmd, args, appInstance)
	}
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "progress-tracker: %v\n", err)
		os.Exit(1)
	}
}
