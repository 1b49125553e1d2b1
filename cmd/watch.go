package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/app"
	"github.com/JakeFAU/progress-tracker/internal/metrics"
	"github.com/JakeFAU/progress-tracker/internal/progressapi"
	"github.com/JakeFAU/progress-tracker/internal/render"
	"github.com/JakeFAU/progress-tracker/internal/tracker"
)

// ErrTrackingFailed is returned when tracking ended without the job finishing.
var ErrTrackingFailed = errors.New("progress tracking failed")

type watchOptions struct {
	mode  string
	start bool
}

// newWatchCmd creates the 'watch' subcommand.
func newWatchCmd() *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <subject>",
		Short: "Poll a subject's progress until the job finishes",
		Long: `Polls GET /api/progress/<subject> immediately and then on the configured
interval, rendering every step board. Polling stops when the server reports no
job, when every step is completed (after a short grace delay), on timeout, or
after too many consecutive failures; the server is then told to clean up. On
SIGINT/SIGTERM polling stops and the server is notified before exiting.`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app.App) error {
			return runWatch(cmd, args[0], opts, a)
		}),
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "render mode override: terminal, log or plain")
	cmd.Flags().BoolVar(&opts.start, "start", false, "ask the server to start a simulated job first")
	return cmd
}

func runWatch(cmd *cobra.Command, subject string, opts *watchOptions, a *app.App) error {
	cfg := a.Config()
	logger := a.Logger()

	client, err := progressapi.NewClient(cfg.API.BaseURL, progressapi.Options{
		RequestTimeout: time.Duration(cfg.API.RequestTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("init progress client: %w", err)
	}
	defer client.Close()

	mode := cfg.Render.Mode
	if opts.mode != "" {
		mode = opts.mode
	}
	renderer, err := render.New(mode, cmd.OutOrStdout(), subject, logger)
	if err != nil {
		return err
	}

	if opts.start {
		if err := client.Start(cmd.Context(), subject); err != nil {
			return fmt.Errorf("start simulated job: %w", err)
		}
	}

	ctrl, err := tracker.New(subject, client, renderer, cfg.TrackerConfig(),
		tracker.WithLogger(logger.Named("tracker")),
		tracker.WithEmitter(a.Events()),
		tracker.WithTracer(a.TracerProvider().Tracer("github.com/JakeFAU/progress-tracker/internal/tracker")),
		tracker.WithLifecycle(a.Hooks()),
	)
	if err != nil {
		return fmt.Errorf("init tracker: %w", err)
	}

	if cfg.Metrics.Enabled {
		stopMetrics := serveMetrics(cfg.Metrics.Port, logger)
		defer stopMetrics()
	}

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl.Start(cmd.Context())
	select {
	case <-ctrl.Done():
	case <-sigCtx.Done():
		logger.Info("interrupted, stopping progress tracking")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		a.Hooks().Teardown(ctx)
		cancel()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.Wait(waitCtx); err != nil {
		logger.Warn("cleanup notification did not finish", zap.Error(err))
	}

	switch reason := ctrl.Reason(); reason {
	case tracker.StopMaxRetries, tracker.StopTimeout:
		return fmt.Errorf("%w: %s", ErrTrackingFailed, reason)
	default:
		logger.Info("progress tracking finished", zap.String("reason", string(reason)))
		return nil
	}
}

// serveMetrics exposes /metrics on port until the returned func is called.
func serveMetrics(port int, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}
}
