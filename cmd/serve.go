package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/api"
	"github.com/JakeFAU/progress-tracker/internal/app"
	"github.com/JakeFAU/progress-tracker/internal/metrics"
	"github.com/JakeFAU/progress-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/progress-tracker/internal/progressboard"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local progress service with simulated jobs",
		Long: `Serves the progress query and stop endpoints from an in-memory step board.
POST /api/progress/start/<subject> begins a simulated five-step job that
advances every server.step_interval_ms.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, _ []string, a *app.App) error {
			if port <= 0 {
				port = a.Config().Server.Port
			}
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, ln, a)
		}),
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to server.port)")
	return cmd
}

// runServe serves the progress API on ln until ctx is done.
func runServe(ctx context.Context, ln net.Listener, a *app.App) error {
	logger := a.Logger()
	metrics.Init()

	board := progressboard.New()
	sim, err := progressboard.NewSimulator(board, a.Config().StepInterval(),
		progressboard.WithLogger(logger.Named("simulator")))
	if err != nil {
		return fmt.Errorf("init simulator: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.Config().Server.RateLimitRPS,
		Burst: a.Config().Server.RateLimitBurst,
	})
	apiServer := api.NewServer(board, sim, logger.Named("api"), api.WithRateLimit(limiter))

	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
