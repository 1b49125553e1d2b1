// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-tracker/internal/config"
	"github.com/JakeFAU/progress-tracker/internal/events"
	"github.com/JakeFAU/progress-tracker/internal/events/sinks"
	"github.com/JakeFAU/progress-tracker/internal/lifecycle"
	"github.com/JakeFAU/progress-tracker/internal/logging"
	"github.com/JakeFAU/progress-tracker/internal/telemetry"
)

// App holds the shared services built once at startup.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	hooks  *lifecycle.Hooks
	hub    *events.Hub
	tp     *sdktrace.TracerProvider
}

// Options override parts of the startup sequence, mostly for tests.
type Options struct {
	// ConfigPath is an optional YAML file layered over defaults and env.
	ConfigPath string
	// Logger replaces the logger built from configuration.
	Logger *zap.Logger
	// Registerer receives the tracker event metrics. Nil uses the default
	// Prometheus registry.
	Registerer prometheus.Registerer
}

// New loads configuration and builds the logger, tracer provider, teardown
// hooks and the lifecycle event hub. It fails fast if any of them cannot be
// initialized.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Options{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	promSink, err := sinks.NewPrometheusSink(registerer)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("init event metrics: %w", err)
	}
	hub := events.NewHub(
		[]events.Sink{sinks.NewLogSink(logger.Named("events")), promSink},
		events.WithHubLogger(logger.Named("events")),
	)

	logger.Debug("application services initialized",
		zap.String("api_base_url", cfg.API.BaseURL),
		zap.String("render_mode", cfg.Render.Mode),
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		hooks:  lifecycle.New(logger.Named("lifecycle")),
		hub:    hub,
		tp:     tp,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Hooks returns the process-wide teardown registrar.
func (a *App) Hooks() *lifecycle.Hooks {
	return a.hooks
}

// Events returns the lifecycle event emitter.
func (a *App) Events() events.Emitter {
	return a.hub
}

// TracerProvider returns the provider used for spans.
func (a *App) TracerProvider() *sdktrace.TracerProvider {
	return a.tp
}

// Close flushes events and spans. It does not fire teardown hooks: those mean
// the host was dismissed, which only the command handling signals can tell.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.hub.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close event hub: %w", err))
	}
	if err := a.tp.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
