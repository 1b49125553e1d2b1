// Package config loads and validates progress-tracker configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/progress-tracker/internal/render"
	"github.com/JakeFAU/progress-tracker/internal/tracker"
)

// EnvPrefix namespaces environment overrides, e.g. TRACKER_API_BASE_URL.
const EnvPrefix = "TRACKER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	API       APIConfig       `mapstructure:"api"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Render    RenderConfig    `mapstructure:"render"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TrackerConfig governs the poll controller.
type TrackerConfig struct {
	MaxRetries     int    `mapstructure:"max_retries"`
	PollIntervalMs int    `mapstructure:"poll_interval_ms"`
	TimeoutMs      int    `mapstructure:"timeout_ms"`
	GraceDelayMs   int    `mapstructure:"grace_delay_ms"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int    `mapstructure:"backoff_max_ms"`
	ErrorMessage   string `mapstructure:"error_message"`
}

// APIConfig points the client at the progress service.
type APIConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	CleanupTimeoutMs int    `mapstructure:"cleanup_timeout_ms"`
}

// ServerConfig controls the local progress service.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	StepIntervalMs int `mapstructure:"step_interval_ms"`
	// RateLimitRPS throttles progress queries per subject; 0 disables it.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// MetricsConfig toggles the Prometheus endpoint of the watch command.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RenderConfig selects how snapshots are displayed.
type RenderConfig struct {
	Mode string `mapstructure:"mode"`
}

// TelemetryConfig configures OpenTelemetry tracing. An empty endpoint keeps
// spans in-process.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tracker.max_retries", tracker.DefaultMaxRetries)
	v.SetDefault("tracker.poll_interval_ms", tracker.DefaultPollInterval.Milliseconds())
	v.SetDefault("tracker.timeout_ms", tracker.DefaultTimeout.Milliseconds())
	v.SetDefault("tracker.grace_delay_ms", tracker.DefaultGraceDelay.Milliseconds())
	v.SetDefault("tracker.backoff_base_ms", tracker.DefaultBackoffBase.Milliseconds())
	v.SetDefault("tracker.backoff_max_ms", tracker.DefaultBackoffMax.Milliseconds())
	v.SetDefault("tracker.error_message", tracker.DefaultErrorMessage)
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.request_timeout_ms", tracker.DefaultRequestTimeout.Milliseconds())
	v.SetDefault("api.cleanup_timeout_ms", tracker.DefaultCleanupTimeout.Milliseconds())
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.step_interval_ms", 1500)
	v.SetDefault("server.rate_limit_rps", 0)
	v.SetDefault("server.rate_limit_burst", 5)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("render.mode", render.ModeTerminal)
	v.SetDefault("telemetry.service_name", "progress-tracker")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Tracker.MaxRetries <= 0 {
		return fmt.Errorf("tracker.max_retries must be > 0")
	}
	if c.Tracker.PollIntervalMs <= 0 {
		return fmt.Errorf("tracker.poll_interval_ms must be > 0")
	}
	if c.Tracker.TimeoutMs <= 0 {
		return fmt.Errorf("tracker.timeout_ms must be > 0")
	}
	if c.Tracker.BackoffBaseMs <= 0 || c.Tracker.BackoffMaxMs < c.Tracker.BackoffBaseMs {
		return fmt.Errorf("tracker.backoff_max_ms must be >= tracker.backoff_base_ms > 0")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.StepIntervalMs <= 0 {
		return fmt.Errorf("server.step_interval_ms must be > 0")
	}
	if c.Server.RateLimitRPS < 0 {
		return fmt.Errorf("server.rate_limit_rps must be >= 0")
	}
	if c.Metrics.Enabled && c.Metrics.Port <= 0 {
		return fmt.Errorf("metrics.port must be > 0 when metrics are enabled")
	}
	switch c.Render.Mode {
	case render.ModeTerminal, render.ModeLog, render.ModePlain:
	default:
		return fmt.Errorf("render.mode must be one of terminal, log, plain")
	}
	return nil
}

// TrackerConfig converts the tracker and api sections into controller settings.
func (c Config) TrackerConfig() tracker.Config {
	return tracker.Config{
		MaxRetries:     c.Tracker.MaxRetries,
		PollInterval:   ms(c.Tracker.PollIntervalMs),
		Timeout:        ms(c.Tracker.TimeoutMs),
		RequestTimeout: ms(c.API.RequestTimeoutMs),
		GraceDelay:     ms(c.Tracker.GraceDelayMs),
		BackoffBase:    ms(c.Tracker.BackoffBaseMs),
		BackoffMax:     ms(c.Tracker.BackoffMaxMs),
		CleanupTimeout: ms(c.API.CleanupTimeoutMs),
		ErrorMessage:   c.Tracker.ErrorMessage,
	}
}

// StepInterval is the simulator's step duration.
func (c Config) StepInterval() time.Duration {
	return ms(c.Server.StepIntervalMs)
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
