// Package config loads and validates rollgate configuration from file,
// environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/internal/pipeline"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
)

// Config is the top-level configuration struct for rollgate.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Paths         PathsConfig         `mapstructure:"paths"`
	Run           RunConfig           `mapstructure:"run"`
	Budget        BudgetConfig        `mapstructure:"budget"`
	Thresholds    rollout.Thresholds  `mapstructure:"thresholds"`
	Ladder        []int               `mapstructure:"ladder"`
	Backfill      BackfillConfig      `mapstructure:"backfill"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// PathsConfig holds the persisted file locations.
type PathsConfig struct {
	StateFile      string `mapstructure:"state_file"`
	MetricsFile    string `mapstructure:"metrics_file"`
	ArtifactsDir   string `mapstructure:"artifacts_dir"`
	PublishDir     string `mapstructure:"publish_dir"`
	CategoriesFile string `mapstructure:"categories_file"`
}

// RunConfig holds daily-run behavior.
type RunConfig struct {
	Mode       string `mapstructure:"mode"`
	Engine     string `mapstructure:"engine"`
	Tier       string `mapstructure:"tier"`
	MaxPublish int    `mapstructure:"max_publish"`
	Timezone   string `mapstructure:"timezone"`
}

// BudgetConfig holds the monthly spend ceiling.
type BudgetConfig struct {
	CeilingMinorUnits int64 `mapstructure:"ceiling_minor_units"`
}

// BackfillConfig holds historical replay settings.
type BackfillConfig struct {
	CheckpointFile string `mapstructure:"checkpoint_file"`
}

// ObservabilityConfig holds telemetry and diagnostics settings.
type ObservabilityConfig struct {
	OTLPEndpoint    string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders     string  `mapstructure:"otlp_headers"`
	OTLPInsecure    bool    `mapstructure:"otlp_insecure"`
	DebugTrace      bool    `mapstructure:"debug_trace"`
	SampleRatio     float64 `mapstructure:"sample_ratio"`
	Environment     string  `mapstructure:"environment"`
	LogLevel        string  `mapstructure:"log_level"`
	LogJSON         bool    `mapstructure:"log_json"`
	DiagnosticsAddr string  `mapstructure:"diagnostics_addr"`
}

// Sentinel errors for configuration validation.
var (
	// ErrMissingPath indicates a required file location is empty.
	ErrMissingPath = errors.New("path must not be empty")
	// ErrInvalidMaxPublish indicates the publish cap override is negative.
	ErrInvalidMaxPublish = errors.New("run.max_publish must be non-negative")
	// ErrInvalidTimezone indicates the run timezone is not a recognized IANA zone.
	ErrInvalidTimezone = errors.New("run.timezone is not a recognized IANA zone")
	// ErrInvalidCeiling indicates the budget ceiling is not positive.
	ErrInvalidCeiling = errors.New("budget.ceiling_minor_units must be positive")
	// ErrInvalidLogLevel indicates an unrecognized log severity name.
	ErrInvalidLogLevel = errors.New("observability.log_level must be one of debug, info, warn, error")
	// ErrInvalidSampleRatio indicates the trace sampling ratio is out of range.
	ErrInvalidSampleRatio = errors.New("observability.sample_ratio must be between 0 and 1")
)

// Validate checks Config invariants and returns the first error found.
// Enumerated fields (mode, engine, tier) reject unknown values with the
// owning package's sentinel.
func (c *Config) Validate() error {
	pathsErr := c.validatePaths()
	if pathsErr != nil {
		return pathsErr
	}

	runErr := c.validateRun()
	if runErr != nil {
		return runErr
	}

	rolloutErr := c.validateRollout()
	if rolloutErr != nil {
		return rolloutErr
	}

	return c.validateObservability()
}

func (c *Config) validatePaths() error {
	if c.Paths.StateFile == "" {
		return fmt.Errorf("%w: paths.state_file", ErrMissingPath)
	}

	if c.Paths.MetricsFile == "" {
		return fmt.Errorf("%w: paths.metrics_file", ErrMissingPath)
	}

	if c.Paths.ArtifactsDir == "" {
		return fmt.Errorf("%w: paths.artifacts_dir", ErrMissingPath)
	}

	if c.Paths.PublishDir == "" {
		return fmt.Errorf("%w: paths.publish_dir", ErrMissingPath)
	}

	if c.Backfill.CheckpointFile == "" {
		return fmt.Errorf("%w: backfill.checkpoint_file", ErrMissingPath)
	}

	return nil
}

func (c *Config) validateRun() error {
	_, modeErr := pipeline.ParseMode(c.Run.Mode)
	if modeErr != nil {
		return modeErr
	}

	_, kindErr := engine.ParseKind(c.Run.Engine)
	if kindErr != nil {
		return kindErr
	}

	_, tierErr := engine.ParseTier(c.Run.Tier)
	if tierErr != nil {
		return tierErr
	}

	if c.Run.MaxPublish < 0 {
		return ErrInvalidMaxPublish
	}

	_, tzErr := time.LoadLocation(c.Run.Timezone)
	if tzErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Run.Timezone)
	}

	return nil
}

func (c *Config) validateRollout() error {
	if c.Budget.CeilingMinorUnits <= 0 {
		return ErrInvalidCeiling
	}

	ladderErr := rollout.Ladder(c.Ladder).Validate()
	if ladderErr != nil {
		return fmt.Errorf("ladder: %w", ladderErr)
	}

	thresholdsErr := c.Thresholds.Validate()
	if thresholdsErr != nil {
		return fmt.Errorf("thresholds: %w", thresholdsErr)
	}

	return nil
}

func (c *Config) validateObservability() error {
	_, levelErr := ParseLogLevel(c.Observability.LogLevel)
	if levelErr != nil {
		return levelErr
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

// RolloutLadder returns the configured publish-limit ladder.
func (c *Config) RolloutLadder() rollout.Ladder {
	return rollout.Ladder(c.Ladder)
}

// ParseLogLevel maps a severity name onto an slog level. An empty name
// means info.
func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLogLevel, raw)
	}
}
