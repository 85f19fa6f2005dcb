package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
	"github.com/Sumatoshi-tech/rollgate/pkg/version"
)

// buildObservabilityConfig maps file configuration onto the telemetry
// bootstrap. The debug flag forces verbose logging and trace sampling on
// top of whatever the file configured.
func buildObservabilityConfig(cfg *config.Config, mode observability.AppMode, debug bool) (observability.Config, error) {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.PrometheusEnabled = cfg.Observability.DiagnosticsAddr != ""
	obsCfg.DebugTrace = cfg.Observability.DebugTrace
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.LogJSON = cfg.Observability.LogJSON

	level, levelErr := config.ParseLogLevel(cfg.Observability.LogLevel)
	if levelErr != nil {
		return observability.Config{}, levelErr
	}

	obsCfg.LogLevel = level

	if debug {
		obsCfg.LogLevel = slog.LevelDebug
		obsCfg.DebugTrace = true
	}

	return obsCfg, nil
}

// observabilityInitFunc is the telemetry bootstrap seam. Production
// commands pass observability.Init; tests inject a stub.
type observabilityInitFunc func(observability.Config) (observability.Providers, error)

// shutdownQuietly flushes telemetry at command exit. Export failures at
// that point are worth a warning, never a failed command.
func shutdownQuietly(providers observability.Providers) {
	shutdownErr := providers.Shutdown(context.Background())
	if shutdownErr != nil {
		providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}

// stateFileReady is the readiness probe for the diagnostics server: the
// state file must be readable or absent (a fresh install is ready).
func stateFileReady(path string) observability.ReadyCheck {
	return func(context.Context) error {
		_, statErr := os.Stat(path)
		if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
			return fmt.Errorf("state file: %w", statErr)
		}

		return nil
	}
}
