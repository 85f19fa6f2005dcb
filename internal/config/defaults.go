package config

import (
	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
)

// Default values applied when neither the config file nor the environment
// sets a key.
const (
	// DefaultStateFile is the rollout state document location.
	DefaultStateFile = "rollout_state.json"
	// DefaultMetricsFile is the daily metrics journal location.
	DefaultMetricsFile = "daily_metrics.jsonl"
	// DefaultArtifactsDir is where run artifacts are archived.
	DefaultArtifactsDir = "artifacts"
	// DefaultPublishDir is the public site root production deploys write to.
	DefaultPublishDir = "public"
	// DefaultCheckpointFile is the backfill resume checkpoint location.
	DefaultCheckpointFile = "backfill_checkpoint.json"

	// DefaultMode runs the full pipeline with persistence.
	DefaultMode = "production"
	// DefaultEngine prefers the premium generator.
	DefaultEngine = "premium"
	// DefaultTier selects the balanced generation tier.
	DefaultTier = "balanced"
	// DefaultTimezone anchors the run date calendar.
	DefaultTimezone = "Asia/Seoul"

	// DefaultLogLevel is the minimum emitted log severity.
	DefaultLogLevel = "info"
)

// Default returns a Config populated with every default value. The loader
// registers the same values with viper so environment overrides bind; this
// constructor serves callers that skip the loader entirely.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			StateFile:    DefaultStateFile,
			MetricsFile:  DefaultMetricsFile,
			ArtifactsDir: DefaultArtifactsDir,
			PublishDir:   DefaultPublishDir,
		},
		Run: RunConfig{
			Mode:     DefaultMode,
			Engine:   DefaultEngine,
			Tier:     DefaultTier,
			Timezone: DefaultTimezone,
		},
		Budget: BudgetConfig{
			CeilingMinorUnits: budget.DefaultCeilingMinorUnits,
		},
		Thresholds: rollout.DefaultThresholds(),
		Ladder:     append([]int(nil), rollout.DefaultLadder()...),
		Backfill: BackfillConfig{
			CheckpointFile: DefaultCheckpointFile,
		},
		Observability: ObservabilityConfig{
			LogLevel: DefaultLogLevel,
		},
	}
}
