package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
)

// configName is the config file name without extension.
const configName = ".rollgate"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for rollgate settings.
const envPrefix = "ROLLGATE"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// LoadConfig loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// Missing config file is not an error; defaults are used.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// applyDefaults registers every key with viper. AutomaticEnv only binds
// environment variables for keys viper already knows about, so every key
// needs a default even when the zero value would do.
func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("paths.state_file", DefaultStateFile)
	viperCfg.SetDefault("paths.metrics_file", DefaultMetricsFile)
	viperCfg.SetDefault("paths.artifacts_dir", DefaultArtifactsDir)
	viperCfg.SetDefault("paths.publish_dir", DefaultPublishDir)
	viperCfg.SetDefault("paths.categories_file", "")

	viperCfg.SetDefault("run.mode", DefaultMode)
	viperCfg.SetDefault("run.engine", DefaultEngine)
	viperCfg.SetDefault("run.tier", DefaultTier)
	viperCfg.SetDefault("run.max_publish", 0)
	viperCfg.SetDefault("run.timezone", DefaultTimezone)

	viperCfg.SetDefault("budget.ceiling_minor_units", budget.DefaultCeilingMinorUnits)

	viperCfg.SetDefault("thresholds.window_days", rollout.DefaultWindowDays)
	viperCfg.SetDefault("thresholds.max_duplicate_rate", rollout.DefaultMaxDuplicateRate)
	viperCfg.SetDefault("thresholds.max_policy_flag_rate", rollout.DefaultMaxPolicyFlagRate)
	viperCfg.SetDefault("thresholds.min_indexed_rate", rollout.DefaultMinIndexedRate)
	viperCfg.SetDefault("thresholds.policy_disable_rate", rollout.DefaultPolicyDisableRate)
	viperCfg.SetDefault("thresholds.deploy_failure_limit", rollout.DefaultDeployFailureLimit)
	viperCfg.SetDefault("thresholds.disable_lookback", rollout.DefaultDisableLookback)

	viperCfg.SetDefault("ladder", []int(rollout.DefaultLadder()))

	viperCfg.SetDefault("backfill.checkpoint_file", DefaultCheckpointFile)

	viperCfg.SetDefault("observability.otlp_endpoint", "")
	viperCfg.SetDefault("observability.otlp_headers", "")
	viperCfg.SetDefault("observability.otlp_insecure", false)
	viperCfg.SetDefault("observability.debug_trace", false)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
	viperCfg.SetDefault("observability.environment", "")
	viperCfg.SetDefault("observability.log_level", DefaultLogLevel)
	viperCfg.SetDefault("observability.log_json", false)
	viperCfg.SetDefault("observability.diagnostics_addr", "")
}
