package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/mcp"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes read-only rollout inspection as tools that AI agents
can discover and invoke:
  - rollout_status: Per-category rollout state and budget position
  - ops_report: Quality signal averages over a trailing window`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, loadErr := config.LoadConfig(configPath)
			if loadErr != nil {
				return loadErr
			}

			providers, initErr := initMCPObservability(cfg, debug)
			if initErr != nil {
				return initErr
			}

			defer shutdownQuietly(providers)

			instruments, instErr := observability.NewControllerMetrics(providers.Meter)
			if instErr != nil {
				return instErr
			}

			registry, regErr := loadRegistry(cfg)
			if regErr != nil {
				return regErr
			}

			store, openErr := metrics.Open(cfg.Paths.MetricsFile)
			if openErr != nil {
				return openErr
			}

			srv := mcp.NewServer(
				mcp.Config{
					Registry:      registry,
					States:        state.NewStore(cfg.Paths.StateFile),
					Metrics:       store,
					Ladder:        cfg.RolloutLadder(),
					BudgetCeiling: cfg.Budget.CeilingMinorUnits,
				},
				mcp.ServerDeps{
					Logger:      providers.Logger,
					Instruments: instruments,
					Tracer:      providers.Tracer,
				},
			)

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path (default: .rollgate.yaml in CWD or $HOME)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// initMCPObservability forces JSON logs: the MCP transport owns stdout, so
// anything human-shaped on stderr must still be machine-parseable.
func initMCPObservability(cfg *config.Config, debug bool) (observability.Providers, error) {
	obsCfg, buildErr := buildObservabilityConfig(cfg, observability.ModeMCP, debug)
	if buildErr != nil {
		return observability.Providers{}, buildErr
	}

	obsCfg.LogJSON = true

	return observability.Init(obsCfg)
}
