package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rollgate/internal/backfill"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
)

// ErrMissingDateRange indicates the backfill command was invoked without
// both ends of the replay range.
var ErrMissingDateRange = errors.New("both --from and --to are required")

type backfillExecutor func(
	ctx context.Context,
	cfg *config.Config,
	req backfill.Request,
	archivePath string,
	providers observability.Providers,
) (*backfill.Summary, error)

// BackfillCommand holds configuration and dependencies for the backfill command.
type BackfillCommand struct {
	configPath  string
	scope       string
	from        string
	to          string
	archivePath string
	restart     bool
	debug       bool

	exec    backfillExecutor
	obsInit observabilityInitFunc
}

// NewBackfillCommand creates the metrics replay command.
func NewBackfillCommand() *cobra.Command {
	return newBackfillCommandWithDeps(executeBackfill, observability.Init)
}

func newBackfillCommandWithDeps(exec backfillExecutor, obsInit observabilityInitFunc) *cobra.Command {
	bc := &BackfillCommand{exec: exec, obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay archived daily metrics through the rollout evaluator",
		Long: `Replay archived daily metrics through the evaluator and state machine,
one category-day at a time, resuming from the last checkpoint. Replay
applies state transitions only; it never generates or publishes content.

Prints the replay summary as JSON.`,
		Args: cobra.NoArgs,
		RunE: bc.run,
	}

	cmd.Flags().StringVar(&bc.configPath, "config", "", "Config file path (default: .rollgate.yaml in CWD or $HOME)")
	cmd.Flags().StringVar(&bc.scope, "category", category.ScopeAll, "Category scope: all or a single category ID")
	cmd.Flags().StringVar(&bc.from, "from", "", "First date to replay (YYYY-MM-DD)")
	cmd.Flags().StringVar(&bc.to, "to", "", "Last date to replay (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&bc.archivePath, "archive", "", "Metrics archive to replay from (default: the configured metrics log)")
	cmd.Flags().BoolVar(&bc.restart, "restart", false, "Discard the checkpoint and replay the full range")
	cmd.Flags().BoolVar(&bc.debug, "debug", false, "Enable debug logging and trace sampling")

	return cmd
}

func (bc *BackfillCommand) run(cmd *cobra.Command, _ []string) error {
	if bc.from == "" || bc.to == "" {
		return ErrMissingDateRange
	}

	from, fromErr := dates.Parse(bc.from)
	if fromErr != nil {
		return fromErr
	}

	to, toErr := dates.Parse(bc.to)
	if toErr != nil {
		return toErr
	}

	cfg, loadErr := config.LoadConfig(bc.configPath)
	if loadErr != nil {
		return loadErr
	}

	obsCfg, obsErr := buildObservabilityConfig(cfg, observability.ModeCLI, bc.debug)
	if obsErr != nil {
		return obsErr
	}

	providers, initErr := bc.obsInit(obsCfg)
	if initErr != nil {
		return initErr
	}

	defer shutdownQuietly(providers)

	req := backfill.Request{
		Scope:   bc.scope,
		From:    from,
		To:      to,
		Restart: bc.restart,
		Now:     time.Now().UTC(),
	}

	providers.Logger.Info("backfill starting",
		"scope", req.Scope, "from", req.From, "to", req.To, "restart", req.Restart)

	summary, execErr := bc.exec(cmd.Context(), cfg, req, bc.archivePath, providers)
	if execErr != nil {
		return execErr
	}

	return writeJSON(cmd.OutOrStdout(), summary)
}

// executeBackfill wires the stores, checkpoint, and archive, runs the
// replay, and records replay instruments from the summary.
func executeBackfill(
	ctx context.Context,
	cfg *config.Config,
	req backfill.Request,
	archivePath string,
	providers observability.Providers,
) (*backfill.Summary, error) {
	registry, regErr := loadRegistry(cfg)
	if regErr != nil {
		return nil, regErr
	}

	store, openErr := metrics.Open(cfg.Paths.MetricsFile)
	if openErr != nil {
		return nil, openErr
	}

	instruments, instErr := observability.NewControllerMetrics(providers.Meter)
	if instErr != nil {
		return nil, instErr
	}

	runnerCfg := backfill.Config{
		Registry:      registry,
		States:        state.NewStore(cfg.Paths.StateFile),
		Metrics:       store,
		Checkpoint:    backfill.NewManager(cfg.Backfill.CheckpointFile, providers.Logger),
		Thresholds:    cfg.Thresholds,
		Ladder:        cfg.RolloutLadder(),
		BudgetCeiling: cfg.Budget.CeilingMinorUnits,
		Logger:        providers.Logger,
	}

	if archivePath != "" {
		archive, archiveErr := backfill.OpenArchive(archivePath)
		if archiveErr != nil {
			return nil, archiveErr
		}

		runnerCfg.Archive = archive
	}

	summary, runErr := backfill.NewRunner(runnerCfg).Run(ctx, req)
	if runErr != nil {
		return nil, runErr
	}

	instruments.RecordReplay(ctx, observability.ReplayOutcomeReplayed, int64(summary.Replayed))
	instruments.RecordReplay(ctx, observability.ReplayOutcomeSkipped, int64(summary.SkippedDone))
	instruments.RecordReplay(ctx, observability.ReplayOutcomeMissing, int64(summary.Missing))

	return summary, nil
}
