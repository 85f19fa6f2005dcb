// Package commands implements CLI command handlers for rollgate.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/pipeline"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
	"github.com/Sumatoshi-tech/rollgate/pkg/observability"
)

type runExecutor func(
	ctx context.Context,
	cfg *config.Config,
	runCtx pipeline.RunContext,
	providers observability.Providers,
) (*pipeline.Summary, error)

// RunCommand holds configuration and dependencies for the run command.
type RunCommand struct {
	configPath      string
	scope           string
	asOf            string
	mode            string
	engineName      string
	tier            string
	maxPublish      int
	stateFile       string
	metricsFile     string
	artifactsDir    string
	publishDir      string
	diagnosticsAddr string
	debug           bool

	exec    runExecutor
	obsInit observabilityInitFunc
}

// NewRunCommand creates the daily run command.
func NewRunCommand() *cobra.Command {
	return newRunCommandWithDeps(executeRun, observability.Init)
}

func newRunCommandWithDeps(exec runExecutor, obsInit observabilityInitFunc) *cobra.Command {
	rc := &RunCommand{exec: exec, obsInit: obsInit}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one daily rollout cycle",
		Long: `Execute one daily cycle: ingest and approve topics per enabled category,
generate items under the monthly budget, publish, record the day's metrics,
evaluate trailing quality, and apply the publish-limit transition.

Prints the run summary as JSON.`,
		Args: cobra.NoArgs,
		RunE: rc.run,
	}

	cmd.Flags().StringVar(&rc.configPath, "config", "", "Config file path (default: .rollgate.yaml in CWD or $HOME)")
	cmd.Flags().StringVar(&rc.scope, "category", category.ScopeAll, "Category scope: all or a single category ID")
	cmd.Flags().StringVar(&rc.asOf, "as-of", "", "Run date override (YYYY-MM-DD; default: today in the configured timezone)")
	cmd.Flags().StringVar(&rc.mode, "mode", "", "Run mode override: production, dry-run")
	cmd.Flags().StringVar(&rc.engineName, "engine", "", "Generation engine override: premium, fallback")
	cmd.Flags().StringVar(&rc.tier, "tier", "", "Quality tier override: premium, balanced")
	cmd.Flags().IntVar(&rc.maxPublish, "max-publish", 0, "Run-level publish cap split across active categories (0 = per-category limits)")
	cmd.Flags().StringVar(&rc.stateFile, "state-file", "", "Rollout state file override")
	cmd.Flags().StringVar(&rc.metricsFile, "metrics-file", "", "Daily metrics log override")
	cmd.Flags().StringVar(&rc.artifactsDir, "artifacts-dir", "", "Artifacts directory override")
	cmd.Flags().StringVar(&rc.publishDir, "publish-dir", "", "Publish directory override")
	cmd.Flags().StringVar(&rc.diagnosticsAddr, "diagnostics-addr", "", "Serve /healthz, /readyz, /metrics on this address for the run")
	cmd.Flags().BoolVar(&rc.debug, "debug", false, "Enable debug logging and trace sampling")

	return cmd
}

func (rc *RunCommand) run(cmd *cobra.Command, _ []string) error {
	cfg, loadErr := config.LoadConfig(rc.configPath)
	if loadErr != nil {
		return loadErr
	}

	overrideErr := rc.applyOverrides(cmd, cfg)
	if overrideErr != nil {
		return overrideErr
	}

	obsCfg, obsErr := buildObservabilityConfig(cfg, observability.ModeCLI, rc.debug)
	if obsErr != nil {
		return obsErr
	}

	providers, initErr := rc.obsInit(obsCfg)
	if initErr != nil {
		return initErr
	}

	defer shutdownQuietly(providers)

	if cfg.Observability.DiagnosticsAddr != "" {
		diag, diagErr := observability.NewDiagnosticsServer(
			cfg.Observability.DiagnosticsAddr,
			providers.MetricsHandler,
			stateFileReady(cfg.Paths.StateFile),
		)
		if diagErr != nil {
			return diagErr
		}

		defer func() {
			closeErr := diag.Close(context.Background())
			if closeErr != nil {
				providers.Logger.Warn("close diagnostics server", "error", closeErr)
			}
		}()

		providers.Logger.Info("diagnostics server listening", "addr", diag.Addr())
	}

	runCtx, ctxErr := rc.buildRunContext(cfg)
	if ctxErr != nil {
		return ctxErr
	}

	providers.Logger.Info("run starting",
		"run_id", runCtx.RunID, "date", runCtx.Date, "mode", runCtx.Mode, "scope", runCtx.Scope)

	summary, runErr := rc.exec(cmd.Context(), cfg, runCtx, providers)
	if runErr != nil {
		return runErr
	}

	return writeJSON(cmd.OutOrStdout(), summary)
}

// applyOverrides folds changed flags into the loaded configuration and
// re-validates. Flags win over the file and the environment.
func (rc *RunCommand) applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if rc.mode != "" {
		cfg.Run.Mode = rc.mode
	}

	if rc.engineName != "" {
		cfg.Run.Engine = rc.engineName
	}

	if rc.tier != "" {
		cfg.Run.Tier = rc.tier
	}

	if cmd.Flags().Changed("max-publish") {
		cfg.Run.MaxPublish = rc.maxPublish
	}

	if rc.stateFile != "" {
		cfg.Paths.StateFile = rc.stateFile
	}

	if rc.metricsFile != "" {
		cfg.Paths.MetricsFile = rc.metricsFile
	}

	if rc.artifactsDir != "" {
		cfg.Paths.ArtifactsDir = rc.artifactsDir
	}

	if rc.publishDir != "" {
		cfg.Paths.PublishDir = rc.publishDir
	}

	if rc.diagnosticsAddr != "" {
		cfg.Observability.DiagnosticsAddr = rc.diagnosticsAddr
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return fmt.Errorf("validate config: %w", validateErr)
	}

	return nil
}

// buildRunContext fixes everything the run decides up front: identity,
// date, clock, and the enumerated run parameters. Nothing below this reads
// the wall clock or the environment.
func (rc *RunCommand) buildRunContext(cfg *config.Config) (pipeline.RunContext, error) {
	mode, modeErr := pipeline.ParseMode(cfg.Run.Mode)
	if modeErr != nil {
		return pipeline.RunContext{}, modeErr
	}

	kind, kindErr := engine.ParseKind(cfg.Run.Engine)
	if kindErr != nil {
		return pipeline.RunContext{}, kindErr
	}

	tier, tierErr := engine.ParseTier(cfg.Run.Tier)
	if tierErr != nil {
		return pipeline.RunContext{}, tierErr
	}

	loc, locErr := time.LoadLocation(cfg.Run.Timezone)
	if locErr != nil {
		return pipeline.RunContext{}, fmt.Errorf("load timezone %q: %w", cfg.Run.Timezone, locErr)
	}

	now := time.Now().In(loc)

	runDate := dates.FromTime(now)

	if rc.asOf != "" {
		parsed, parseErr := dates.Parse(rc.asOf)
		if parseErr != nil {
			return pipeline.RunContext{}, parseErr
		}

		runDate = parsed
	}

	return pipeline.RunContext{
		RunID:      uuid.NewString(),
		Date:       runDate,
		Now:        now.UTC(),
		Mode:       mode,
		Scope:      rc.scope,
		Engine:     kind,
		Tier:       tier,
		MaxPublish: cfg.Run.MaxPublish,
	}, nil
}

// executeRun wires the stores and the orchestrator and runs one cycle,
// recording controller instruments from the outcome.
func executeRun(
	ctx context.Context,
	cfg *config.Config,
	runCtx pipeline.RunContext,
	providers observability.Providers,
) (*pipeline.Summary, error) {
	registry, regErr := loadRegistry(cfg)
	if regErr != nil {
		return nil, regErr
	}

	store, openErr := metrics.Open(cfg.Paths.MetricsFile)
	if openErr != nil {
		return nil, openErr
	}

	states := state.NewStore(cfg.Paths.StateFile)

	instruments, instErr := observability.NewControllerMetrics(providers.Meter)
	if instErr != nil {
		return nil, instErr
	}

	// Pre-run snapshot for instrument deltas. Reads outside the run lock:
	// the numbers feed counters, never decisions.
	before, beforeErr := states.LoadOrInit(runCtx.Date, cfg.Budget.CeilingMinorUnits, cfg.RolloutLadder())
	if beforeErr != nil {
		return nil, beforeErr
	}

	orch := pipeline.NewOrchestrator(pipeline.Config{
		Registry:      registry,
		States:        states,
		Metrics:       store,
		Artifacts:     pipeline.NewArtifactWriter(cfg.Paths.ArtifactsDir),
		Thresholds:    cfg.Thresholds,
		Ladder:        cfg.RolloutLadder(),
		BudgetCeiling: cfg.Budget.CeilingMinorUnits,
		Publish:       pipeline.NewSitePublisher(cfg.Paths.PublishDir),
		Logger:        providers.Logger,
	})

	started := time.Now()

	summary, runErr := orch.Run(ctx, runCtx)

	status := "ok"
	if runErr != nil {
		status = "error"
	}

	instruments.RecordRun(ctx, observability.ModeCLI, status, time.Since(started))

	if runErr != nil {
		return nil, runErr
	}

	recordOutcomes(ctx, instruments, before, cfg.RolloutLadder(), summary)

	return summary, nil
}

// recordOutcomes derives counter updates by diffing the summary against the
// pre-run document, so a ceiling promote verdict that changed nothing does
// not count as a promotion.
func recordOutcomes(
	ctx context.Context,
	instruments *observability.ControllerMetrics,
	before *state.Document,
	ladder rollout.Ladder,
	summary *pipeline.Summary,
) {
	for _, outcome := range summary.Categories {
		if outcome.Skipped {
			continue
		}

		if outcome.Published > 0 {
			instruments.RecordPublish(ctx, outcome.CategoryID, int64(outcome.Published))
		}

		for range outcome.Usage["fallback"] {
			instruments.RecordFallback(ctx, outcome.CategoryID)
		}

		prior := before.Category(outcome.CategoryID, ladder)

		if outcome.Action == rollout.ActionPromote && outcome.PublishLimit > prior.PublishLimit {
			instruments.RecordPromotion(ctx, outcome.CategoryID)
		}

		if outcome.Action == rollout.ActionDisable {
			instruments.RecordDisable(ctx, outcome.CategoryID, string(outcome.DisabledReason))
		}
	}

	spentBefore := before.Budget.Snapshot(summary.Date).SpentMinorUnits
	if delta := summary.Budget.SpentMinorUnits - spentBefore; delta > 0 {
		instruments.RecordSpend(ctx, string(engine.KindPremium), delta)
	}
}

// loadRegistry resolves the category taxonomy: an explicit YAML file when
// configured, the built-in registry otherwise.
func loadRegistry(cfg *config.Config) (*category.Registry, error) {
	if cfg.Paths.CategoriesFile == "" {
		return category.Default(), nil
	}

	return category.LoadFile(cfg.Paths.CategoriesFile)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	encodeErr := enc.Encode(v)
	if encodeErr != nil {
		return fmt.Errorf("encode summary: %w", encodeErr)
	}

	return nil
}
