package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/rollgate/internal/config"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/report"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
)

// ErrUnknownFormat indicates an unsupported report output format.
var ErrUnknownFormat = errors.New("unknown report format")

type reportExecutor func(cfg *config.Config, window report.Window, now time.Time) (*report.Report, error)

// ReportCommand holds configuration and dependencies for the report command.
type ReportCommand struct {
	configPath string
	window     string
	format     string
	outPath    string
	noColor    bool

	exec reportExecutor
}

// NewReportCommand creates the status report command.
func NewReportCommand() *cobra.Command {
	return newReportCommandWithDeps(executeReport)
}

func newReportCommandWithDeps(exec reportExecutor) *cobra.Command {
	pc := &ReportCommand{exec: exec}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize rollout state and recent quality signals",
		Long: `Summarize per-category rollout state, budget position, and quality
signal averages over a trailing window, reading the state file and
metrics log without modifying either.`,
		Args: cobra.NoArgs,
		RunE: pc.run,
	}

	cmd.Flags().StringVar(&pc.configPath, "config", "", "Config file path (default: .rollgate.yaml in CWD or $HOME)")
	cmd.Flags().StringVar(&pc.window, "window", report.DefaultWindow, "Trailing window, e.g. 24h, 7d, 30d")
	cmd.Flags().StringVar(&pc.format, "format", "text", "Output format: text, json, html")
	cmd.Flags().StringVar(&pc.outPath, "out", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&pc.noColor, "no-color", false, "Disable color in text output")

	return cmd
}

func (pc *ReportCommand) run(cmd *cobra.Command, _ []string) error {
	window, windowErr := report.ParseWindow(pc.window)
	if windowErr != nil {
		return windowErr
	}

	render, formatErr := pc.renderer()
	if formatErr != nil {
		return formatErr
	}

	cfg, loadErr := config.LoadConfig(pc.configPath)
	if loadErr != nil {
		return loadErr
	}

	if pc.noColor {
		color.NoColor = true
	}

	rep, buildErr := pc.exec(cfg, window, time.Now().UTC())
	if buildErr != nil {
		return buildErr
	}

	out := cmd.OutOrStdout()

	if pc.outPath != "" {
		file, createErr := os.Create(pc.outPath)
		if createErr != nil {
			return fmt.Errorf("create report file: %w", createErr)
		}

		defer file.Close() //nolint:errcheck // renderer errors surface below; close is best effort.

		out = file
	}

	return render(out, rep)
}

func (pc *ReportCommand) renderer() (func(io.Writer, *report.Report) error, error) {
	switch pc.format {
	case "text":
		return report.RenderText, nil
	case "json":
		return report.RenderJSON, nil
	case "html":
		return report.RenderHTML, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, pc.format)
	}
}

// executeReport builds a report from the live stores. Reports never write,
// so no observability stack is brought up for them.
func executeReport(cfg *config.Config, window report.Window, now time.Time) (*report.Report, error) {
	registry, regErr := loadRegistry(cfg)
	if regErr != nil {
		return nil, regErr
	}

	store, openErr := metrics.Open(cfg.Paths.MetricsFile)
	if openErr != nil {
		return nil, openErr
	}

	builder := report.NewBuilder(report.Config{
		Registry:      registry,
		States:        state.NewStore(cfg.Paths.StateFile),
		Metrics:       store,
		Ladder:        cfg.RolloutLadder(),
		BudgetCeiling: cfg.Budget.CeilingMinorUnits,
	})

	return builder.Build(window, now)
}
