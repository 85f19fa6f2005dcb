package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/pipeline"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Config wires a backfill runner. Archive is optional; without one the
// replay source is the live metrics log, which rebuilds category state
// from recorded history.
type Config struct {
	Registry      *category.Registry
	States        *state.Store
	Metrics       *metrics.Store
	Checkpoint    *Manager
	Archive       *Archive
	Thresholds    rollout.Thresholds
	Ladder        rollout.Ladder
	BudgetCeiling int64
	Logger        *slog.Logger
}

// Runner replays (category, date) units through the same per-day fold the
// live orchestrator uses.
type Runner struct {
	registry *category.Registry
	states   *state.Store
	cycle    *pipeline.Cycle
	manager  *Manager
	archive  *Archive
	ladder   rollout.Ladder
	ceiling  int64
	log      *slog.Logger
}

// NewRunner wires a runner.
func NewRunner(cfg Config) *Runner {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Runner{
		registry: cfg.Registry,
		states:   cfg.States,
		cycle:    pipeline.NewCycle(cfg.Metrics, cfg.Thresholds, cfg.Ladder),
		manager:  cfg.Checkpoint,
		archive:  cfg.Archive,
		ladder:   cfg.Ladder,
		ceiling:  cfg.BudgetCeiling,
		log:      log,
	}
}

// Request bounds one backfill invocation.
type Request struct {
	Scope   string
	From    dates.Date
	To      dates.Date
	Restart bool
	Now     time.Time
}

// Summary reports what a backfill run did.
type Summary struct {
	Scope          string     `json:"scope"`
	From           dates.Date `json:"from"`
	To             dates.Date `json:"to"`
	Units          int        `json:"units"`
	Replayed       int        `json:"replayed"`
	SkippedDone    int        `json:"skipped_completed"`
	Missing        int        `json:"missing"`
	Promotions     int        `json:"promotions"`
	Disables       int        `json:"disables"`
	CursorDate     dates.Date `json:"cursor_date,omitempty"`
	StateFile      string     `json:"state_file"`
	CheckpointFile string     `json:"checkpoint_file"`
}

// Run iterates the requested units in deterministic order: date ascending,
// categories in registry order within each date. Each unit folds through
// the shared cycle, persists state, then marks the checkpoint, so a crash
// loses at most the in-flight unit and a resume converges on the same end
// state.
func (r *Runner) Run(ctx context.Context, req Request) (*Summary, error) {
	cats, resolveErr := r.registry.Resolve(req.Scope)
	if resolveErr != nil {
		return nil, resolveErr
	}

	days, rangeErr := dates.Range(req.From, req.To)
	if rangeErr != nil {
		return nil, rangeErr
	}

	if req.Now.IsZero() {
		req.Now = time.Now().UTC()
	}

	if req.Restart {
		clearErr := r.manager.Clear()
		if clearErr != nil {
			return nil, clearErr
		}
	}

	member := make(map[string]struct{}, len(cats))
	for _, cat := range cats {
		member[cat.ID] = struct{}{}
	}

	cp, beginErr := r.manager.Begin(req.Now, req.Scope, req.From, req.To, func(id string) bool {
		_, ok := member[id]

		return ok
	})
	if beginErr != nil {
		return nil, beginErr
	}

	release, acquireErr := r.states.Acquire()
	if acquireErr != nil {
		return nil, acquireErr
	}

	defer func() {
		releaseErr := release()
		if releaseErr != nil {
			r.log.Warn("release state lock", "error", releaseErr)
		}
	}()

	doc, loadErr := r.states.LoadOrInit(req.From, r.ceiling, r.ladder)
	if loadErr != nil {
		return nil, loadErr
	}

	summary := &Summary{
		Scope:          req.Scope,
		From:           req.From,
		To:             req.To,
		StateFile:      r.states.Path(),
		CheckpointFile: r.manager.Path(),
	}

	for _, day := range days {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, cat := range cats {
			unitErr := r.replayUnit(doc, Unit{Category: cat.ID, Date: day}, req.Now, summary)
			if unitErr != nil {
				return nil, unitErr
			}
		}
	}

	summary.CursorDate = cp.CursorDate

	return summary, nil
}

// replayUnit folds one unit and advances the checkpoint. State persists
// before the checkpoint mark: a crash between the two reprocesses the
// unit, and the fold's replay guards make that a no-op.
func (r *Runner) replayUnit(doc *state.Document, unit Unit, now time.Time, summary *Summary) error {
	summary.Units++

	if r.manager.Completed(unit) {
		summary.SkippedDone++

		return nil
	}

	rec, ok := r.lookup(unit)
	if !ok {
		r.log.Warn("no metrics for unit, nothing to replay",
			"category", unit.Category, "date", unit.Date)

		summary.Missing++

		return r.manager.MarkCompleted(unit, now)
	}

	_, transition, foldErr := r.cycle.FoldDay(doc, rec)
	if foldErr != nil {
		return fmt.Errorf("replay %s %s: %w", unit.Category, unit.Date, foldErr)
	}

	saveErr := r.states.Save(doc)
	if saveErr != nil {
		return fmt.Errorf("persist state: %w", saveErr)
	}

	markErr := r.manager.MarkCompleted(unit, now)
	if markErr != nil {
		return markErr
	}

	summary.Replayed++

	switch {
	case transition.Action == rollout.ActionDisable:
		summary.Disables++
	case transition.Changed():
		summary.Promotions++
	}

	return nil
}

// lookup resolves a unit's record, preferring the archive over the live
// metrics log.
func (r *Runner) lookup(unit Unit) (metrics.Record, bool) {
	if r.archive != nil {
		rec, ok := r.archive.Record(unit.Category, unit.Date)
		if ok {
			return rec, true
		}
	}

	return r.cycle.Metrics.Get(unit.Category, unit.Date)
}
