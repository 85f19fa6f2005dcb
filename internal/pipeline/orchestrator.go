// Package pipeline orchestrates the daily rollout cycle: ingest, approve,
// generate under budget, publish, record metrics, evaluate, and apply the
// per-category state transition.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Mode selects whether a run deploys its generated items.
type Mode string

const (
	// ModeProduction publishes and counts real deploy outcomes.
	ModeProduction Mode = "production"

	// ModeDryRun skips publishing; generated items count as published so
	// rehearsal runs exercise the same evaluation path.
	ModeDryRun Mode = "dry-run"
)

// ErrUnknownMode signals a mode outside the enumerated set.
var ErrUnknownMode = errors.New("unknown run mode")

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case ModeProduction, ModeDryRun:
		return Mode(raw), nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownMode, raw, ModeProduction, ModeDryRun)
	}
}

// deployAttempts bounds production publish retries per category.
const deployAttempts = 3

// Ingest oversampling: approval needs candidates to screen, so the fetch
// asks for a multiple of the effective limit with a floor for small limits.
const (
	ingestOversample   = 5
	ingestMinCandidate = 20
)

// RunContext carries everything a run decided up front. Nothing below the
// CLI reads the wall clock or the environment.
type RunContext struct {
	RunID      string
	Date       dates.Date
	Now        time.Time
	Mode       Mode
	Scope      string
	Engine     engine.Kind
	Tier       engine.Tier
	MaxPublish int
}

// Config wires an orchestrator. Registry, States, Metrics, and Artifacts
// are required; collaborators default to the deterministic implementations.
type Config struct {
	Registry      *category.Registry
	States        *state.Store
	Metrics       *metrics.Store
	Artifacts     *ArtifactWriter
	Thresholds    rollout.Thresholds
	Ladder        rollout.Ladder
	BudgetCeiling int64

	// Premium is the paid generator. Left nil, premium selections fall
	// back to the template without charging.
	Premium engine.Generator

	Ingest  Ingestor
	Approve Approver
	Publish Publisher
	Logger  *slog.Logger
}

// Orchestrator runs the daily cycle for each in-scope category.
type Orchestrator struct {
	registry  *category.Registry
	states    *state.Store
	cycle     *Cycle
	artifacts *ArtifactWriter
	ladder    rollout.Ladder
	ceiling   int64
	premium   engine.Generator
	template  *engine.TemplateGenerator
	ingest    Ingestor
	approve   Approver
	publish   Publisher
	log       *slog.Logger
}

// NewOrchestrator wires an orchestrator, filling collaborator defaults.
func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		registry:  cfg.Registry,
		states:    cfg.States,
		cycle:     NewCycle(cfg.Metrics, cfg.Thresholds, cfg.Ladder),
		artifacts: cfg.Artifacts,
		ladder:    cfg.Ladder,
		ceiling:   cfg.BudgetCeiling,
		premium:   cfg.Premium,
		template:  engine.NewTemplateGenerator(),
		ingest:    cfg.Ingest,
		approve:   cfg.Approve,
		publish:   cfg.Publish,
		log:       cfg.Logger,
	}

	if o.ingest == nil {
		o.ingest = NewFallbackIngestor(cfg.Registry)
	}

	if o.approve == nil {
		o.approve = PassApprover{}
	}

	if o.log == nil {
		o.log = slog.Default()
	}

	return o
}

// CategoryOutcome reports one category's run result.
type CategoryOutcome struct {
	CategoryID      string                 `json:"category_id"`
	Skipped         bool                   `json:"skipped,omitempty"`
	SkipReason      string                 `json:"skip_reason,omitempty"`
	Published       int                    `json:"published"`
	Usage           map[string]int         `json:"usage,omitempty"`
	Downgrades      int                    `json:"downgrades,omitempty"`
	DeployAttempts  int                    `json:"deploy_attempts"`
	DeploySucceeded bool                   `json:"deploy_succeeded"`
	DeployError     string                 `json:"deploy_error,omitempty"`
	Verdict         rollout.QualityVerdict `json:"verdict,omitempty"`
	Action          rollout.Action         `json:"action,omitempty"`
	PublishLimit    int                    `json:"publish_limit"`
	Enabled         bool                   `json:"enabled"`
	DisabledReason  rollout.DisableReason  `json:"disabled_reason,omitempty"`
}

// Summary is the run's JSON report.
type Summary struct {
	RunID         string            `json:"run_id"`
	Date          dates.Date        `json:"date"`
	Mode          Mode              `json:"mode"`
	Categories    []CategoryOutcome `json:"categories"`
	Budget        budget.Snapshot   `json:"budget"`
	ArtifactFiles int               `json:"artifact_files"`
	ArtifactsDir  string            `json:"artifacts_dir"`
	StateFile     string            `json:"state_file"`
	MetricsFile   string            `json:"metrics_file"`
}

// categoryRun holds one category's production-phase result until every
// category has run and the site-wide publish total is known.
type categoryRun struct {
	cat      category.Category
	outcome  CategoryOutcome
	approval Approval
	items    []engine.Item
	deployOK bool
	files    int
	skipped  bool
}

// Run executes one full cycle under the state lock. The run has two phases:
// first every category ingests, generates, and deploys; then, with the
// site-wide publish total known, each category's metrics record is built,
// evaluated, and its state transition persisted. Fatal errors (lock
// contention, corrupt state, failed persists) abort the run; per-category
// collaborator failures record a failed day and the run continues.
func (o *Orchestrator) Run(ctx context.Context, rc RunContext) (*Summary, error) {
	cats, resolveErr := o.registry.Resolve(rc.Scope)
	if resolveErr != nil {
		return nil, resolveErr
	}

	if rc.Now.IsZero() {
		rc.Now = time.Now().UTC()
	}

	release, acquireErr := o.states.Acquire()
	if acquireErr != nil {
		return nil, acquireErr
	}

	defer func() {
		releaseErr := release()
		if releaseErr != nil {
			o.log.Warn("release state lock", "error", releaseErr)
		}
	}()

	doc, loadErr := o.states.LoadOrInit(rc.Date, o.ceiling, o.ladder)
	if loadErr != nil {
		return nil, loadErr
	}

	// The configured ceiling wins over whatever the document carries.
	doc.Budget.CeilingMinorUnits = o.ceiling

	selector := engine.NewSelector(rc.Engine, rc.Tier, &doc.Budget)
	quota := o.allocateQuota(rc, doc, cats)

	summary := &Summary{
		RunID:        rc.RunID,
		Date:         rc.Date,
		Mode:         rc.Mode,
		ArtifactsDir: o.artifacts.RunDir(rc.Date),
		StateFile:    o.states.Path(),
		MetricsFile:  o.cycle.Metrics.Path(),
	}

	runs := make([]*categoryRun, 0, len(cats))
	for _, cat := range cats {
		runs = append(runs, o.produceCategory(ctx, rc, doc, cat, quota, selector))
	}

	// Index coverage is a site-level signal: the volume term of the
	// indexed-rate estimate uses the whole run's publish total, while
	// duplicate and policy rates stay per category.
	totalPublished := 0

	for _, cr := range runs {
		if !cr.skipped && cr.deployOK {
			totalPublished += len(cr.items)
		}
	}

	for _, cr := range runs {
		if cr.skipped {
			summary.Categories = append(summary.Categories, cr.outcome)

			continue
		}

		publishCount := 0
		if cr.deployOK {
			publishCount = len(cr.items)
		}

		cr.outcome.Published = publishCount
		cr.outcome.DeploySucceeded = cr.deployOK

		rec := o.buildRecord(rc, cr.cat.ID, cr.approval, publishCount, totalPublished, cr.deployOK)

		foldErr := o.foldAndSave(doc, rec, &cr.outcome)
		if foldErr != nil {
			return nil, fmt.Errorf("category %s: %w", cr.cat.ID, foldErr)
		}

		summary.ArtifactFiles += cr.files
		summary.Categories = append(summary.Categories, cr.outcome)
	}

	summary.Budget = doc.Budget.Snapshot(rc.Date)

	return summary, nil
}

// allocateQuota splits a run-level publish cap across the enabled in-scope
// categories. Without a cap every category keeps its own limit.
func (o *Orchestrator) allocateQuota(rc RunContext, doc *state.Document, cats []category.Category) map[string]int {
	if rc.MaxPublish <= 0 {
		return nil
	}

	var active []string

	for _, cat := range cats {
		if doc.Category(cat.ID, o.ladder).Enabled {
			active = append(active, cat.ID)
		}
	}

	return category.AllocateQuota(active, rc.MaxPublish)
}

// produceCategory runs one category's production phase: ingest, approve,
// generate, write artifacts, deploy. Collaborator failures are folded into
// the result as a failed day rather than aborting the run.
func (o *Orchestrator) produceCategory(
	ctx context.Context,
	rc RunContext,
	doc *state.Document,
	cat category.Category,
	quota map[string]int,
	selector *engine.Selector,
) *categoryRun {
	cs := doc.Category(cat.ID, o.ladder)

	cr := &categoryRun{
		cat: cat,
		outcome: CategoryOutcome{
			CategoryID:     cat.ID,
			PublishLimit:   cs.PublishLimit,
			Enabled:        cs.Enabled,
			DisabledReason: cs.DisabledReason,
			Usage:          map[string]int{},
		},
	}

	if !cs.Enabled {
		cr.skipped = true
		cr.outcome.Skipped = true
		cr.outcome.SkipReason = "disabled"

		return cr
	}

	if o.cycle.Metrics.Has(cat.ID, rc.Date) {
		o.log.Warn("metrics already recorded for date, skipping category",
			"category", cat.ID, "date", rc.Date)

		cr.skipped = true
		cr.outcome.Skipped = true
		cr.outcome.SkipReason = fmt.Sprintf("metrics already recorded for %s", rc.Date)

		return cr
	}

	effective := cs.PublishLimit
	if share, ok := quota[cat.ID]; ok && share < effective {
		effective = share
	}

	topics, ingestErr := o.ingest.Fetch(ctx, cat, maxCandidates(effective))
	if ingestErr != nil {
		return o.failDay(cr, fmt.Errorf("ingest: %w", ingestErr))
	}

	approval, approveErr := o.approve.Approve(ctx, topics, effective)
	if approveErr != nil {
		return o.failDay(cr, fmt.Errorf("approve: %w", approveErr))
	}

	cr.approval = approval

	items, genErr := o.generateItems(ctx, rc, approval, selector, &cr.outcome)
	if genErr != nil {
		return o.failDay(cr, fmt.Errorf("generate: %w", genErr))
	}

	cr.items = items

	files, writeErr := o.artifacts.Write(rc.Date, items)
	if writeErr != nil {
		return o.failDay(cr, fmt.Errorf("write artifacts: %w", writeErr))
	}

	cr.files = len(files)
	cr.deployOK = o.deploy(ctx, rc, cat.ID, items, &cr.outcome)

	return cr
}

// failDay marks a category's day as deploy-failed after a collaborator
// error. The day still gets a metrics record so streak logic keeps
// functioning; it is never silently dropped.
func (o *Orchestrator) failDay(cr *categoryRun, cause error) *categoryRun {
	o.log.Warn("category run failed, recording failed day",
		"category", cr.cat.ID, "error", cause)

	cr.outcome.DeployError = cause.Error()
	cr.deployOK = false
	cr.items = nil

	return cr
}

// maxCandidates sizes the ingest request for an effective publish limit.
func maxCandidates(effective int) int {
	n := effective * ingestOversample
	if n < ingestMinCandidate {
		return ingestMinCandidate
	}

	return n
}

// generateItems produces one item per approved topic, walking the budget
// ladder per item. Premium failures fall back to the template for that item
// without charging.
func (o *Orchestrator) generateItems(
	ctx context.Context,
	rc RunContext,
	approval Approval,
	selector *engine.Selector,
	outcome *CategoryOutcome,
) ([]engine.Item, error) {
	items := make([]engine.Item, 0, len(approval.Topics))

	for _, topic := range approval.Topics {
		choice := selector.Select(rc.Date)
		if choice.Downgraded {
			outcome.Downgrades++
		}

		item, itemErr := o.generateOne(ctx, rc, topic, choice, selector)
		if itemErr != nil {
			return nil, itemErr
		}

		outcome.Usage[usageLabel(item)]++

		items = append(items, item)
	}

	return items, nil
}

func (o *Orchestrator) generateOne(
	ctx context.Context,
	rc RunContext,
	topic engine.Topic,
	choice engine.Choice,
	selector *engine.Selector,
) (engine.Item, error) {
	if choice.Engine != engine.KindPremium || o.premium == nil {
		return o.template.Generate(ctx, engine.Request{Topic: topic})
	}

	item, genErr := o.premium.Generate(ctx, engine.Request{Topic: topic, Tier: choice.Tier})
	if genErr != nil {
		o.log.Warn("premium generation failed, falling back to template",
			"category", topic.Category, "error", genErr)

		return o.template.Generate(ctx, engine.Request{Topic: topic})
	}

	exhausted, settleErr := selector.Settle(rc.Date, item.CostMinorUnits)
	if settleErr != nil {
		return engine.Item{}, fmt.Errorf("settle generation cost: %w", settleErr)
	}

	if exhausted {
		o.log.Warn("budget ceiling reached, remainder of run falls back",
			"category", topic.Category, "cost", item.CostMinorUnits)
	}

	return item, nil
}

// usageLabel buckets an item for the run summary.
func usageLabel(item engine.Item) string {
	if item.Engine == engine.KindPremium {
		return string(item.Tier)
	}

	return "fallback"
}

// deploy publishes the items in production mode, retrying up to
// deployAttempts. Dry-run and empty days count as success.
func (o *Orchestrator) deploy(
	ctx context.Context,
	rc RunContext,
	categoryID string,
	items []engine.Item,
	outcome *CategoryOutcome,
) bool {
	if rc.Mode != ModeProduction || len(items) == 0 {
		return true
	}

	if o.publish == nil {
		outcome.DeployError = "no publisher configured"

		return false
	}

	var lastErr error

	for attempt := 1; attempt <= deployAttempts; attempt++ {
		outcome.DeployAttempts = attempt

		pubErr := o.publish.Publish(ctx, rc.Date, items)
		if pubErr == nil {
			return true
		}

		lastErr = pubErr

		o.log.Warn("deploy attempt failed",
			"category", categoryID, "attempt", attempt, "error", pubErr)
	}

	outcome.DeployError = lastErr.Error()

	return false
}

// buildRecord derives a category's daily metrics record. Duplicate and
// policy rates come from the category's own approval counts; the indexed
// estimate's volume term uses the run-wide publish total.
func (o *Orchestrator) buildRecord(
	rc RunContext,
	categoryID string,
	approval Approval,
	publishCount int,
	totalPublished int,
	deployOK bool,
) metrics.Record {
	dup, policy := metrics.Rates(approval.CandidateCount, approval.DuplicateCount, approval.PolicyFlagCount)

	return metrics.Record{
		Category:        categoryID,
		Date:            rc.Date,
		DuplicateRate:   dup,
		PolicyFlagRate:  policy,
		IndexedRate:     metrics.EstimateIndexedRate(approval.CandidateCount, totalPublished, dup, policy),
		DeploySucceeded: deployOK,
		PublishCount:    publishCount,
		RPMEstimate:     metrics.EstimateRPM(map[string]int{categoryID: publishCount}, dup, policy, o.registry.RPMBase),
		RunID:           rc.RunID,
		RecordedAt:      rc.Now,
	}
}

// foldAndSave applies the day's evaluation transition and persists the
// document. Persist failure is fatal: a new limit must never reach
// downstream schedulers if it was not durably recorded.
func (o *Orchestrator) foldAndSave(doc *state.Document, rec metrics.Record, outcome *CategoryOutcome) error {
	verdict, transition, foldErr := o.cycle.FoldDay(doc, rec)
	if foldErr != nil {
		return foldErr
	}

	cs := doc.Category(rec.Category, o.ladder)

	outcome.Verdict = verdict.Quality
	outcome.Action = transition.Action
	outcome.PublishLimit = cs.PublishLimit
	outcome.Enabled = cs.Enabled
	outcome.DisabledReason = cs.DisabledReason

	switch {
	case transition.Action == rollout.ActionDisable:
		o.log.Warn("category disabled",
			"category", rec.Category, "reason", transition.Reason, "date", rec.Date)

	case transition.Changed():
		o.log.Info("category promoted",
			"category", rec.Category, "from", transition.FromLimit, "to", transition.ToLimit)
	}

	return o.states.Save(doc)
}
