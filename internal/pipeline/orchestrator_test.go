package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/engine"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/pipeline"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// topicFactory fabricates candidate topics and remembers how many the
// orchestrator asked for.
type topicFactory struct {
	count   int
	lastMax int
}

func (f *topicFactory) Fetch(_ context.Context, cat category.Category, maxCandidates int) ([]engine.Topic, error) {
	f.lastMax = maxCandidates

	n := f.count
	if n > maxCandidates {
		n = maxCandidates
	}

	topics := make([]engine.Topic, 0, n)
	for i := range n {
		topics = append(topics, engine.Topic{
			Category: cat.ID,
			Title:    fmt.Sprintf("%s briefing %02d", cat.Label, i+1),
			Snippet:  "Synthetic candidate.",
		})
	}

	return topics, nil
}

type failingIngestor struct{ err error }

func (f failingIngestor) Fetch(context.Context, category.Category, int) ([]engine.Topic, error) {
	return nil, f.err
}

// flakyPublisher fails its first n calls, then succeeds.
type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(context.Context, dates.Date, []engine.Item) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("pages deploy rejected")
	}

	return nil
}

// meteredGenerator bills a fixed actual cost per tier.
type meteredGenerator struct {
	premiumCost  int64
	balancedCost int64
	calls        int
}

func (g *meteredGenerator) Generate(_ context.Context, req engine.Request) (engine.Item, error) {
	g.calls++

	cost := g.premiumCost
	if req.Tier == engine.TierBalanced {
		cost = g.balancedCost
	}

	return engine.Item{
		Slug:           fmt.Sprintf("metered-%02d", g.calls),
		Title:          req.Topic.Title,
		Category:       req.Topic.Category,
		Markdown:       "# Brief\n\nBody.\n",
		WordCount:      2,
		Engine:         engine.KindPremium,
		Tier:           req.Tier,
		CostMinorUnits: cost,
	}, nil
}

type failingGenerator struct{ err error }

func (g failingGenerator) Generate(context.Context, engine.Request) (engine.Item, error) {
	return engine.Item{}, g.err
}

type fixture struct {
	registry *category.Registry
	states   *state.Store
	metrics  *metrics.Store
	cfg      pipeline.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()

	ms, openErr := metrics.Open(filepath.Join(dir, "daily_metrics.jsonl"))
	require.NoError(t, openErr)

	reg := category.Default()

	f := &fixture{
		registry: reg,
		states:   state.NewStore(filepath.Join(dir, "rollout_state.json")),
		metrics:  ms,
	}

	f.cfg = pipeline.Config{
		Registry:      reg,
		States:        f.states,
		Metrics:       ms,
		Artifacts:     pipeline.NewArtifactWriter(filepath.Join(dir, "artifacts")),
		Thresholds:    rollout.DefaultThresholds(),
		Ladder:        rollout.DefaultLadder(),
		BudgetCeiling: budget.DefaultCeilingMinorUnits,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	return f
}

func (f *fixture) run(t *testing.T, rc pipeline.RunContext) *pipeline.Summary {
	t.Helper()

	summary, runErr := pipeline.NewOrchestrator(f.cfg).Run(context.Background(), rc)
	require.NoError(t, runErr)

	return summary
}

func (f *fixture) reload(t *testing.T) *state.Document {
	t.Helper()

	doc, loadErr := f.states.Load(f.cfg.Ladder)
	require.NoError(t, loadErr)

	return doc
}

func dryRunContext(date dates.Date) pipeline.RunContext {
	return pipeline.RunContext{
		RunID:  "run-" + string(date),
		Date:   date,
		Now:    time.Date(2025, 6, 15, 21, 0, 0, 0, time.UTC),
		Mode:   pipeline.ModeDryRun,
		Scope:  "all",
		Engine: engine.KindFallback,
		Tier:   engine.TierPremium,
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    pipeline.Mode
		wantErr bool
	}{
		{name: "production", raw: "production", want: pipeline.ModeProduction},
		{name: "dry run", raw: "dry-run", want: pipeline.ModeDryRun},
		{name: "unknown", raw: "staging", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mode, parseErr := pipeline.ParseMode(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, parseErr, pipeline.ErrUnknownMode)

				return
			}

			require.NoError(t, parseErr)
			assert.Equal(t, tt.want, mode)
		})
	}
}

func TestOrchestrator_Run_DryRunRecordsEachCategory(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	summary := f.run(t, dryRunContext("2025-06-01"))

	require.Len(t, summary.Categories, 3)

	for _, outcome := range summary.Categories {
		assert.False(t, outcome.Skipped)
		assert.Equal(t, 3, outcome.Published)
		assert.True(t, outcome.DeploySucceeded)
		assert.Zero(t, outcome.DeployAttempts)
		assert.Equal(t, rollout.VerdictInsufficient, outcome.Verdict)
		assert.Equal(t, rollout.ActionHold, outcome.Action)
		assert.Equal(t, 12, outcome.PublishLimit)
		assert.True(t, outcome.Enabled)
		assert.Equal(t, map[string]int{"fallback": 3}, outcome.Usage)
	}

	// Three items per category, markdown plus sidecar each.
	assert.Equal(t, 18, summary.ArtifactFiles)
	assert.Zero(t, summary.Budget.SpentMinorUnits)
	assert.Equal(t, 3, f.metrics.Len())

	rec, ok := f.metrics.Get("finance", "2025-06-01")
	require.True(t, ok)
	assert.Zero(t, rec.DuplicateRate)
	assert.Zero(t, rec.PolicyFlagRate)
	assert.Equal(t, 3, rec.PublishCount)
	assert.True(t, rec.DeploySucceeded)
	// Nine publishes across the whole run feed the indexed estimate.
	assert.InDelta(t, 0.323, rec.IndexedRate, 1e-9)
	assert.Equal(t, "run-2025-06-01", rec.RunID)

	doc := f.reload(t)
	for _, id := range f.registry.IDs() {
		cs := doc.Category(id, f.cfg.Ladder)
		assert.Equal(t, dates.Date("2025-06-01"), cs.LastEvaluatedDate)
		assert.True(t, cs.Enabled)
	}
}

func TestOrchestrator_Run_PromotionAfterSevenCleanDays(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Ingest = &topicFactory{count: 40}

	var last *pipeline.Summary

	for day := 1; day <= 7; day++ {
		last = f.run(t, dryRunContext(dates.Date(fmt.Sprintf("2025-06-%02d", day))))
	}

	require.Len(t, last.Categories, 3)

	for _, outcome := range last.Categories {
		assert.Equal(t, rollout.VerdictPromote, outcome.Verdict, outcome.CategoryID)
		assert.Equal(t, rollout.ActionPromote, outcome.Action, outcome.CategoryID)
		assert.Equal(t, 18, outcome.PublishLimit, outcome.CategoryID)
	}

	doc := f.reload(t)
	for _, id := range f.registry.IDs() {
		cs := doc.Category(id, f.cfg.Ladder)
		assert.Equal(t, 18, cs.PublishLimit)
		assert.Zero(t, cs.PromotionStreak)
		assert.Equal(t, dates.Date("2025-06-07"), cs.LastEvaluatedDate)
	}
}

func TestOrchestrator_Run_BudgetWalkAcrossTiers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.BudgetCeiling = 300
	f.cfg.Ingest = &topicFactory{count: 3}
	f.cfg.Premium = &meteredGenerator{premiumCost: 140, balancedCost: 80}

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"
	rc.Engine = engine.KindPremium
	rc.Tier = engine.TierPremium

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.Equal(t, map[string]int{"premium": 1, "balanced": 1, "fallback": 1}, outcome.Usage)
	assert.Equal(t, 2, outcome.Downgrades)
	assert.Equal(t, 3, outcome.Published)
	assert.Equal(t, int64(220), summary.Budget.SpentMinorUnits)

	// The charged ledger rides along with the state persist.
	doc := f.reload(t)
	assert.Equal(t, int64(220), doc.Budget.SpentMinorUnits)
	assert.Equal(t, int64(300), doc.Budget.CeilingMinorUnits)
}

func TestOrchestrator_Run_PremiumFailureFallsBackWithoutCharge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Premium = failingGenerator{err: errors.New("premium api unavailable")}

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"
	rc.Engine = engine.KindPremium
	rc.Tier = engine.TierPremium

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.Equal(t, map[string]int{"fallback": 3}, outcome.Usage)
	assert.True(t, outcome.DeploySucceeded)
	assert.Zero(t, summary.Budget.SpentMinorUnits)
}

func TestOrchestrator_Run_ProductionDeployExhaustsRetries(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	publisher := &flakyPublisher{failures: 10}
	f.cfg.Publish = publisher

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"
	rc.Mode = pipeline.ModeProduction

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.Equal(t, 3, outcome.DeployAttempts)
	assert.Equal(t, 3, publisher.calls)
	assert.False(t, outcome.DeploySucceeded)
	assert.Zero(t, outcome.Published)
	assert.Contains(t, outcome.DeployError, "pages deploy rejected")

	rec, ok := f.metrics.Get("ai_tech", "2025-06-01")
	require.True(t, ok)
	assert.False(t, rec.DeploySucceeded)
	assert.Zero(t, rec.PublishCount)

	cs := f.reload(t).Category("ai_tech", f.cfg.Ladder)
	assert.Equal(t, 1, cs.DeployFailureStreak)
	assert.True(t, cs.Enabled)
}

func TestOrchestrator_Run_ProductionDeploySecondAttemptSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	publisher := &flakyPublisher{failures: 1}
	f.cfg.Publish = publisher

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"
	rc.Mode = pipeline.ModeProduction

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.Equal(t, 2, outcome.DeployAttempts)
	assert.True(t, outcome.DeploySucceeded)
	assert.Equal(t, 3, outcome.Published)
	assert.Empty(t, outcome.DeployError)

	cs := f.reload(t).Category("ai_tech", f.cfg.Ladder)
	assert.Zero(t, cs.DeployFailureStreak)
}

func TestOrchestrator_Run_DisabledCategorySkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	doc := state.NewDocument("2025-05-28", budget.DefaultCeilingMinorUnits)
	cs := rollout.NewCategoryState("ai_tech", f.cfg.Ladder)
	cs.Enabled = false
	cs.DisabledReason = rollout.DisablePolicy
	cs.DisabledOn = "2025-05-28"
	doc.SetCategory(cs)
	require.NoError(t, f.states.Save(doc))

	summary := f.run(t, dryRunContext("2025-06-01"))

	require.Len(t, summary.Categories, 3)

	skipped := summary.Categories[0]
	assert.Equal(t, "ai_tech", skipped.CategoryID)
	assert.True(t, skipped.Skipped)
	assert.Equal(t, "disabled", skipped.SkipReason)
	assert.Zero(t, skipped.Published)

	assert.False(t, f.metrics.Has("ai_tech", "2025-06-01"))
	assert.True(t, f.metrics.Has("finance", "2025-06-01"))
	assert.True(t, f.metrics.Has("lifestyle_pop", "2025-06-01"))
}

func TestOrchestrator_Run_DuplicateDaySkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	require.NoError(t, f.metrics.Append(metrics.Record{
		Category:        "ai_tech",
		Date:            "2025-06-01",
		IndexedRate:     0.4,
		DeploySucceeded: true,
		PublishCount:    12,
		RecordedAt:      time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC),
	}))

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.True(t, outcome.Skipped)
	assert.Contains(t, outcome.SkipReason, "2025-06-01")
	assert.Equal(t, 1, f.metrics.Len())
}

func TestOrchestrator_Run_IngestFailureRecordsFailedDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Ingest = failingIngestor{err: errors.New("feed unreachable")}

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 1)
	outcome := summary.Categories[0]

	assert.False(t, outcome.Skipped)
	assert.False(t, outcome.DeploySucceeded)
	assert.Contains(t, outcome.DeployError, "ingest")
	assert.Zero(t, outcome.Published)

	rec, ok := f.metrics.Get("ai_tech", "2025-06-01")
	require.True(t, ok)
	assert.False(t, rec.DeploySucceeded)
	assert.Zero(t, rec.PublishCount)
	assert.Zero(t, rec.IndexedRate)

	cs := f.reload(t).Category("ai_tech", f.cfg.Ladder)
	assert.Equal(t, 1, cs.DeployFailureStreak)
	assert.True(t, cs.Enabled)
}

func TestOrchestrator_Run_MaxPublishSplitsQuota(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rc := dryRunContext("2025-06-01")
	rc.MaxPublish = 3

	summary := f.run(t, rc)

	require.Len(t, summary.Categories, 3)

	for _, outcome := range summary.Categories {
		assert.Equal(t, 1, outcome.Published, outcome.CategoryID)
	}
}

func TestOrchestrator_Run_IngestOversampleFloor(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	factory := &topicFactory{count: 40}
	f.cfg.Ingest = factory

	rc := dryRunContext("2025-06-01")
	rc.Scope = "ai_tech"
	rc.MaxPublish = 1

	summary := f.run(t, rc)

	assert.Equal(t, 20, factory.lastMax)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, 1, summary.Categories[0].Published)
}

func TestOrchestrator_Run_StateLockHeld(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	blocker := state.NewStore(f.states.Path())
	release, acquireErr := blocker.Acquire()
	require.NoError(t, acquireErr)
	defer release() //nolint:errcheck // test teardown; unlock never errors here.

	_, runErr := pipeline.NewOrchestrator(f.cfg).Run(context.Background(), dryRunContext("2025-06-01"))
	require.ErrorIs(t, runErr, state.ErrLockHeld)
}
