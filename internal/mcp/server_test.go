package mcp_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/mcp"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

type mcpRig struct {
	metrics *metrics.Store
	states  *state.Store
	server  *mcp.Server
}

func newMCPRig(t *testing.T) *mcpRig {
	t.Helper()

	dir := t.TempDir()

	ms, openErr := metrics.Open(filepath.Join(dir, "daily_metrics.jsonl"))
	require.NoError(t, openErr)

	st := state.NewStore(filepath.Join(dir, "rollout_state.json"))

	srv := mcp.NewServer(mcp.Config{
		Registry:      category.Default(),
		States:        st,
		Metrics:       ms,
		Ladder:        rollout.DefaultLadder(),
		BudgetCeiling: budget.DefaultCeilingMinorUnits,
	}, mcp.ServerDeps{})

	return &mcpRig{metrics: ms, states: st, server: srv}
}

func (g *mcpRig) seedRecord(t *testing.T, categoryID string, date dates.Date) {
	t.Helper()

	err := g.metrics.Append(metrics.Record{
		CategoryID:      categoryID,
		Date:            date,
		DuplicateRate:   0.02,
		PolicyFlagRate:  0.004,
		IndexedRate:     0.41,
		DeploySucceeded: true,
		PublishCount:    12,
		RPMEstimate:     17.5,
		RunID:           "mcp-test",
		RecordedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
}

func (g *mcpRig) seedDisabledCategory(t *testing.T, categoryID string) {
	t.Helper()

	asOf := dates.Date("2025-06-01")

	doc, loadErr := g.states.LoadOrInit(asOf, budget.DefaultCeilingMinorUnits, rollout.DefaultLadder())
	require.NoError(t, loadErr)

	cs := doc.Category(categoryID, rollout.DefaultLadder())
	cs.Enabled = false
	cs.DisabledReason = rollout.DisablePolicy
	cs.DisabledOn = asOf
	cs.LastEvaluatedDate = asOf
	doc.SetCategory(cs)

	require.NoError(t, g.states.Save(doc))
}

func TestNewServer_ReturnsNonNil(t *testing.T) {
	t.Parallel()

	rig := newMCPRig(t)
	require.NotNil(t, rig.server)
}

func TestNewServer_ToolsRegistered(t *testing.T) {
	t.Parallel()

	rig := newMCPRig(t)

	tools := rig.server.ListToolNames()
	assert.Len(t, tools, 2)
	assert.Contains(t, tools, "rollout_status")
	assert.Contains(t, tools, "ops_report")
}

func TestServer_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	rig := newMCPRig(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rig.server.Run(ctx)
	require.Error(t, err)
}
