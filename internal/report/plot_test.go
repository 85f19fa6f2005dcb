package report_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/report"
)

func TestBuildTrendPage_SectionsPerSignal(t *testing.T) {
	t.Parallel()

	g := newReportRig(t)
	seedWindowRows(t, g)

	rep := g.build(t, "24h")

	page := report.BuildTrendPage(rep)
	require.Len(t, page.Sections, 5)
	assert.Equal(t, "Indexed rate", page.Sections[0].Title)
	assert.Equal(t, "Published items", page.Sections[4].Title)

	var buf bytes.Buffer
	require.NoError(t, page.Render(&buf))

	html := buf.String()

	assert.Contains(t, html, "Rollout quality trends")
	assert.Contains(t, html, "Window 24h, 3 samples")
	assert.Contains(t, html, "finance")
	assert.Contains(t, html, "ai_tech")
	// lifestyle_pop has no in-window rows and stays off the charts.
	assert.NotContains(t, html, "lifestyle_pop")
}

func TestBuildTrendPage_EmptyWindow(t *testing.T) {
	t.Parallel()

	g := newReportRig(t)

	rep := g.build(t, "24h")

	page := report.BuildTrendPage(rep)
	assert.Empty(t, page.Sections)

	var buf bytes.Buffer
	require.NoError(t, report.RenderHTML(&buf, rep))
	assert.Contains(t, buf.String(), "Rollout quality trends")
}
