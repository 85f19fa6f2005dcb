package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
)

var (
	titleStyle     = color.New(color.Bold)
	statusEnabled  = color.New(color.FgGreen)
	statusDisabled = color.New(color.FgRed)
	emptyStyle     = color.New(color.FgYellow)
)

// RenderText writes the report as a terminal summary: a per-category table
// with colored status, overall averages, and the budget line.
func RenderText(w io.Writer, rep *Report) error {
	var out strings.Builder

	fmt.Fprintf(&out, "%s  window %s | samples %d | generated %s\n\n",
		titleStyle.Sprint("OPS REPORT"), rep.Window, rep.Samples,
		rep.GeneratedAt.Format(time.RFC3339))

	out.WriteString(categoryTable(rep.Categories))
	out.WriteString("\n\n")

	if rep.Samples == 0 {
		out.WriteString(emptyStyle.Sprint("no samples in window"))
		out.WriteString("\n")
	} else {
		fmt.Fprintf(&out, "averages  dup %.4f | policy %.4f | indexed %.4f | rpm %.2f | publish %.1f\n",
			rep.Averages.DuplicateRate, rep.Averages.PolicyFlagRate,
			rep.Averages.IndexedRate, rep.Averages.RPMEstimate, rep.Averages.PublishCount)
	}

	fmt.Fprintf(&out, "budget    period %s | spent %s / %s KRW | remaining %s\n",
		rep.Budget.PeriodStart,
		humanize.Comma(rep.Budget.SpentMinorUnits),
		humanize.Comma(rep.Budget.CeilingMinorUnits),
		humanize.Comma(rep.Budget.RemainingUnits))

	if _, writeErr := io.WriteString(w, out.String()); writeErr != nil {
		return fmt.Errorf("write report: %w", writeErr)
	}

	return nil
}

func categoryTable(categories []CategorySummary) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{
		"category", "status", "limit", "streak", "fails",
		"samples", "dup", "policy", "indexed", "rpm", "last day",
	})

	for _, cs := range categories {
		tbl.AppendRow(table.Row{
			cs.CategoryID,
			statusCell(cs.State),
			cs.State.PublishLimit,
			cs.State.PromotionStreak,
			cs.State.DeployFailureStreak,
			cs.Samples,
			rateCell(cs.Samples, cs.Averages.DuplicateRate),
			rateCell(cs.Samples, cs.Averages.PolicyFlagRate),
			rateCell(cs.Samples, cs.Averages.IndexedRate),
			rpmCell(cs.Samples, cs.Averages.RPMEstimate),
			lastDayCell(cs),
		})
	}

	return tbl.Render()
}

func statusCell(cs rollout.CategoryState) string {
	if cs.Enabled {
		return statusEnabled.Sprint("enabled")
	}

	return statusDisabled.Sprintf("disabled (%s)", cs.DisabledReason)
}

func rateCell(samples int, rate float64) string {
	if samples == 0 {
		return "-"
	}

	return fmt.Sprintf("%.4f", rate)
}

func rpmCell(samples int, rpm float64) string {
	if samples == 0 {
		return "-"
	}

	return fmt.Sprintf("%.2f", rpm)
}

func lastDayCell(cs CategorySummary) string {
	if cs.Latest == nil {
		return "-"
	}

	return string(cs.Latest.Date)
}
