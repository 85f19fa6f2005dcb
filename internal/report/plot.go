package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
	"github.com/Sumatoshi-tech/rollgate/pkg/plotpage"
)

// RenderHTML writes the report as a self-contained HTML trend page.
func RenderHTML(w io.Writer, rep *Report) error {
	return BuildTrendPage(rep).Render(w)
}

// BuildTrendPage assembles per-category trend charts over the report
// window: one line chart per quality signal plus a published-items bar
// chart. Categories without in-window rows are left off the charts.
func BuildTrendPage(rep *Report) *plotpage.Page {
	page := plotpage.NewPage("Rollout quality trends",
		fmt.Sprintf("Window %s, %d samples, generated %s.",
			rep.Window, rep.Samples, rep.GeneratedAt.Format(time.RFC3339)))

	days, perCategory := trendIndex(rep.Trend)
	if len(days) == 0 {
		return page
	}

	labels := make([]string, len(days))
	for i, day := range days {
		labels[i] = string(day)
	}

	cOpts := plotpage.NewChartOpts(page.Theme)
	palette := page.Theme.SeriesPalette()

	lineFor := func(pick func(metrics.Record) float64) []plotpage.LineSeries {
		return lineSeries(rep.Categories, days, perCategory, pick, palette)
	}

	page.Add(
		plotpage.Section{
			Title:    "Indexed rate",
			Subtitle: "Estimated search-index coverage per day.",
			Chart: plotpage.BuildLineChart(cOpts, labels,
				lineFor(func(r metrics.Record) float64 { return r.IndexedRate }), "rate"),
		},
		plotpage.Section{
			Title:    "Duplicate rate",
			Subtitle: "Share of candidates rejected as duplicates.",
			Chart: plotpage.BuildLineChart(cOpts, labels,
				lineFor(func(r metrics.Record) float64 { return r.DuplicateRate }), "rate"),
		},
		plotpage.Section{
			Title:    "Policy flag rate",
			Subtitle: "Share of candidates carrying policy flags.",
			Chart: plotpage.BuildLineChart(cOpts, labels,
				lineFor(func(r metrics.Record) float64 { return r.PolicyFlagRate }), "rate"),
		},
		plotpage.Section{
			Title:    "RPM estimate",
			Subtitle: "Blended revenue-per-mille estimate.",
			Chart: plotpage.BuildLineChart(cOpts, labels,
				lineFor(func(r metrics.Record) float64 { return r.RPMEstimate }), "KRW per mille"),
		},
		publishedSection(cOpts, rep.Categories, perCategory, palette),
	)

	return page
}

// trendIndex splits rows into the sorted day axis and a per-category,
// per-day lookup.
func trendIndex(rows []metrics.Record) ([]dates.Date, map[string]map[dates.Date]metrics.Record) {
	seen := make(map[dates.Date]struct{})
	perCategory := make(map[string]map[dates.Date]metrics.Record)

	for _, row := range rows {
		seen[row.Date] = struct{}{}

		if perCategory[row.Category] == nil {
			perCategory[row.Category] = make(map[dates.Date]metrics.Record)
		}

		perCategory[row.Category][row.Date] = row
	}

	days := make([]dates.Date, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	return days, perCategory
}

func lineSeries(
	categories []CategorySummary,
	days []dates.Date,
	perCategory map[string]map[dates.Date]metrics.Record,
	pick func(metrics.Record) float64,
	palette []string,
) []plotpage.LineSeries {
	var out []plotpage.LineSeries

	for i, cs := range categories {
		rows := perCategory[cs.CategoryID]
		if len(rows) == 0 {
			continue
		}

		data := make([]plotpage.SeriesData, len(days))

		for j, day := range days {
			if rec, ok := rows[day]; ok {
				data[j] = pick(rec)
			} else {
				data[j] = plotpage.Gap
			}
		}

		out = append(out, plotpage.LineSeries{
			Name:  cs.CategoryID,
			Data:  data,
			Color: palette[i%len(palette)],
		})
	}

	return out
}

func publishedSection(
	cOpts *plotpage.ChartOpts,
	categories []CategorySummary,
	perCategory map[string]map[dates.Date]metrics.Record,
	palette []string,
) plotpage.Section {
	var (
		labels []string
		totals []plotpage.SeriesData
	)

	for _, cs := range categories {
		rows := perCategory[cs.CategoryID]
		if len(rows) == 0 {
			continue
		}

		total := 0
		for _, rec := range rows {
			total += rec.PublishCount
		}

		labels = append(labels, cs.CategoryID)
		totals = append(totals, total)
	}

	return plotpage.Section{
		Title:    "Published items",
		Subtitle: "Items published per category over the window.",
		Chart: plotpage.BuildBarChart(cOpts, labels,
			[]plotpage.BarSeries{{Name: "published", Data: totals, Color: palette[1]}}, "items"),
	}
}
