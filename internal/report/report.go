// Package report builds windowed operational summaries from the metrics
// log and the state document, and renders them as text, JSON, or an HTML
// trend page. Building a report never mutates persisted state.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Averages holds mean daily signals over the report window, rounded to
// four decimals.
type Averages struct {
	DuplicateRate  float64 `json:"duplicate_rate"`
	PolicyFlagRate float64 `json:"policy_flag_rate"`
	IndexedRate    float64 `json:"indexed_rate"`
	RPMEstimate    float64 `json:"rpm_estimate"`
	PublishCount   float64 `json:"publish_count"`
}

// CategorySummary is one category's slice of the report.
type CategorySummary struct {
	CategoryID string                `json:"category_id"`
	Samples    int                   `json:"samples"`
	Averages   Averages              `json:"averages"`
	Latest     *metrics.Record       `json:"latest,omitempty"`
	State      rollout.CategoryState `json:"state"`
}

// Report is a complete windowed operational summary.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Window      string            `json:"window"`
	Samples     int               `json:"samples"`
	Averages    Averages          `json:"averages"`
	Latest      *metrics.Record   `json:"latest,omitempty"`
	Categories  []CategorySummary `json:"categories"`
	Disabled    []string          `json:"disabled_categories"`
	Budget      budget.Snapshot   `json:"budget"`
	MetricsFile string            `json:"metrics_file"`
	StateFile   string            `json:"state_file"`

	// Trend carries the raw in-window rows for chart rendering. It is
	// not part of the JSON surface.
	Trend []metrics.Record `json:"-"`
}

// Config wires a report builder.
type Config struct {
	Registry      *category.Registry
	States        *state.Store
	Metrics       *metrics.Store
	Ladder        rollout.Ladder
	BudgetCeiling int64
}

// Builder assembles reports from the live stores.
type Builder struct {
	registry *category.Registry
	states   *state.Store
	metrics  *metrics.Store
	ladder   rollout.Ladder
	ceiling  int64
}

// NewBuilder wires a builder.
func NewBuilder(cfg Config) *Builder {
	return &Builder{
		registry: cfg.Registry,
		states:   cfg.States,
		metrics:  cfg.Metrics,
		ladder:   cfg.Ladder,
		ceiling:  cfg.BudgetCeiling,
	}
}

// Build assembles the report for rows recorded within the window before
// now. A missing state file reports fresh-install defaults; a corrupt one
// is an error.
func (b *Builder) Build(window Window, now time.Time) (*Report, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	doc, loadErr := b.states.LoadOrInit(dates.FromTime(now), b.ceiling, b.ladder)
	if loadErr != nil {
		return nil, loadErr
	}

	rows := b.metrics.Since(now.Add(-window.Duration()))

	rep := &Report{
		GeneratedAt: now,
		Window:      window.String(),
		Samples:     len(rows),
		Averages:    averageRows(rows),
		Latest:      newestRow(rows),
		Budget:      doc.Budget.Snapshot(dates.FromTime(now)),
		MetricsFile: b.metrics.Path(),
		StateFile:   b.states.Path(),
		Trend:       rows,
	}

	byCategory := make(map[string][]metrics.Record)
	for _, row := range rows {
		byCategory[row.Category] = append(byCategory[row.Category], row)
	}

	for _, id := range b.reportedCategories(byCategory) {
		catRows := byCategory[id]

		rep.Categories = append(rep.Categories, CategorySummary{
			CategoryID: id,
			Samples:    len(catRows),
			Averages:   averageRows(catRows),
			Latest:     newestRow(catRows),
			State:      doc.Category(id, b.ladder),
		})
	}

	for id, cs := range doc.Categories {
		if !cs.Enabled {
			rep.Disabled = append(rep.Disabled, id)
		}
	}

	sort.Strings(rep.Disabled)

	return rep, nil
}

// reportedCategories returns registry categories in declaration order,
// followed by any extra categories present in the window rows. A category
// dropped from the registry keeps reporting while its history is in range.
func (b *Builder) reportedCategories(byCategory map[string][]metrics.Record) []string {
	ids := b.registry.IDs()

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	var extra []string

	for id := range byCategory {
		if _, ok := known[id]; !ok {
			extra = append(extra, id)
		}
	}

	sort.Strings(extra)

	return append(ids, extra...)
}

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, rep *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if encodeErr := enc.Encode(rep); encodeErr != nil {
		return fmt.Errorf("encode report: %w", encodeErr)
	}

	return nil
}

func averageRows(rows []metrics.Record) Averages {
	if len(rows) == 0 {
		return Averages{}
	}

	var avg Averages

	for _, row := range rows {
		avg.DuplicateRate += row.DuplicateRate
		avg.PolicyFlagRate += row.PolicyFlagRate
		avg.IndexedRate += row.IndexedRate
		avg.RPMEstimate += row.RPMEstimate
		avg.PublishCount += float64(row.PublishCount)
	}

	n := float64(len(rows))

	avg.DuplicateRate = round4(avg.DuplicateRate / n)
	avg.PolicyFlagRate = round4(avg.PolicyFlagRate / n)
	avg.IndexedRate = round4(avg.IndexedRate / n)
	avg.RPMEstimate = round4(avg.RPMEstimate / n)
	avg.PublishCount = round4(avg.PublishCount / n)

	return avg
}

// newestRow picks the most recently appended row, breaking RecordedAt ties
// by the later calendar date.
func newestRow(rows []metrics.Record) *metrics.Record {
	if len(rows) == 0 {
		return nil
	}

	newest := rows[0]

	for _, row := range rows[1:] {
		if row.RecordedAt.After(newest.RecordedAt) ||
			(row.RecordedAt.Equal(newest.RecordedAt) && row.Date.After(newest.Date)) {
			newest = row
		}
	}

	return &newest
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
