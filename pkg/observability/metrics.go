package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRunsTotal       = "rollgate.runs.total"
	metricRunDuration     = "rollgate.run.duration.seconds"
	metricPublishedTotal  = "rollgate.items.published.total"
	metricPromotionsTotal = "rollgate.promotions.total"
	metricDisablesTotal   = "rollgate.disables.total"
	metricFallbacksTotal  = "rollgate.engine.fallbacks.total"
	metricSpendTotal      = "rollgate.budget.spend.minor_units"
	metricReplayTotal     = "rollgate.backfill.units.total"
	metricToolCalls       = "rollgate.mcp.calls.total"
	metricToolDuration    = "rollgate.mcp.call.duration.seconds"

	attrStatus   = "status"
	attrCategory = "category"
	attrReason   = "reason"
	attrEngine   = "engine"
	attrOutcome  = "outcome"
	attrTool     = "tool"
)

// Replay unit outcomes recorded by the backfill command.
const (
	ReplayOutcomeReplayed = "replayed"
	ReplayOutcomeSkipped  = "skipped"
	ReplayOutcomeMissing  = "missing"
)

// durationBucketBoundaries covers 10ms to 600s, spanning single-day report
// builds up to multi-month backfill replays.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// ControllerMetrics holds the OTel instruments for rollout controller activity.
type ControllerMetrics struct {
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	publishedTotal  metric.Int64Counter
	promotionsTotal metric.Int64Counter
	disablesTotal   metric.Int64Counter
	fallbacksTotal  metric.Int64Counter
	spendTotal      metric.Int64Counter
	replayTotal     metric.Int64Counter
	toolCalls       metric.Int64Counter
	toolDuration    metric.Float64Histogram
}

// NewControllerMetrics creates the controller instruments from the given meter.
func NewControllerMetrics(mt metric.Meter) (*ControllerMetrics, error) {
	runs, err := mt.Int64Counter(metricRunsTotal,
		metric.WithDescription("Total number of pipeline runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricRunDuration,
		metric.WithDescription("Pipeline run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRunDuration, err)
	}

	published, err := mt.Int64Counter(metricPublishedTotal,
		metric.WithDescription("Total content items published"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPublishedTotal, err)
	}

	promotions, err := mt.Int64Counter(metricPromotionsTotal,
		metric.WithDescription("Total publish limit promotions"),
		metric.WithUnit("{promotion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPromotionsTotal, err)
	}

	disables, err := mt.Int64Counter(metricDisablesTotal,
		metric.WithDescription("Total category disables"),
		metric.WithUnit("{disable}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDisablesTotal, err)
	}

	fallbacks, err := mt.Int64Counter(metricFallbacksTotal,
		metric.WithDescription("Total engine tier fallbacks under budget pressure"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFallbacksTotal, err)
	}

	spend, err := mt.Int64Counter(metricSpendTotal,
		metric.WithDescription("Total generation spend in KRW minor units"),
		metric.WithUnit("{krw}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSpendTotal, err)
	}

	replays, err := mt.Int64Counter(metricReplayTotal,
		metric.WithDescription("Total backfill evaluation units by outcome"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricReplayTotal, err)
	}

	calls, err := mt.Int64Counter(metricToolCalls,
		metric.WithDescription("Total MCP tool invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolCalls, err)
	}

	callDuration, err := mt.Float64Histogram(metricToolDuration,
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricToolDuration, err)
	}

	return &ControllerMetrics{
		runsTotal:       runs,
		runDuration:     duration,
		publishedTotal:  published,
		promotionsTotal: promotions,
		disablesTotal:   disables,
		fallbacksTotal:  fallbacks,
		spendTotal:      spend,
		replayTotal:     replays,
		toolCalls:       calls,
		toolDuration:    callDuration,
	}, nil
}

// RecordRun records one completed pipeline run with its mode, outcome status,
// and wall-clock duration.
func (cm *ControllerMetrics) RecordRun(ctx context.Context, appMode AppMode, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrMode, string(appMode)),
		attribute.String(attrStatus, status),
	)

	cm.runsTotal.Add(ctx, 1, attrs)
	cm.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrMode, string(appMode)),
	))
}

// RecordPublish records count items published for a category.
func (cm *ControllerMetrics) RecordPublish(ctx context.Context, categoryID string, count int64) {
	cm.publishedTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String(attrCategory, categoryID),
	))
}

// RecordPromotion records one publish limit promotion for a category.
func (cm *ControllerMetrics) RecordPromotion(ctx context.Context, categoryID string) {
	cm.promotionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, categoryID),
	))
}

// RecordDisable records one category disable with its reason.
func (cm *ControllerMetrics) RecordDisable(ctx context.Context, categoryID, reason string) {
	cm.disablesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, categoryID),
		attribute.String(attrReason, reason),
	))
}

// RecordFallback records one engine tier downgrade for a category.
func (cm *ControllerMetrics) RecordFallback(ctx context.Context, categoryID string) {
	cm.fallbacksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, categoryID),
	))
}

// RecordSpend records generation spend in KRW minor units for an engine.
func (cm *ControllerMetrics) RecordSpend(ctx context.Context, engine string, minorUnits int64) {
	cm.spendTotal.Add(ctx, minorUnits, metric.WithAttributes(
		attribute.String(attrEngine, engine),
	))
}

// RecordReplay records count backfill units resolved with the given outcome.
func (cm *ControllerMetrics) RecordReplay(ctx context.Context, outcome string, count int64) {
	cm.replayTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String(attrOutcome, outcome),
	))
}

// RecordToolCall records one MCP tool invocation with its outcome status
// and duration.
func (cm *ControllerMetrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	cm.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	))
	cm.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(attrTool, tool),
	))
}
