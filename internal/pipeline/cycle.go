package pipeline

import (
	"fmt"

	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
)

// Cycle is the per-day evaluation fold shared by live runs and archive
// backfills: record the day's metrics, evaluate the trailing history, apply
// the state-machine transition.
type Cycle struct {
	Metrics   *metrics.Store
	Evaluator *rollout.Evaluator
	Machine   *rollout.Machine
}

// NewCycle wires the fold over a metrics store with the given thresholds
// and ladder.
func NewCycle(store *metrics.Store, thresholds rollout.Thresholds, ladder rollout.Ladder) *Cycle {
	return &Cycle{
		Metrics:   store,
		Evaluator: rollout.NewEvaluator(thresholds),
		Machine:   rollout.NewMachine(ladder, thresholds),
	}
}

// FoldDay folds one record into the document's category state. A record
// already present for the (category, date) key is evaluated without
// re-appending, which makes archive replays idempotent. The document is
// mutated in memory only; persisting it is the caller's job.
func (c *Cycle) FoldDay(doc *state.Document, rec metrics.Record) (rollout.Verdict, rollout.Transition, error) {
	if !c.Metrics.Has(rec.Category, rec.Date) {
		appendErr := c.Metrics.Append(rec)
		if appendErr != nil {
			return rollout.Verdict{}, rollout.Transition{}, fmt.Errorf("append metrics: %w", appendErr)
		}
	}

	verdict := c.Evaluator.Evaluate(c.Metrics.ByCategory(rec.Category))

	cs := doc.Category(rec.Category, c.Machine.Ladder())

	next, transition := c.Machine.Apply(cs, rec, verdict)
	doc.SetCategory(next)

	return verdict, transition, nil
}
