package engine

import (
	"errors"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Choice is the engine and tier selected for one item.
type Choice struct {
	Engine Kind
	Tier   Tier

	// Downgraded is set when budget pressure forced a cheaper rung than
	// the configured preference.
	Downgraded bool
}

// Selector walks the budget ladder per item: configured tier, then
// balanced, then the free fallback. Selection probes the ledger with flat
// estimates; actual usage is settled after generation. Once a settle hits
// the ceiling the rest of the run stays on the fallback.
type Selector struct {
	engine    Kind
	preferred Tier
	ledger    *budget.Ledger
	exhausted bool
}

// NewSelector returns a selector for one run.
func NewSelector(engine Kind, preferred Tier, ledger *budget.Ledger) *Selector {
	return &Selector{engine: engine, preferred: preferred, ledger: ledger}
}

// Select picks the engine and tier for the next item.
func (s *Selector) Select(asOf dates.Date) Choice {
	if s.engine != KindPremium {
		return Choice{Engine: KindFallback}
	}

	if s.exhausted {
		return Choice{Engine: KindFallback, Downgraded: true}
	}

	if s.preferred == TierPremium && s.ledger.CanAfford(asOf, EstimatedPremiumCost) {
		return Choice{Engine: KindPremium, Tier: TierPremium}
	}

	if s.ledger.CanAfford(asOf, EstimatedBalancedCost) {
		return Choice{
			Engine:     KindPremium,
			Tier:       TierBalanced,
			Downgraded: s.preferred != TierBalanced,
		}
	}

	return Choice{Engine: KindFallback, Downgraded: true}
}

// Settle charges an item's actual cost. A charge past the ceiling marks the
// selector exhausted so the remainder of the run falls back, and reports
// whether that happened. Settling zero cost is a no-op.
func (s *Selector) Settle(asOf dates.Date, cost int64) (exhausted bool, err error) {
	if cost == 0 {
		return false, nil
	}

	chargeErr := s.ledger.Charge(asOf, cost)
	if errors.Is(chargeErr, budget.ErrBudgetExceeded) {
		s.exhausted = true

		return true, nil
	}

	return false, chargeErr
}
