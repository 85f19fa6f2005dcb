// Package budget tracks monthly generation spend in KRW minor units and
// answers affordability checks for engine selection.
package budget

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// DefaultCeilingMinorUnits is the monthly spend ceiling applied when the
// configuration does not set one.
const DefaultCeilingMinorUnits int64 = 50_000

// Errors surfaced by the ledger.
var (
	// ErrBudgetExceeded signals a charge that would push spend past the
	// ceiling. The charge is not applied.
	ErrBudgetExceeded = errors.New("monthly budget exceeded")

	// ErrNegativeAmount signals a negative charge or affordability probe.
	ErrNegativeAmount = errors.New("negative amount")

	// ErrCorruptLedger signals persisted ledger fields that cannot be
	// resumed from.
	ErrCorruptLedger = errors.New("corrupt budget ledger")
)

// Ledger is the durable monthly spend record. Amounts are KRW minor units.
// Rollover is lazy: the first charge or affordability check in a new
// calendar month zeroes the spend and advances the period. There is no
// background timer.
type Ledger struct {
	PeriodStart       dates.Date `json:"period_start"`
	SpentMinorUnits   int64      `json:"spent_minor_units"`
	CeilingMinorUnits int64      `json:"ceiling_minor_units"`
}

// NewLedger returns an empty ledger whose period covers asOf's month.
func NewLedger(asOf dates.Date, ceiling int64) Ledger {
	return Ledger{
		PeriodStart:       asOf.MonthStart(),
		CeilingMinorUnits: ceiling,
	}
}

// Validate rejects persisted ledgers the controller cannot resume from.
func (l Ledger) Validate() error {
	if l.SpentMinorUnits < 0 {
		return fmt.Errorf("%w: negative spend %d", ErrCorruptLedger, l.SpentMinorUnits)
	}

	if l.CeilingMinorUnits < 0 {
		return fmt.Errorf("%w: negative ceiling %d", ErrCorruptLedger, l.CeilingMinorUnits)
	}

	if !l.PeriodStart.IsZero() && l.PeriodStart != l.PeriodStart.MonthStart() {
		return fmt.Errorf("%w: period start %s is not the first of its month", ErrCorruptLedger, l.PeriodStart)
	}

	return nil
}

// roll resets the ledger when asOf falls outside the current period.
func (l *Ledger) roll(asOf dates.Date) {
	start := asOf.MonthStart()
	if l.PeriodStart == start {
		return
	}

	l.PeriodStart = start
	l.SpentMinorUnits = 0
}

// CanAfford reports whether a charge of amount would stay within the
// ceiling. It rolls the period forward when the month changed but never
// touches the spend.
func (l *Ledger) CanAfford(asOf dates.Date, amount int64) bool {
	if amount < 0 {
		return false
	}

	l.roll(asOf)

	return l.SpentMinorUnits+amount <= l.CeilingMinorUnits
}

// Charge adds amount to the period's spend. A charge that would exceed the
// ceiling fails with ErrBudgetExceeded and leaves the spend unchanged.
func (l *Ledger) Charge(asOf dates.Date, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	l.roll(asOf)

	if l.SpentMinorUnits+amount > l.CeilingMinorUnits {
		return fmt.Errorf("%w: spent %d + charge %d > ceiling %d",
			ErrBudgetExceeded, l.SpentMinorUnits, amount, l.CeilingMinorUnits)
	}

	l.SpentMinorUnits += amount

	return nil
}

// Remaining returns the headroom left in the current period.
func (l *Ledger) Remaining(asOf dates.Date) int64 {
	l.roll(asOf)

	if l.SpentMinorUnits >= l.CeilingMinorUnits {
		return 0
	}

	return l.CeilingMinorUnits - l.SpentMinorUnits
}

// Snapshot is the read-only ledger view embedded in reports and summaries.
type Snapshot struct {
	PeriodStart       dates.Date `json:"period_start"`
	SpentMinorUnits   int64      `json:"spent_minor_units"`
	CeilingMinorUnits int64      `json:"ceiling_minor_units"`
	RemainingUnits    int64      `json:"remaining_minor_units"`
}

// Snapshot captures the ledger as of the given day.
func (l *Ledger) Snapshot(asOf dates.Date) Snapshot {
	l.roll(asOf)

	return Snapshot{
		PeriodStart:       l.PeriodStart,
		SpentMinorUnits:   l.SpentMinorUnits,
		CeilingMinorUnits: l.CeilingMinorUnits,
		RemainingUnits:    l.Remaining(asOf),
	}
}
