// Package metrics implements the append-only daily metrics log: one record
// per (category, date) with the quality signals that drive rollout decisions.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Sentinel errors for record validation and store writes.
var (
	// ErrDuplicateRecord indicates a second record for the same (category, date).
	ErrDuplicateRecord = errors.New("metrics record already exists for this category and date")
	// ErrMissingCategory indicates a record without a category.
	ErrMissingCategory = errors.New("metrics record category must not be empty")
	// ErrMissingDate indicates a record without a date.
	ErrMissingDate = errors.New("metrics record date must not be empty")
	// ErrRateOutOfRange indicates a rate outside [0, 1].
	ErrRateOutOfRange = errors.New("metrics rate must be within [0, 1]")
)

// Record is one day's quality signals for one category. Records are
// append-only: corrections are new entries, never in-place edits.
type Record struct {
	// Category is the content stream this record belongs to.
	Category string `json:"category"`

	// Date is the calendar day the record covers.
	Date dates.Date `json:"date"`

	// DuplicateRate is the fraction of candidates rejected as duplicates.
	DuplicateRate float64 `json:"duplicate_rate"`

	// PolicyFlagRate is the fraction of candidates carrying policy flags.
	PolicyFlagRate float64 `json:"policy_flag_rate"`

	// IndexedRate is the observed or estimated search-index coverage.
	IndexedRate float64 `json:"indexed_rate"`

	// DeploySucceeded reports whether the day's publish step completed.
	DeploySucceeded bool `json:"deploy_succeeded"`

	// PublishCount is how many items were published for the day.
	PublishCount int `json:"publish_count"`

	// RPMEstimate is the blended revenue-per-mille estimate for the day.
	RPMEstimate float64 `json:"rpm_estimate"`

	// RunID ties the record to the pipeline invocation that produced it.
	RunID string `json:"run_id,omitempty"`

	// RecordedAt is the wall-clock instant the record was appended.
	RecordedAt time.Time `json:"recorded_at"`
}

// Validate checks record invariants.
func (r Record) Validate() error {
	if r.Category == "" {
		return ErrMissingCategory
	}

	if r.Date.IsZero() {
		return ErrMissingDate
	}

	rates := map[string]float64{
		"duplicate_rate":   r.DuplicateRate,
		"policy_flag_rate": r.PolicyFlagRate,
		"indexed_rate":     r.IndexedRate,
	}

	for name, rate := range rates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s=%v", ErrRateOutOfRange, name, rate)
		}
	}

	return nil
}

// QualifiesForPromotion reports whether this single record satisfies the
// per-day promotion thresholds.
func (r Record) QualifiesForPromotion(maxDuplicate, maxPolicyFlag, minIndexed float64) bool {
	if r.DuplicateRate >= maxDuplicate {
		return false
	}

	if r.PolicyFlagRate >= maxPolicyFlag {
		return false
	}

	return r.IndexedRate >= minIndexed
}
