package rollout

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
)

// ErrInvalidThresholds signals a threshold set that cannot gate anything.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Default threshold values. Rates are fractions in [0, 1].
const (
	// DefaultWindowDays is the promotion window length in days.
	DefaultWindowDays = 7

	// DefaultMaxDuplicateRate is the exclusive per-day duplicate-rate ceiling.
	DefaultMaxDuplicateRate = 0.05

	// DefaultMaxPolicyFlagRate is the exclusive per-day policy-flag ceiling.
	DefaultMaxPolicyFlagRate = 0.01

	// DefaultMinIndexedRate is the inclusive per-day indexed-rate floor.
	DefaultMinIndexedRate = 0.35

	// DefaultPolicyDisableRate is the trailing mean policy-flag rate at or
	// above which a category is disabled.
	DefaultPolicyDisableRate = 0.03

	// DefaultDeployFailureLimit is the consecutive deploy-failure count at
	// which a category is disabled.
	DefaultDeployFailureLimit = 3

	// DefaultDisableLookback caps how many trailing records feed the
	// policy-disable mean. Matches the retained daily history depth.
	DefaultDisableLookback = 120
)

// Thresholds holds every cutoff the evaluator applies.
type Thresholds struct {
	WindowDays         int     `json:"window_days"          mapstructure:"window_days"`
	MaxDuplicateRate   float64 `json:"max_duplicate_rate"   mapstructure:"max_duplicate_rate"`
	MaxPolicyFlagRate  float64 `json:"max_policy_flag_rate" mapstructure:"max_policy_flag_rate"`
	MinIndexedRate     float64 `json:"min_indexed_rate"     mapstructure:"min_indexed_rate"`
	PolicyDisableRate  float64 `json:"policy_disable_rate"  mapstructure:"policy_disable_rate"`
	DeployFailureLimit int     `json:"deploy_failure_limit" mapstructure:"deploy_failure_limit"`
	DisableLookback    int     `json:"disable_lookback"     mapstructure:"disable_lookback"`
}

// DefaultThresholds returns the production cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowDays:         DefaultWindowDays,
		MaxDuplicateRate:   DefaultMaxDuplicateRate,
		MaxPolicyFlagRate:  DefaultMaxPolicyFlagRate,
		MinIndexedRate:     DefaultMinIndexedRate,
		PolicyDisableRate:  DefaultPolicyDisableRate,
		DeployFailureLimit: DefaultDeployFailureLimit,
		DisableLookback:    DefaultDisableLookback,
	}
}

// Validate rejects threshold sets that would make the gates vacuous.
func (t Thresholds) Validate() error {
	if t.WindowDays <= 0 {
		return fmt.Errorf("%w: window days must be positive, got %d", ErrInvalidThresholds, t.WindowDays)
	}

	if t.DeployFailureLimit <= 0 {
		return fmt.Errorf("%w: deploy failure limit must be positive, got %d", ErrInvalidThresholds, t.DeployFailureLimit)
	}

	if t.DisableLookback < t.WindowDays {
		return fmt.Errorf("%w: disable lookback %d shorter than window %d", ErrInvalidThresholds, t.DisableLookback, t.WindowDays)
	}

	for name, rate := range map[string]float64{
		"max_duplicate_rate":   t.MaxDuplicateRate,
		"max_policy_flag_rate": t.MaxPolicyFlagRate,
		"min_indexed_rate":     t.MinIndexedRate,
		"policy_disable_rate":  t.PolicyDisableRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: %s %v outside [0, 1]", ErrInvalidThresholds, name, rate)
		}
	}

	return nil
}

// Evaluator classifies trailing daily-metrics history. It is pure: it reads
// records and returns verdicts, never mutating state or history.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator returns an evaluator applying the given thresholds.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate classifies a category's history, oldest record first, as stores
// return it. The newest record is the day under evaluation. Only the
// trailing DisableLookback records participate.
func (e *Evaluator) Evaluate(history []metrics.Record) Verdict {
	if len(history) > e.thresholds.DisableLookback {
		history = history[len(history)-e.thresholds.DisableLookback:]
	}

	verdict := Verdict{Quality: e.quality(history)}

	if len(history) > 0 {
		verdict.DayQualified = e.qualifies(history[len(history)-1])
	}

	if e.policyTripped(history) {
		verdict.DisableSignals = append(verdict.DisableSignals, DisablePolicy)
	}

	if e.deployTripped(history) {
		verdict.DisableSignals = append(verdict.DisableSignals, DisableDeploy)
	}

	return verdict
}

// quality classifies the trailing promotion window.
func (e *Evaluator) quality(history []metrics.Record) QualityVerdict {
	if len(history) < e.thresholds.WindowDays {
		return VerdictInsufficient
	}

	window := history[len(history)-e.thresholds.WindowDays:]
	for _, rec := range window {
		if !e.qualifies(rec) {
			return VerdictHold
		}
	}

	return VerdictPromote
}

func (e *Evaluator) qualifies(rec metrics.Record) bool {
	return rec.QualifiesForPromotion(
		e.thresholds.MaxDuplicateRate,
		e.thresholds.MaxPolicyFlagRate,
		e.thresholds.MinIndexedRate,
	)
}

// policyTripped reports whether the mean policy-flag rate over the trailing
// records reached the disable cutoff.
func (e *Evaluator) policyTripped(history []metrics.Record) bool {
	if len(history) == 0 {
		return false
	}

	var sum float64
	for _, rec := range history {
		sum += rec.PolicyFlagRate
	}

	return sum/float64(len(history)) >= e.thresholds.PolicyDisableRate
}

// deployTripped reports whether the newest records form an unbroken run of
// deploy failures at least DeployFailureLimit long.
func (e *Evaluator) deployTripped(history []metrics.Record) bool {
	failures := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].DeploySucceeded {
			break
		}

		failures++
		if failures >= e.thresholds.DeployFailureLimit {
			return true
		}
	}

	return false
}
