// Package rollout implements the quality-gated rollout controller: the
// trailing-window evaluator, the disable-wins verdict combinator, and the
// per-category publish-limit state machine.
package rollout

// QualityVerdict classifies a category's trailing quality window.
type QualityVerdict string

const (
	// VerdictPromote means every record in the full window met the
	// promotion thresholds.
	VerdictPromote QualityVerdict = "promote"

	// VerdictHold means the window is complete but at least one record
	// missed a threshold.
	VerdictHold QualityVerdict = "hold"

	// VerdictInsufficient means history is shorter than the window.
	VerdictInsufficient QualityVerdict = "insufficient"
)

// DisableReason identifies which safety cutoff tripped.
type DisableReason string

const (
	// DisablePolicy indicates the trailing policy-flag rate crossed the cutoff.
	DisablePolicy DisableReason = "policy"

	// DisableDeploy indicates too many consecutive deploy failures.
	DisableDeploy DisableReason = "deploy"
)

// Verdict bundles the quality classification with any disable signals for
// one evaluation cycle. Both parts are computed independently; Combine
// resolves their precedence.
type Verdict struct {
	// Quality is the promotion-window classification.
	Quality QualityVerdict

	// DisableSignals lists every tripped cutoff, policy before deploy.
	DisableSignals []DisableReason

	// DayQualified reports whether the newest record individually met the
	// per-day thresholds. Drives promotion-streak bookkeeping.
	DayQualified bool
}

// Action is the transition the machine applies for a day.
type Action string

const (
	// ActionPromote advances one ladder rung.
	ActionPromote Action = "promote"

	// ActionHold leaves the state unchanged.
	ActionHold Action = "hold"

	// ActionDisable moves the category to the terminal disabled state.
	ActionDisable Action = "disable"
)

// Decision is the single resolved outcome of an evaluation cycle.
type Decision struct {
	// Action is what the machine should apply.
	Action Action

	// Reason is set when Action is ActionDisable.
	Reason DisableReason
}

// Combine resolves a verdict bundle into one decision. Disable signals take
// precedence over promotion: a category that both qualifies for promotion
// and trips a cutoff on the same day is disabled, never promoted.
func Combine(v Verdict) Decision {
	if len(v.DisableSignals) > 0 {
		return Decision{Action: ActionDisable, Reason: v.DisableSignals[0]}
	}

	if v.Quality == VerdictPromote {
		return Decision{Action: ActionPromote}
	}

	return Decision{Action: ActionHold}
}
