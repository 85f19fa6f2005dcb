package rollout

import (
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Transition records what one Apply call did, for run summaries and logs.
type Transition struct {
	CategoryID string        `json:"category_id"`
	Date       dates.Date    `json:"date"`
	Action     Action        `json:"action"`
	Reason     DisableReason `json:"reason,omitempty"`
	FromLimit  int           `json:"from_limit"`
	ToLimit    int           `json:"to_limit"`

	// Skipped is set when nothing was applied: the category is already
	// disabled, or the record's date is not after the last evaluated one.
	Skipped bool `json:"skipped,omitempty"`
}

// Changed reports whether the transition altered the category's position.
func (t Transition) Changed() bool {
	return !t.Skipped && (t.FromLimit != t.ToLimit || t.Action == ActionDisable)
}

// Machine applies evaluation outcomes to per-category rollout state. It owns
// the promotion gate: a category climbs one rung only when the window
// verdict is promote and the qualifying streak since the last climb has
// reached the window length again. Disabling always wins over promotion.
type Machine struct {
	ladder     Ladder
	thresholds Thresholds
}

// NewMachine returns a machine over the given ladder and thresholds.
func NewMachine(ladder Ladder, thresholds Thresholds) *Machine {
	return &Machine{ladder: ladder, thresholds: thresholds}
}

// Ladder returns the machine's publish-limit ladder.
func (m *Machine) Ladder() Ladder {
	return m.ladder
}

// Apply folds one day's record and verdict into the category state and
// returns the successor state. Disabled state is terminal: no record or
// verdict changes it. Records dated at or before the last evaluated date
// are skipped, which makes archive replays idempotent.
func (m *Machine) Apply(state CategoryState, rec metrics.Record, verdict Verdict) (CategoryState, Transition) {
	transition := Transition{
		CategoryID: state.CategoryID,
		Date:       rec.Date,
		Action:     ActionHold,
		FromLimit:  state.PublishLimit,
		ToLimit:    state.PublishLimit,
	}

	if !state.Enabled {
		transition.Skipped = true

		return state, transition
	}

	if !state.LastEvaluatedDate.IsZero() && !rec.Date.After(state.LastEvaluatedDate) {
		transition.Skipped = true

		return state, transition
	}

	if rec.DeploySucceeded {
		state.DeployFailureStreak = 0
	} else {
		state.DeployFailureStreak++
	}

	if verdict.DayQualified {
		state.PromotionStreak++
	} else {
		state.PromotionStreak = 0
	}

	state.LastEvaluatedDate = rec.Date

	decision := Combine(verdict)
	switch decision.Action {
	case ActionDisable:
		state.Enabled = false
		state.DisabledReason = decision.Reason
		state.DisabledOn = rec.Date
		transition.Action = ActionDisable
		transition.Reason = decision.Reason

	case ActionPromote:
		if state.PromotionStreak < m.thresholds.WindowDays {
			break
		}

		next, ok := m.ladder.Next(state.PublishLimit)
		if !ok {
			// Ceiling: the promote verdict is a no-op.
			transition.Action = ActionPromote

			break
		}

		state.PublishLimit = next
		state.PromotionStreak = 0
		transition.Action = ActionPromote
		transition.ToLimit = next

	case ActionHold:
	}

	return state, transition
}
