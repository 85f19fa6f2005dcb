package rollout

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// Errors surfaced while validating persisted category state.
var (
	// ErrEmptyLadder signals a ladder with no rungs.
	ErrEmptyLadder = errors.New("empty ladder")

	// ErrLadderNotAscending signals rungs that do not strictly increase.
	ErrLadderNotAscending = errors.New("ladder rungs not strictly ascending")

	// ErrLimitOffLadder signals a persisted publish limit that is not a rung.
	ErrLimitOffLadder = errors.New("publish limit not on ladder")

	// ErrNegativeStreak signals a persisted streak below zero.
	ErrNegativeStreak = errors.New("negative streak")

	// ErrDisabledWithoutReason signals a disabled category missing its reason.
	ErrDisabledWithoutReason = errors.New("disabled category without reason")
)

// Ladder is the ordered set of publish limits a category climbs through.
// Rungs are strictly ascending; the last rung is the ceiling.
type Ladder []int

// DefaultLadder returns the production publish-limit ladder.
func DefaultLadder() Ladder {
	return Ladder{12, 18, 24}
}

// Validate rejects ladders the machine cannot climb.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return ErrEmptyLadder
	}

	for i := 1; i < len(l); i++ {
		if l[i] <= l[i-1] {
			return fmt.Errorf("%w: %d after %d", ErrLadderNotAscending, l[i], l[i-1])
		}
	}

	return nil
}

// First returns the entry rung new categories start on.
func (l Ladder) First() int {
	return l[0]
}

// Ceiling returns the top rung.
func (l Ladder) Ceiling() int {
	return l[len(l)-1]
}

// Contains reports whether limit is a rung.
func (l Ladder) Contains(limit int) bool {
	return slices.Contains(l, limit)
}

// Next returns the rung above limit. The second return is false when limit
// is the ceiling or not on the ladder.
func (l Ladder) Next(limit int) (int, bool) {
	idx := slices.Index(l, limit)
	if idx < 0 || idx == len(l)-1 {
		return limit, false
	}

	return l[idx+1], true
}

// CategoryState is the durable per-category rollout position. A disabled
// category keeps its last publish limit for the record but is never
// scheduled again.
type CategoryState struct {
	CategoryID          string        `json:"category_id"`
	PublishLimit        int           `json:"publish_limit"`
	Enabled             bool          `json:"enabled"`
	DisabledReason      DisableReason `json:"disabled_reason,omitempty"`
	DisabledOn          dates.Date    `json:"disabled_on,omitempty"`
	PromotionStreak     int           `json:"promotion_streak"`
	DeployFailureStreak int           `json:"deploy_failure_streak"`
	LastEvaluatedDate   dates.Date    `json:"last_evaluated_date,omitempty"`
}

// NewCategoryState returns the entry state for a newly seen category:
// enabled, on the first rung, with empty streaks.
func NewCategoryState(categoryID string, ladder Ladder) CategoryState {
	return CategoryState{
		CategoryID:   categoryID,
		PublishLimit: ladder.First(),
		Enabled:      true,
	}
}

// Validate rejects persisted state the machine cannot resume from.
func (s CategoryState) Validate(ladder Ladder) error {
	if !ladder.Contains(s.PublishLimit) {
		return fmt.Errorf("%w: category %s at %d, ladder %v", ErrLimitOffLadder, s.CategoryID, s.PublishLimit, ladder)
	}

	if s.PromotionStreak < 0 || s.DeployFailureStreak < 0 {
		return fmt.Errorf("%w: category %s promotion=%d deploy=%d",
			ErrNegativeStreak, s.CategoryID, s.PromotionStreak, s.DeployFailureStreak)
	}

	if !s.Enabled && s.DisabledReason == "" {
		return fmt.Errorf("%w: category %s", ErrDisabledWithoutReason, s.CategoryID)
	}

	return nil
}

// AtCeiling reports whether the category sits on the top rung.
func (s CategoryState) AtCeiling(ladder Ladder) bool {
	return s.PublishLimit == ladder.Ceiling()
}
