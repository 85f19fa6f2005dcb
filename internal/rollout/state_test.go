package rollout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
)

func TestLadder_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, rollout.DefaultLadder().Validate())
	require.ErrorIs(t, rollout.Ladder{}.Validate(), rollout.ErrEmptyLadder)
	require.ErrorIs(t, rollout.Ladder{12, 12, 24}.Validate(), rollout.ErrLadderNotAscending)
	require.ErrorIs(t, rollout.Ladder{18, 12}.Validate(), rollout.ErrLadderNotAscending)
}

func TestLadder_Next(t *testing.T) {
	t.Parallel()

	ladder := rollout.DefaultLadder()

	next, ok := ladder.Next(12)
	require.True(t, ok)
	assert.Equal(t, 18, next)

	next, ok = ladder.Next(18)
	require.True(t, ok)
	assert.Equal(t, 24, next)

	_, ok = ladder.Next(24)
	assert.False(t, ok, "ceiling has no next rung")

	_, ok = ladder.Next(13)
	assert.False(t, ok, "off-ladder limit has no next rung")
}

func TestLadder_Bounds(t *testing.T) {
	t.Parallel()

	ladder := rollout.DefaultLadder()

	assert.Equal(t, 12, ladder.First())
	assert.Equal(t, 24, ladder.Ceiling())
	assert.True(t, ladder.Contains(18))
	assert.False(t, ladder.Contains(20))
}

func TestNewCategoryState_StartsOnFirstRung(t *testing.T) {
	t.Parallel()

	state := rollout.NewCategoryState("lifestyle_pop", rollout.DefaultLadder())

	assert.Equal(t, "lifestyle_pop", state.CategoryID)
	assert.Equal(t, 12, state.PublishLimit)
	assert.True(t, state.Enabled)
	assert.Zero(t, state.PromotionStreak)
	assert.Zero(t, state.DeployFailureStreak)
	assert.True(t, state.LastEvaluatedDate.IsZero())
}

func TestCategoryState_Validate(t *testing.T) {
	t.Parallel()

	ladder := rollout.DefaultLadder()

	tests := []struct {
		name    string
		state   rollout.CategoryState
		wantErr error
	}{
		{
			name:  "valid active state",
			state: rollout.CategoryState{CategoryID: "finance", PublishLimit: 18, Enabled: true},
		},
		{
			name: "valid disabled state",
			state: rollout.CategoryState{
				CategoryID:     "finance",
				PublishLimit:   12,
				DisabledReason: rollout.DisableDeploy,
			},
		},
		{
			name:    "limit off ladder",
			state:   rollout.CategoryState{CategoryID: "finance", PublishLimit: 13, Enabled: true},
			wantErr: rollout.ErrLimitOffLadder,
		},
		{
			name: "negative promotion streak",
			state: rollout.CategoryState{
				CategoryID:      "finance",
				PublishLimit:    12,
				Enabled:         true,
				PromotionStreak: -1,
			},
			wantErr: rollout.ErrNegativeStreak,
		},
		{
			name:    "disabled without reason",
			state:   rollout.CategoryState{CategoryID: "finance", PublishLimit: 12},
			wantErr: rollout.ErrDisabledWithoutReason,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.state.Validate(ladder)
			if tc.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCategoryState_AtCeiling(t *testing.T) {
	t.Parallel()

	ladder := rollout.DefaultLadder()

	state := rollout.NewCategoryState("finance", ladder)
	assert.False(t, state.AtCeiling(ladder))

	state.PublishLimit = 24
	assert.True(t, state.AtCeiling(ladder))
}
