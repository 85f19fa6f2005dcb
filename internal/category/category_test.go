package category

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_RejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(nil)

	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestNewRegistry_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry([]Category{
		{ID: "finance", Label: "Finance"},
		{ID: "finance", Label: "Finance Again"},
	})

	assert.ErrorIs(t, err, ErrDuplicateCategory)
}

func TestNewRegistry_RejectsMissingID(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry([]Category{{Label: "Anonymous"}})

	assert.ErrorIs(t, err, ErrMissingCategoryID)
}

func TestDefault_StableOrder(t *testing.T) {
	t.Parallel()

	reg := Default()

	assert.Equal(t, []string{"ai_tech", "finance", "lifestyle_pop"}, reg.IDs())
}

func TestRegistry_Resolve(t *testing.T) {
	t.Parallel()

	reg := Default()

	all, err := reg.Resolve(ScopeAll)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	single, err := reg.Resolve("finance")
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "Finance", single[0].Label)

	_, err = reg.Resolve("sports")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCategory))
	assert.Contains(t, err.Error(), "ai_tech")
}

func TestRegistry_RPMBase(t *testing.T) {
	t.Parallel()

	reg := Default()

	assert.InDelta(t, 18.0, reg.RPMBase("finance"), 0.001)
	assert.InDelta(t, 8.0, reg.RPMBase("unknown"), 0.001)
}

func TestLoadFile_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "categories.yaml")

	doc := `categories:
  - id: gardening
    label: Gardening
    rpm_base: 5.5
    fallback_topics:
      - "Raised beds on a budget"
  - id: travel
    label: Travel
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	reg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"gardening", "travel"}, reg.IDs())

	gardening, ok := reg.Get("gardening")
	require.True(t, ok)
	assert.InDelta(t, 5.5, gardening.RPMBase, 0.001)
	assert.Len(t, gardening.FallbackTopics, 1)

	assert.InDelta(t, 8.0, reg.RPMBase("travel"), 0.001)
}

func TestLoadFile_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestLoadFile_BadYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: [t: {"), 0o600))

	_, err := LoadFile(path)

	assert.Error(t, err)
}

func TestAllocateQuota(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ids  []string
		cap  int
		want map[string]int
	}{
		{
			name: "even split",
			ids:  []string{"a", "b", "c"},
			cap:  12,
			want: map[string]int{"a": 4, "b": 4, "c": 4},
		},
		{
			name: "remainder to earliest",
			ids:  []string{"a", "b", "c"},
			cap:  14,
			want: map[string]int{"a": 5, "b": 5, "c": 4},
		},
		{
			name: "single category keeps whole cap",
			ids:  []string{"solo"},
			cap:  18,
			want: map[string]int{"solo": 18},
		},
		{
			name: "cap below category count still yields one each",
			ids:  []string{"a", "b", "c"},
			cap:  2,
			want: map[string]int{"a": 1, "b": 1, "c": 1},
		},
		{
			name: "zero cap single category floors at one",
			ids:  []string{"solo"},
			cap:  0,
			want: map[string]int{"solo": 1},
		},
		{
			name: "no categories",
			ids:  nil,
			cap:  12,
			want: map[string]int{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := AllocateQuota(tc.ids, tc.cap)

			assert.Equal(t, tc.want, got)
		})
	}
}
