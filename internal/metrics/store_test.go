package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

func testRecord(category string, date dates.Date) Record {
	return Record{
		Category:        category,
		Date:            date,
		DuplicateRate:   0.02,
		PolicyFlagRate:  0.005,
		IndexedRate:     0.40,
		DeploySucceeded: true,
		PublishCount:    12,
		RecordedAt:      date.Time().Add(9 * time.Hour),
	}
}

func TestStore_AppendAndWindow(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "ops_metrics.jsonl"))
	require.NoError(t, err)

	days := []dates.Date{"2024-05-01", "2024-05-02", "2024-05-03"}
	for _, day := range days {
		require.NoError(t, store.Append(testRecord("finance", day)))
	}

	window := store.Window("finance", 2)

	require.Len(t, window, 2)
	assert.Equal(t, dates.Date("2024-05-02"), window[0].Date)
	assert.Equal(t, dates.Date("2024-05-03"), window[1].Date)
}

func TestStore_WindowShortHistory(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "ops_metrics.jsonl"))
	require.NoError(t, err)

	require.NoError(t, store.Append(testRecord("finance", "2024-05-01")))

	window := store.Window("finance", 7)

	assert.Len(t, window, 1)
	assert.Nil(t, store.Window("ai_tech", 7))
}

func TestStore_DuplicateAppendRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ops_metrics.jsonl")

	store, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, store.Append(testRecord("finance", "2024-05-01")))

	before, readErr := os.ReadFile(path)
	require.NoError(t, readErr)

	dup := testRecord("finance", "2024-05-01")
	dup.DuplicateRate = 0.9

	err = store.Append(dup)

	require.ErrorIs(t, err, ErrDuplicateRecord)

	after, readErr := os.ReadFile(path)
	require.NoError(t, readErr)

	assert.Equal(t, before, after)
	assert.Equal(t, 1, store.Len())

	got, ok := store.Get("finance", "2024-05-01")
	require.True(t, ok)
	assert.InDelta(t, 0.02, got.DuplicateRate, 0.0001)
}

func TestStore_ReopenSeesDuplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ops_metrics.jsonl")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(testRecord("ai_tech", "2024-05-01")))

	reopened, err := Open(path)
	require.NoError(t, err)

	err = reopened.Append(testRecord("ai_tech", "2024-05-01"))

	assert.ErrorIs(t, err, ErrDuplicateRecord)
}

func TestStore_OutOfOrderAppendsSortByDate(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "ops_metrics.jsonl"))
	require.NoError(t, err)

	require.NoError(t, store.Append(testRecord("finance", "2024-05-03")))
	require.NoError(t, store.Append(testRecord("finance", "2024-05-01")))
	require.NoError(t, store.Append(testRecord("finance", "2024-05-02")))

	window := store.Window("finance", 7)

	require.Len(t, window, 3)
	assert.Equal(t, dates.Date("2024-05-01"), window[0].Date)
	assert.Equal(t, dates.Date("2024-05-03"), window[2].Date)
}

func TestOpen_SkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ops_metrics.jsonl")

	good := testRecord("finance", "2024-05-01")
	content := `{"category":"finance","date":"2024-05-01","duplicate_rate":0.02,"policy_flag_rate":0.005,"indexed_rate":0.4,"deploy_succeeded":true,"publish_count":12,"recorded_at":"2024-05-01T09:00:00Z"}
{broken line
{"category":"","date":"2024-05-02","duplicate_rate":0.02,"policy_flag_rate":0.005,"indexed_rate":0.4,"deploy_succeeded":true,"publish_count":12,"recorded_at":"2024-05-02T09:00:00Z"}
`

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	store, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 2, store.CorruptLines())

	got, ok := store.Get("finance", "2024-05-01")
	require.True(t, ok)
	assert.Equal(t, good.Date, got.Date)
}

func TestOpen_MissingFileIsEmptyStore(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "absent.jsonl"))

	require.NoError(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestStore_Since(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "ops_metrics.jsonl"))
	require.NoError(t, err)

	old := testRecord("finance", "2024-04-01")
	old.RecordedAt = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(old))

	recent := testRecord("finance", "2024-05-01")
	recent.RecordedAt = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(recent))

	cutoff := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)

	got := store.Since(cutoff)

	require.Len(t, got, 1)
	assert.Equal(t, dates.Date("2024-05-01"), got[0].Date)
}

func TestStore_Categories(t *testing.T) {
	t.Parallel()

	store, err := Open(filepath.Join(t.TempDir(), "ops_metrics.jsonl"))
	require.NoError(t, err)

	require.NoError(t, store.Append(testRecord("lifestyle_pop", "2024-05-01")))
	require.NoError(t, store.Append(testRecord("ai_tech", "2024-05-01")))

	assert.Equal(t, []string{"ai_tech", "lifestyle_pop"}, store.Categories())
}

func TestRecord_Validate(t *testing.T) {
	t.Parallel()

	valid := testRecord("finance", "2024-05-01")
	assert.NoError(t, valid.Validate())

	missingCat := valid
	missingCat.Category = ""
	assert.ErrorIs(t, missingCat.Validate(), ErrMissingCategory)

	missingDate := valid
	missingDate.Date = ""
	assert.ErrorIs(t, missingDate.Validate(), ErrMissingDate)

	badRate := valid
	badRate.IndexedRate = 1.2
	assert.ErrorIs(t, badRate.Validate(), ErrRateOutOfRange)

	negativeRate := valid
	negativeRate.DuplicateRate = -0.1
	assert.ErrorIs(t, negativeRate.Validate(), ErrRateOutOfRange)
}

func TestRecord_QualifiesForPromotion(t *testing.T) {
	t.Parallel()

	base := testRecord("finance", "2024-05-01")

	assert.True(t, base.QualifiesForPromotion(0.05, 0.01, 0.35))

	dup := base
	dup.DuplicateRate = 0.05
	assert.False(t, dup.QualifiesForPromotion(0.05, 0.01, 0.35))

	policy := base
	policy.PolicyFlagRate = 0.01
	assert.False(t, policy.QualifiesForPromotion(0.05, 0.01, 0.35))

	indexed := base
	indexed.IndexedRate = 0.349
	assert.False(t, indexed.QualifiesForPromotion(0.05, 0.01, 0.35))
}
