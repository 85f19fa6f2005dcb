package backfill_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/rollgate/internal/backfill"
	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

func archivedRecord(category string, date dates.Date) metrics.Record {
	return metrics.Record{
		Category:        category,
		Date:            date,
		DuplicateRate:   0.02,
		PolicyFlagRate:  0.005,
		IndexedRate:     0.4,
		DeploySucceeded: true,
		PublishCount:    12,
		RPMEstimate:     18.0,
		RunID:           "archive",
		RecordedAt:      time.Date(2025, 6, 15, 21, 0, 0, 0, time.UTC),
	}
}

func encodeRecords(t *testing.T, recs []metrics.Record) []byte {
	t.Helper()

	var buf bytes.Buffer

	for _, rec := range recs {
		payload, marshalErr := json.Marshal(rec)
		require.NoError(t, marshalErr)

		buf.Write(payload)
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

func writeArchive(t *testing.T, dir string, compressed bool, recs []metrics.Record) string {
	t.Helper()

	raw := encodeRecords(t, recs)

	if !compressed {
		path := filepath.Join(dir, "metrics_archive.jsonl")
		require.NoError(t, os.WriteFile(path, raw, 0o600))

		return path
	}

	path := filepath.Join(dir, "metrics_archive.jsonl.lz4")

	fd, createErr := os.Create(path)
	require.NoError(t, createErr)

	zw := lz4.NewWriter(fd)

	_, writeErr := zw.Write(raw)
	require.NoError(t, writeErr)
	require.NoError(t, zw.Close())
	require.NoError(t, fd.Close())

	return path
}

func TestOpenArchive_PlainJSONL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recs := []metrics.Record{
		archivedRecord("finance", "2025-06-01"),
		archivedRecord("ai_tech", "2025-06-01"),
	}

	path := writeArchive(t, dir, false, recs)

	// A torn final line must not take the archive offline.
	fd, openErr := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, openErr)
	_, appendErr := fd.WriteString("{\"category\":\"finance\",\"dup\n")
	require.NoError(t, appendErr)
	require.NoError(t, fd.Close())

	archive, readErr := backfill.OpenArchive(path)
	require.NoError(t, readErr)

	assert.Equal(t, 2, archive.Len())
	assert.Equal(t, 1, archive.CorruptLines())

	rec, ok := archive.Record("finance", "2025-06-01")
	require.True(t, ok)
	assert.Equal(t, 12, rec.PublishCount)

	_, missing := archive.Record("finance", "2025-06-02")
	assert.False(t, missing)
}

func TestOpenArchive_LZ4Roundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recs := []metrics.Record{
		archivedRecord("finance", "2025-06-01"),
		archivedRecord("finance", "2025-06-02"),
		archivedRecord("lifestyle_pop", "2025-06-01"),
	}

	archive, readErr := backfill.OpenArchive(writeArchive(t, dir, true, recs))
	require.NoError(t, readErr)

	assert.Equal(t, 3, archive.Len())
	assert.Zero(t, archive.CorruptLines())

	rec, ok := archive.Record("lifestyle_pop", "2025-06-01")
	require.True(t, ok)
	assert.True(t, rec.DeploySucceeded)
}

func TestOpenArchive_LaterEntrySupersedes(t *testing.T) {
	t.Parallel()

	original := archivedRecord("finance", "2025-06-01")

	correction := original
	correction.DuplicateRate = 0.08
	correction.DeploySucceeded = false

	archive, readErr := backfill.OpenArchive(
		writeArchive(t, t.TempDir(), false, []metrics.Record{original, correction}))
	require.NoError(t, readErr)

	assert.Equal(t, 1, archive.Len())

	rec, ok := archive.Record("finance", "2025-06-01")
	require.True(t, ok)
	assert.InDelta(t, 0.08, rec.DuplicateRate, 1e-9)
	assert.False(t, rec.DeploySucceeded)
}

func TestOpenArchive_InvalidRecordsCountedCorrupt(t *testing.T) {
	t.Parallel()

	bad := archivedRecord("finance", "2025-06-01")
	bad.DuplicateRate = 1.5

	archive, readErr := backfill.OpenArchive(
		writeArchive(t, t.TempDir(), false, []metrics.Record{bad}))
	require.NoError(t, readErr)

	assert.Zero(t, archive.Len())
	assert.Equal(t, 1, archive.CorruptLines())
}

func TestOpenArchive_MissingFile(t *testing.T) {
	t.Parallel()

	_, readErr := backfill.OpenArchive(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.ErrorIs(t, readErr, os.ErrNotExist)
}
