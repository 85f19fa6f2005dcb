package backfill

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/rollgate/internal/metrics"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// lz4Extension marks an LZ4-framed archive.
const lz4Extension = ".lz4"

// Archive is a read-only metrics source: an exported JSONL log, optionally
// LZ4-compressed, indexed by category and day. Later entries for the same
// key supersede earlier ones, since appended corrections are how an
// append-only log amends history.
type Archive struct {
	records map[string]map[dates.Date]metrics.Record
	total   int
	corrupt int
}

// OpenArchive reads the archive at path. Malformed lines are counted and
// skipped, never fatal.
func OpenArchive(path string) (*Archive, error) {
	fd, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("open archive: %w", openErr)
	}

	defer fd.Close()

	var reader io.Reader = fd
	if strings.EqualFold(filepath.Ext(path), lz4Extension) {
		reader = lz4.NewReader(fd)
	}

	a := &Archive{records: make(map[string]map[dates.Date]metrics.Record)}

	scanErr := a.scan(reader)
	if scanErr != nil {
		return nil, scanErr
	}

	return a, nil
}

func (a *Archive) scan(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec metrics.Record

		unmarshalErr := json.Unmarshal(line, &rec)
		if unmarshalErr != nil || rec.Validate() != nil {
			a.corrupt++

			continue
		}

		byDate := a.records[rec.Category]
		if byDate == nil {
			byDate = make(map[dates.Date]metrics.Record)
			a.records[rec.Category] = byDate
		}

		if _, exists := byDate[rec.Date]; !exists {
			a.total++
		}

		byDate[rec.Date] = rec
	}

	readErr := scanner.Err()
	if readErr != nil {
		return fmt.Errorf("scan archive: %w", readErr)
	}

	return nil
}

// Record returns the archived record for a category and day.
func (a *Archive) Record(categoryID string, date dates.Date) (metrics.Record, bool) {
	rec, ok := a.records[categoryID][date]

	return rec, ok
}

// Len returns the number of distinct (category, date) records.
func (a *Archive) Len() int {
	return a.total
}

// CorruptLines returns the number of lines skipped while reading.
func (a *Archive) CorruptLines() int {
	return a.corrupt
}
