package metrics

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// recordKey identifies one (category, date) cell in the log.
type recordKey struct {
	category string
	date     dates.Date
}

// Store is the append-only JSONL metrics log. One JSON object per line.
// Existing lines are never rewritten; duplicate (category, date) appends are
// rejected so history stays trustworthy.
// Thread-safe: concurrent calls are serialized via a mutex.
type Store struct {
	path string

	mu           sync.Mutex
	byCategory   map[string][]Record
	keys         map[recordKey]struct{}
	corruptLines int
}

// Open loads the metrics log at path. A missing file yields an empty store;
// malformed lines are skipped and counted, never fatal, so one torn append
// cannot take the whole history offline.
func Open(path string) (*Store, error) {
	s := &Store{
		path:       path,
		byCategory: make(map[string][]Record),
		keys:       make(map[recordKey]struct{}),
	}

	fd, openErr := os.Open(path)
	if openErr != nil {
		if errors.Is(openErr, os.ErrNotExist) {
			return s, nil
		}

		return nil, fmt.Errorf("open metrics log: %w", openErr)
	}

	defer fd.Close()

	scanErr := s.scan(fd)
	if scanErr != nil {
		return nil, scanErr
	}

	return s, nil
}

func (s *Store) scan(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record

		unmarshalErr := json.Unmarshal(line, &rec)
		if unmarshalErr != nil || rec.Validate() != nil {
			s.corruptLines++

			continue
		}

		key := recordKey{category: rec.Category, date: rec.Date}

		_, exists := s.keys[key]
		if exists {
			s.corruptLines++

			continue
		}

		s.keys[key] = struct{}{}
		s.byCategory[rec.Category] = append(s.byCategory[rec.Category], rec)
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return fmt.Errorf("scan metrics log: %w", scanErr)
	}

	for cat := range s.byCategory {
		sortByDate(s.byCategory[cat])
	}

	return nil
}

func sortByDate(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Date.Before(recs[j].Date)
	})
}

// Path returns the log file location.
func (s *Store) Path() string {
	return s.path
}

// CorruptLines reports how many log lines were skipped while loading.
func (s *Store) CorruptLines() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.corruptLines
}

// Append validates the record and writes it as one new JSONL line.
// A second record for the same (category, date) fails with
// [ErrDuplicateRecord] and leaves both the log and the in-memory view
// unchanged.
func (s *Store) Append(rec Record) error {
	validateErr := rec.Validate()
	if validateErr != nil {
		return validateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{category: rec.Category, date: rec.Date}

	_, exists := s.keys[key]
	if exists {
		return fmt.Errorf("%w: %s %s", ErrDuplicateRecord, rec.Category, rec.Date)
	}

	writeErr := s.writeLine(rec)
	if writeErr != nil {
		return writeErr
	}

	s.keys[key] = struct{}{}
	s.byCategory[rec.Category] = append(s.byCategory[rec.Category], rec)
	sortByDate(s.byCategory[rec.Category])

	return nil
}

func (s *Store) writeLine(rec Record) error {
	mkdirErr := os.MkdirAll(filepath.Dir(s.path), dirPerm)
	if mkdirErr != nil {
		return fmt.Errorf("create metrics dir: %w", mkdirErr)
	}

	fd, openErr := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePerm)
	if openErr != nil {
		return fmt.Errorf("open metrics log for append: %w", openErr)
	}

	encodeErr := json.NewEncoder(fd).Encode(rec)

	closeErr := fd.Close()

	if encodeErr != nil {
		return fmt.Errorf("append metrics record: %w", encodeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close metrics log: %w", closeErr)
	}

	return nil
}

// Has reports whether a record exists for the given (category, date).
func (s *Store) Has(category string, date dates.Date) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.keys[recordKey{category: category, date: date}]

	return exists
}

// Get returns the record for (category, date) if present.
func (s *Store) Get(category string, date dates.Date) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.byCategory[category] {
		if rec.Date == date {
			return rec, true
		}
	}

	return Record{}, false
}

// Window returns the most recent n records for a category, oldest first.
// Fewer records are returned when history is short; callers treat a short
// window as not yet evaluable rather than padding it.
func (s *Store) Window(category string, n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.byCategory[category]
	if n <= 0 || len(recs) == 0 {
		return nil
	}

	start := len(recs) - n
	if start < 0 {
		start = 0
	}

	return append([]Record(nil), recs[start:]...)
}

// ByCategory returns all records for a category in date order.
func (s *Store) ByCategory(category string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Record(nil), s.byCategory[category]...)
}

// Categories returns the categories with at least one record, sorted.
func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.byCategory))

	for cat := range s.byCategory {
		out = append(out, cat)
	}

	sort.Strings(out)

	return out
}

// Since returns every record appended at or after the cutoff instant,
// across all categories, in (category, date) order.
func (s *Store) Since(cutoff time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record

	for _, cat := range s.categoriesLocked() {
		for _, rec := range s.byCategory[cat] {
			if !rec.RecordedAt.Before(cutoff) {
				out = append(out, rec)
			}
		}
	}

	return out
}

// Len returns the total number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0

	for _, recs := range s.byCategory {
		total += len(recs)
	}

	return total
}

func (s *Store) categoriesLocked() []string {
	out := make([]string, 0, len(s.byCategory))

	for cat := range s.byCategory {
		out = append(out, cat)
	}

	sort.Strings(out)

	return out
}
