package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
	"github.com/Sumatoshi-tech/rollgate/pkg/persist"
)

// lockExtension names the sibling lock file guarding the document.
const lockExtension = ".lock"

// ErrLockHeld signals that another invocation holds the state lock.
var ErrLockHeld = errors.New("state lock held by another run")

// Store reads and writes the state document. Writes replace the whole file
// atomically; the lock serializes overlapping invocations for the full
// read-evaluate-transition-persist cycle.
type Store struct {
	path  string
	codec persist.Codec
	lock  *flock.Flock
}

// NewStore returns a store over the document at path.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		codec: persist.NewJSONCodec(),
		lock:  flock.New(path + lockExtension),
	}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Acquire takes the exclusive lock without blocking. It fails with
// ErrLockHeld when another run is mid-cycle. The returned release func must
// be called once the cycle is fully persisted.
func (s *Store) Acquire() (func() error, error) {
	locked, lockErr := s.lock.TryLock()
	if lockErr != nil {
		return nil, fmt.Errorf("acquire state lock %s: %w", s.lock.Path(), lockErr)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, s.lock.Path())
	}

	return s.lock.Unlock, nil
}

// Load reads, schema-validates, and decodes the document. A missing file
// passes through os.ErrNotExist so callers can distinguish a fresh install;
// anything else unreadable is ErrCorruptState, never silently replaced.
func (s *Store) Load(ladder rollout.Ladder) (*Document, error) {
	raw, readErr := os.ReadFile(s.path)
	if readErr != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, readErr)
	}

	if schemaErr := validateSchema(raw); schemaErr != nil {
		return nil, fmt.Errorf("state %s: %w", s.path, schemaErr)
	}

	var doc Document

	if decodeErr := json.Unmarshal(raw, &doc); decodeErr != nil {
		return nil, fmt.Errorf("state %s: %w: %w", s.path, ErrCorruptState, decodeErr)
	}

	if validateErr := doc.Validate(ladder); validateErr != nil {
		return nil, fmt.Errorf("state %s: %w", s.path, validateErr)
	}

	return &doc, nil
}

// LoadOrInit loads the document, initializing fresh-install defaults when
// the file does not exist yet. Corruption remains fatal.
func (s *Store) LoadOrInit(asOf dates.Date, ceiling int64, ladder rollout.Ladder) (*Document, error) {
	doc, loadErr := s.Load(ladder)
	if errors.Is(loadErr, os.ErrNotExist) {
		return NewDocument(asOf, ceiling), nil
	}

	if loadErr != nil {
		return nil, loadErr
	}

	return doc, nil
}

// Save stamps the document and replaces the file atomically.
func (s *Store) Save(doc *Document) error {
	doc.UpdatedAt = time.Now().UTC()

	if saveErr := persist.SaveDocument(s.path, s.codec, doc); saveErr != nil {
		return fmt.Errorf("save state %s: %w", s.path, saveErr)
	}

	return nil
}
