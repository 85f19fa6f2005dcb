// Package backfill replays historical daily metrics through the live
// evaluation pipeline, resumable through a persisted checkpoint.
package backfill

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
	"github.com/Sumatoshi-tech/rollgate/pkg/persist"
)

// CheckpointVersion is the current checkpoint format version.
const CheckpointVersion = 1

// ErrCheckpointVersion signals a checkpoint written by an incompatible
// version of the controller.
var ErrCheckpointVersion = errors.New("unsupported checkpoint version")

// Unit identifies one (category, date) cell of a backfill.
type Unit struct {
	Category string     `json:"category"`
	Date     dates.Date `json:"date"`
}

// Key returns the unit's identity for set membership.
func (u Unit) Key() string {
	return u.Category + "@" + string(u.Date)
}

// Checkpoint records backfill progress so an interrupted replay resumes
// without repeating completed units.
type Checkpoint struct {
	Version        int        `json:"version"`
	Scope          string     `json:"scope"`
	From           dates.Date `json:"from"`
	To             dates.Date `json:"to"`
	CursorDate     dates.Date `json:"cursor_date,omitempty"`
	CompletedUnits []Unit     `json:"completed_units"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Manager owns the checkpoint document and its on-disk copy. It persists
// after every completed unit, so a crash loses at most the in-flight unit.
type Manager struct {
	persister *persist.Persister[Checkpoint]
	log       *slog.Logger

	cp        *Checkpoint
	completed map[string]struct{}
}

// NewManager returns a manager for the checkpoint at path.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		persister: persist.NewPersister[Checkpoint](path, persist.NewJSONCodec()),
		log:       logger,
	}
}

// Path returns the checkpoint file location.
func (m *Manager) Path() string {
	return m.persister.Path()
}

// Exists reports whether a checkpoint is on disk.
func (m *Manager) Exists() bool {
	_, statErr := os.Stat(m.persister.Path())

	return statErr == nil
}

// Clear removes the checkpoint. A missing checkpoint is not an error.
func (m *Manager) Clear() error {
	removeErr := os.Remove(m.persister.Path())
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", removeErr)
	}

	m.cp = nil
	m.completed = nil

	return nil
}

// Begin loads the checkpoint for a scope and date range, creating a fresh
// one when none exists. Completed units that fall outside the declared
// scope or range are dropped with a warning and will be reprocessed:
// replaying a day is safe, silently skipping one is not.
func (m *Manager) Begin(
	now time.Time,
	scope string,
	from, to dates.Date,
	member func(categoryID string) bool,
) (*Checkpoint, error) {
	if !m.Exists() {
		m.cp = &Checkpoint{
			Version:   CheckpointVersion,
			Scope:     scope,
			From:      from,
			To:        to,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.completed = make(map[string]struct{})

		return m.cp, m.flush()
	}

	var cp Checkpoint

	loadErr := m.persister.Load(func(doc *Checkpoint) { cp = *doc })
	if loadErr != nil {
		return nil, fmt.Errorf("load checkpoint: %w", loadErr)
	}

	if cp.Version != CheckpointVersion {
		return nil, fmt.Errorf("%w: checkpoint has %d, want %d", ErrCheckpointVersion, cp.Version, CheckpointVersion)
	}

	m.completed = make(map[string]struct{}, len(cp.CompletedUnits))

	var kept []Unit

	for _, unit := range cp.CompletedUnits {
		if unit.Date.Before(from) || unit.Date.After(to) || !member(unit.Category) {
			m.log.Warn("checkpoint unit outside declared scope, will reprocess",
				"category", unit.Category, "date", unit.Date)

			continue
		}

		kept = append(kept, unit)
		m.completed[unit.Key()] = struct{}{}
	}

	cp.Scope = scope
	cp.From = from
	cp.To = to
	cp.CompletedUnits = kept
	cp.UpdatedAt = now
	m.cp = &cp

	return m.cp, m.flush()
}

// Completed reports whether a unit was already processed.
func (m *Manager) Completed(unit Unit) bool {
	_, ok := m.completed[unit.Key()]

	return ok
}

// MarkCompleted records a processed unit and persists the checkpoint
// before the caller moves to the next one. The cursor only moves forward.
func (m *Manager) MarkCompleted(unit Unit, now time.Time) error {
	if m.Completed(unit) {
		return nil
	}

	m.completed[unit.Key()] = struct{}{}
	m.cp.CompletedUnits = append(m.cp.CompletedUnits, unit)

	if m.cp.CursorDate.IsZero() || unit.Date.After(m.cp.CursorDate) {
		m.cp.CursorDate = unit.Date
	}

	m.cp.UpdatedAt = now

	return m.flush()
}

func (m *Manager) flush() error {
	saveErr := m.persister.Save(func() *Checkpoint { return m.cp })
	if saveErr != nil {
		return fmt.Errorf("persist checkpoint: %w", saveErr)
	}

	return nil
}
