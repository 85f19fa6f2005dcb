// Package state persists the controller's durable document: per-category
// rollout positions and the monthly budget ledger, as one atomically
// replaced JSON file guarded by an exclusive file lock.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// SchemaVersion is the current state-document layout version.
const SchemaVersion = 1

// Errors surfaced while loading persisted state.
var (
	// ErrCorruptState signals a state file that exists but cannot be
	// trusted. The controller never silently reinitializes over it.
	ErrCorruptState = errors.New("corrupt state document")

	// ErrSchemaVersion signals a document written by an incompatible
	// controller version.
	ErrSchemaVersion = errors.New("unsupported state schema version")
)

// Document is the whole persisted controller state.
type Document struct {
	SchemaVersion int                              `json:"schema_version"`
	UpdatedAt     time.Time                        `json:"updated_at"`
	Categories    map[string]rollout.CategoryState `json:"categories"`
	Budget        budget.Ledger                    `json:"budget"`
}

// NewDocument returns the fresh-install state: no categories yet and an
// empty ledger for asOf's month.
func NewDocument(asOf dates.Date, ceiling int64) *Document {
	return &Document{
		SchemaVersion: SchemaVersion,
		Categories:    map[string]rollout.CategoryState{},
		Budget:        budget.NewLedger(asOf, ceiling),
	}
}

// Category returns the stored state for id, or the entry state when the
// category has not been seen yet. The entry state is not stored until
// SetCategory is called with it.
func (d *Document) Category(id string, ladder rollout.Ladder) rollout.CategoryState {
	if cs, ok := d.Categories[id]; ok {
		return cs
	}

	return rollout.NewCategoryState(id, ladder)
}

// SetCategory upserts a category's state.
func (d *Document) SetCategory(cs rollout.CategoryState) {
	if d.Categories == nil {
		d.Categories = map[string]rollout.CategoryState{}
	}

	d.Categories[cs.CategoryID] = cs
}

// Validate rejects documents the controller cannot resume from.
func (d *Document) Validate(ladder rollout.Ladder) error {
	if d.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSchemaVersion, d.SchemaVersion, SchemaVersion)
	}

	for id, cs := range d.Categories {
		if id != cs.CategoryID {
			return fmt.Errorf("%w: key %q holds state for %q", ErrCorruptState, id, cs.CategoryID)
		}

		if err := cs.Validate(ladder); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptState, err)
		}
	}

	if err := d.Budget.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	return nil
}
