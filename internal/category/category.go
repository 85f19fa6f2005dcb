// Package category defines the registry of content categories the rollout
// controller manages. Registry order is stable and drives every deterministic
// iteration in the system (quota allocation, backfill unit order, reports).
package category

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ScopeAll selects every registered category.
const ScopeAll = "all"

// defaultRPMBase is the revenue-per-mille base for categories without an
// explicit rate.
const defaultRPMBase = 8.0

// Sentinel errors for registry construction and scope resolution.
var (
	// ErrNoCategories indicates an empty category set.
	ErrNoCategories = errors.New("category registry must not be empty")
	// ErrDuplicateCategory indicates two categories share an ID.
	ErrDuplicateCategory = errors.New("duplicate category id")
	// ErrMissingCategoryID indicates a category without an ID.
	ErrMissingCategoryID = errors.New("category id must not be empty")
	// ErrUnknownCategory indicates a scope referencing an unregistered category.
	ErrUnknownCategory = errors.New("unknown category")
)

// Category describes one independent content stream.
type Category struct {
	// ID is the stable identifier used in state, metrics, and checkpoints.
	ID string `yaml:"id" json:"id"`

	// Label is the human-readable display name.
	Label string `yaml:"label" json:"label"`

	// RPMBase is the revenue-per-mille baseline used by report estimates.
	RPMBase float64 `yaml:"rpm_base" json:"rpm_base"`

	// FallbackTopics seed generation when no upstream candidates arrive.
	FallbackTopics []string `yaml:"fallback_topics" json:"fallback_topics,omitempty"`
}

// Registry is an ordered, immutable set of categories.
type Registry struct {
	ordered []Category
	byID    map[string]Category
}

// NewRegistry builds a registry from the given categories, preserving order.
func NewRegistry(categories []Category) (*Registry, error) {
	if len(categories) == 0 {
		return nil, ErrNoCategories
	}

	byID := make(map[string]Category, len(categories))

	for _, cat := range categories {
		if cat.ID == "" {
			return nil, ErrMissingCategoryID
		}

		_, exists := byID[cat.ID]
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateCategory, cat.ID)
		}

		byID[cat.ID] = cat
	}

	return &Registry{
		ordered: append([]Category(nil), categories...),
		byID:    byID,
	}, nil
}

// Default returns the built-in registry: three ad-funded content streams with
// their display labels and RPM baselines.
func Default() *Registry {
	reg, _ := NewRegistry([]Category{
		{
			ID:      "ai_tech",
			Label:   "AI & Tech",
			RPMBase: 12.0,
			FallbackTopics: []string{
				"Why enterprise teams are standardizing AI copilots",
				"Open models vs closed models: what changed this quarter",
				"The hidden cost of AI feature shipping velocity",
			},
		},
		{
			ID:      "finance",
			Label:   "Finance",
			RPMBase: 18.0,
			FallbackTopics: []string{
				"How inflation expectations are reshaping household budgets",
				"What quarterly earnings trends imply for growth sectors",
				"Why payment apps are racing to become financial hubs",
			},
		},
		{
			ID:      "lifestyle_pop",
			Label:   "Lifestyle & Pop",
			RPMBase: 7.0,
			FallbackTopics: []string{
				"How short-form video trends are changing brand launches",
				"Why fandom communities now drive entertainment discovery",
				"The return of long-form storytelling in creator media",
			},
		},
	})

	return reg
}

// taxonomyFile is the YAML document shape for LoadFile.
type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadFile reads a category taxonomy from a YAML document.
func LoadFile(path string) (*Registry, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, fmt.Errorf("read taxonomy: %w", readErr)
	}

	var doc taxonomyFile

	unmarshalErr := yaml.Unmarshal(data, &doc)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", unmarshalErr)
	}

	reg, regErr := NewRegistry(doc.Categories)
	if regErr != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, regErr)
	}

	return reg, nil
}

// All returns the categories in registry order.
func (r *Registry) All() []Category {
	return append([]Category(nil), r.ordered...)
}

// IDs returns the category IDs in registry order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.ordered))

	for _, cat := range r.ordered {
		ids = append(ids, cat.ID)
	}

	return ids
}

// Get looks up a category by ID.
func (r *Registry) Get(id string) (Category, bool) {
	cat, ok := r.byID[id]

	return cat, ok
}

// RPMBase returns the category's RPM baseline, or the default for unknown or
// unrated categories.
func (r *Registry) RPMBase(id string) float64 {
	cat, ok := r.byID[id]
	if !ok || cat.RPMBase <= 0 {
		return defaultRPMBase
	}

	return cat.RPMBase
}

// Resolve expands a scope string into categories:
// ScopeAll yields every category in registry order, otherwise the scope must
// name a single registered category.
func (r *Registry) Resolve(scope string) ([]Category, error) {
	if scope == ScopeAll {
		return r.All(), nil
	}

	cat, ok := r.byID[scope]
	if !ok {
		known := r.IDs()
		sort.Strings(known)

		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownCategory, scope, known)
	}

	return []Category{cat}, nil
}

// AllocateQuota splits a run-level publish cap across the given category IDs:
// even split with the remainder going to the earliest IDs. A single category
// receives the whole cap. Every returned quota is at least 1.
func AllocateQuota(ids []string, publishCap int) map[string]int {
	if len(ids) == 0 {
		return map[string]int{}
	}

	if len(ids) == 1 {
		return map[string]int{ids[0]: max(1, publishCap)}
	}

	total := max(len(ids), publishCap)
	base := total / len(ids)
	remainder := total % len(ids)

	out := make(map[string]int, len(ids))

	for idx, id := range ids {
		quota := base
		if idx < remainder {
			quota++
		}

		out[id] = quota
	}

	return out
}
