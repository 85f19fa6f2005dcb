package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/rollgate/internal/budget"
	"github.com/Sumatoshi-tech/rollgate/internal/category"
	"github.com/Sumatoshi-tech/rollgate/internal/rollout"
	"github.com/Sumatoshi-tech/rollgate/internal/state"
	"github.com/Sumatoshi-tech/rollgate/pkg/dates"
)

// StatusPayload is the rollout_status tool result.
type StatusPayload struct {
	GeneratedAt time.Time               `json:"generated_at"`
	StateFile   string                  `json:"state_file"`
	Categories  []rollout.CategoryState `json:"categories"`
	Disabled    []string                `json:"disabled_categories"`
	Budget      budget.Snapshot         `json:"budget"`
}

// handleStatus processes rollout_status tool calls.
func (s *Server) handleStatus(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	input StatusInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if input.Category != "" {
		if _, ok := s.registry.Get(input.Category); !ok {
			return errorResult(fmt.Errorf("%w: %q (known: %v)",
				category.ErrUnknownCategory, input.Category, s.registry.IDs()))
		}
	}

	now := time.Now().UTC()

	doc, loadErr := s.states.LoadOrInit(dates.FromTime(now), s.ceiling, s.ladder)
	if loadErr != nil {
		return errorResult(loadErr)
	}

	ids := s.statusIDs(doc, input.Category)

	categoryStates := make([]rollout.CategoryState, 0, len(ids))
	disabled := make([]string, 0)

	for _, id := range ids {
		cs := doc.Category(id, s.ladder)
		categoryStates = append(categoryStates, cs)

		if !cs.Enabled {
			disabled = append(disabled, id)
		}
	}

	return jsonResult(StatusPayload{
		GeneratedAt: now,
		StateFile:   s.states.Path(),
		Categories:  categoryStates,
		Disabled:    disabled,
		Budget:      doc.Budget.Snapshot(dates.FromTime(now)),
	})
}

// statusIDs returns the category ids to report: one when filtered, otherwise
// registry order followed by persisted categories no longer registered.
func (s *Server) statusIDs(doc *state.Document, filter string) []string {
	if filter != "" {
		return []string{filter}
	}

	ids := s.registry.IDs()

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}

	extras := make([]string, 0)

	for id := range doc.Categories {
		if !known[id] {
			extras = append(extras, id)
		}
	}

	sort.Strings(extras)

	return append(ids, extras...)
}
