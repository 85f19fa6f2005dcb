// Package engine defines the content-generation engines, their quality
// tiers and cost model, and the budget-pressure selection ladder.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// Errors surfaced by engine parsing and generation.
var (
	// ErrUnknownEngine signals an engine name outside the enumerated set.
	ErrUnknownEngine = errors.New("unknown generation engine")

	// ErrUnknownTier signals a quality tier outside the enumerated set.
	ErrUnknownTier = errors.New("unknown quality tier")

	// ErrPremiumUnavailable signals that the premium engine cannot serve
	// (not configured, or the upstream rejected the request). Callers fall
	// back to the template for the item without charging the ledger.
	ErrPremiumUnavailable = errors.New("premium engine unavailable")
)

// Kind names a generation engine.
type Kind string

const (
	// KindPremium is the paid structured-generation engine.
	KindPremium Kind = "premium"

	// KindFallback is the free deterministic template engine.
	KindFallback Kind = "fallback"
)

// ParseKind validates an engine name.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPremium, KindFallback:
		return Kind(raw), nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownEngine, raw, KindPremium, KindFallback)
	}
}

// Tier names a premium-engine quality tier.
type Tier string

const (
	// TierPremium is the highest quality tier.
	TierPremium Tier = "premium"

	// TierBalanced trades some quality for lower cost.
	TierBalanced Tier = "balanced"
)

// ParseTier validates a tier name.
func ParseTier(raw string) (Tier, error) {
	switch Tier(raw) {
	case TierPremium, TierBalanced:
		return Tier(raw), nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrUnknownTier, raw, TierPremium, TierBalanced)
	}
}

// Topic is an approved candidate handed to a generator.
type Topic struct {
	Category   string   `json:"category"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet,omitempty"`
	SourceURLs []string `json:"source_urls,omitempty"`
}

// Request asks a generator for one item.
type Request struct {
	Topic Topic
	Tier  Tier
}

// Item is one generated artifact ready for publishing.
type Item struct {
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Markdown       string `json:"-"`
	WordCount      int    `json:"word_count"`
	Engine         Kind   `json:"engine"`
	Tier           Tier   `json:"tier,omitempty"`
	CostMinorUnits int64  `json:"cost_minor_units"`
}

// Generator produces one item per request. Implementations report transient
// upstream trouble as ErrPremiumUnavailable so callers can fall back.
type Generator interface {
	Generate(ctx context.Context, req Request) (Item, error)
}
