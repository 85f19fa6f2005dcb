package engine

import "math"

// Cost model constants. Amounts are KRW minor units; token rates come from
// the premium provider's published pricing.
const (
	// EstimatedPremiumCost is the flat per-item estimate for the premium
	// tier, used for affordability checks before generation.
	EstimatedPremiumCost int64 = 220

	// EstimatedBalancedCost is the flat per-item estimate for the balanced
	// tier.
	EstimatedBalancedCost int64 = 120

	// promptTokenRate prices one prompt token.
	promptTokenRate = 0.015

	// outputTokenRate prices one output token.
	outputTokenRate = 0.06

	// balancedMultiplier discounts balanced-tier usage.
	balancedMultiplier = 0.65
)

// EstimatedCost returns the flat pre-generation estimate for a tier.
func EstimatedCost(tier Tier) int64 {
	if tier == TierBalanced {
		return EstimatedBalancedCost
	}

	return EstimatedPremiumCost
}

// multiplier returns the tier's usage-cost discount factor.
func multiplier(tier Tier) float64 {
	if tier == TierBalanced {
		return balancedMultiplier
	}

	return 1.0
}

// UsageCost prices an actual generation from its token usage. Missing usage
// metadata falls back to the flat tier estimate.
func UsageCost(promptTokens, outputTokens int, tier Tier) int64 {
	if promptTokens <= 0 && outputTokens <= 0 {
		return EstimatedCost(tier)
	}

	raw := (float64(promptTokens)*promptTokenRate + float64(outputTokens)*outputTokenRate) * multiplier(tier)

	return int64(math.Round(raw))
}
