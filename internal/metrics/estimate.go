package metrics

import "math"

// Indexed-rate heuristic shape: a small base lifted by publish volume and
// pulled down by quality penalties, clamped to a believable ceiling.
const (
	indexedBase          = 0.26
	indexedPerPublish    = 0.007
	indexedDupPenalty    = 0.55
	indexedPolicyPenalty = 0.45
	indexedCeiling       = 0.95
)

// RPM quality penalty shape: duplicates and policy flags depress revenue,
// capped at a 50% haircut.
const (
	rpmDupPenalty    = 1.6
	rpmPolicyPenalty = 2.2
	rpmMaxPenalty    = 0.5
)

// EstimateIndexedRate approximates search-index coverage when no console
// data is available. Returns 0 when nothing was considered.
func EstimateIndexedRate(candidateCount, publishCount int, duplicateRate, policyFlagRate float64) float64 {
	if candidateCount <= 0 {
		return 0
	}

	base := indexedBase + float64(publishCount)*indexedPerPublish
	penalty := duplicateRate*indexedDupPenalty + policyFlagRate*indexedPolicyPenalty

	score := base - penalty
	score = math.Max(0, math.Min(indexedCeiling, score))

	return round4(score)
}

// EstimateRPM blends per-category RPM baselines by publish share and applies
// the quality penalty. baseFor supplies the baseline for a category ID.
func EstimateRPM(publishCounts map[string]int, duplicateRate, policyFlagRate float64, baseFor func(string) float64) float64 {
	total := 0

	for _, count := range publishCounts {
		total += count
	}

	if total <= 0 {
		return 0
	}

	weighted := 0.0

	for cat, count := range publishCounts {
		share := float64(count) / float64(total)
		weighted += baseFor(cat) * share
	}

	penalty := math.Min(rpmMaxPenalty, duplicateRate*rpmDupPenalty+policyFlagRate*rpmPolicyPenalty)
	rpm := weighted * (1 - penalty)

	return round3(math.Max(0, rpm))
}

// Rates derives duplicate and policy-flag rates from raw counts. A zero
// candidate count yields zero rates rather than a division error.
func Rates(candidateCount, duplicateCount, policyFlagCount int) (duplicateRate, policyFlagRate float64) {
	denom := float64(candidateCount)
	if denom < 1 {
		denom = 1
	}

	return round4(float64(duplicateCount) / denom), round4(float64(policyFlagCount) / denom)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
