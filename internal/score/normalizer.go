package score

import (
	"sort"

	"github.com/ppetrenko/civicplan/internal/config"
)

// BenefitNormalizer turns raw population-per-dollar ratios into bounded
// benefit scores using Bayesian shrinkage between an analytic prior and an
// empirical median from completed projects.
//
// Phase 0: synthetic prior from the city profile.
// Phase 1: quarterly recalibration with winsorized observed ratios.
type BenefitNormalizer struct {
	priorMedian     float64
	priorStrength   int
	winsorizeLow    float64
	winsorizeHigh   float64
	empiricalMedian float64
	observations    int
}

// NewBenefitNormalizer bootstraps the prior from the city profile:
// prior_median = population / (quarterly budget / assumed project count).
func NewBenefitNormalizer(city config.CityConfig, bootstrap config.BootstrapConfig) *BenefitNormalizer {
	avgProjectCost := city.QuarterlyBudget / float64(bootstrap.AvgProjectCount)
	return &BenefitNormalizer{
		priorMedian:   float64(city.Population) / avgProjectCost,
		priorStrength: bootstrap.PriorStrength,
		winsorizeLow:  bootstrap.WinsorizeLow,
		winsorizeHigh: bootstrap.WinsorizeHigh,
	}
}

// Recalibrate ingests observed benefit ratios, winsorizes them by dropping
// values outside the configured percentile band, and records the median of the
// remainder. An empty or degenerate set leaves the prior untouched.
func (n *BenefitNormalizer) Recalibrate(ratios []float64) {
	if len(ratios) == 0 {
		return
	}
	sorted := make([]float64, len(ratios))
	copy(sorted, ratios)
	sort.Float64s(sorted)

	count := len(sorted)
	lowIdx := int(float64(count) * n.winsorizeLow)
	highIdx := int(float64(count)*n.winsorizeHigh) - 1
	if highIdx < lowIdx {
		return
	}
	kept := sorted[lowIdx : highIdx+1]
	if len(kept) == 0 {
		return
	}

	n.empiricalMedian = kept[len(kept)/2]
	n.observations = count
}

// BlendedMedian returns the shrinkage-weighted median:
// shrinkage = n / (n + prior_strength). More observations shift weight from
// the prior toward the empirical median.
func (n *BenefitNormalizer) BlendedMedian() float64 {
	if n.observations == 0 {
		return n.priorMedian
	}
	shrinkage := float64(n.observations) / float64(n.observations+n.priorStrength)
	return shrinkage*n.empiricalMedian + (1-shrinkage)*n.priorMedian
}

// Normalize converts a raw population-per-dollar ratio into a benefit score
// in [0,1]. Non-positive cost yields zero; the blended median is guaranteed
// positive by construction, so no division by zero is possible.
func (n *BenefitNormalizer) Normalize(populationAffected int, estimatedCost float64) float64 {
	if estimatedCost <= 0 {
		return 0
	}
	raw := float64(populationAffected) / estimatedCost
	normalized := raw / n.BlendedMedian()
	if normalized > 1 {
		return 1
	}
	if normalized < 0 {
		return 0
	}
	return normalized
}
