package score

import (
	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
)

// EquityAdjuster converts district service ratios into bounded score
// multipliers and qualitative tiers. Ratios are a read-only snapshot computed
// once per planning cycle.
type EquityAdjuster struct {
	cfg    config.EquityConfig
	ratios map[int]float64
}

// NewEquityAdjuster creates an adjuster over a snapshot of service ratios
func NewEquityAdjuster(cfg config.EquityConfig, serviceRatios map[int]float64) *EquityAdjuster {
	if serviceRatios == nil {
		serviceRatios = map[int]float64{}
	}
	return &EquityAdjuster{cfg: cfg, ratios: serviceRatios}
}

// Adjust returns the equity multiplier and tier for a district. Districts
// without ratio data are treated as average (multiplier 1.0).
//
// equity_score = clamp(low, high, 1 - service_ratio)
// multiplier   = 1 + strength * equity_score
func (a *EquityAdjuster) Adjust(districtID *int) (float64, model.EquityTier) {
	if districtID == nil {
		return 1.0, model.EquityAverage
	}
	ratio, ok := a.ratios[*districtID]
	if !ok {
		return 1.0, model.EquityAverage
	}

	tier := model.EquityAverage
	switch {
	case ratio < a.cfg.UnderservedThreshold:
		tier = model.EquityUnderserved
	case ratio > a.cfg.OverservedThreshold:
		tier = model.EquityWellServed
	}

	equityScore := 1 - ratio
	if equityScore < a.cfg.ClampLow {
		equityScore = a.cfg.ClampLow
	}
	if equityScore > a.cfg.ClampHigh {
		equityScore = a.cfg.ClampHigh
	}

	return 1 + a.cfg.MultiplierStrength*equityScore, tier
}

// ServiceRatios computes city-wide district service ratios:
// ratio_d = (projects_d / pop_d) / (projects_city / pop_city).
// Districts with zero population, or a city with zero project rate, default
// to 1.0 (perfectly fair) rather than dividing by zero.
func ServiceRatios(districts []model.District, projectCounts map[int]int, cityPopulation, cityProjects int) map[int]float64 {
	ratios := make(map[int]float64, len(districts))
	if cityPopulation <= 0 || cityProjects <= 0 {
		return ratios
	}
	cityRate := float64(cityProjects) / float64(cityPopulation)

	for _, d := range districts {
		if d.Population <= 0 || cityRate == 0 {
			ratios[d.ID] = 1.0
			continue
		}
		districtRate := float64(projectCounts[d.ID]) / float64(d.Population)
		ratios[d.ID] = districtRate / cityRate
	}
	return ratios
}
