package pipeline

import (
	"context"
	"fmt"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/score"
)

// BuildScorer assembles a composite scorer calibrated to the current cohort:
// the benefit normalizer recalibrates on the open issues' population-per-dollar
// ratios, and the equity adjuster reads the quarter's district service ratios.
// Confirmation re-scoring uses the same construction so overridden composites
// stay comparable with the rest of the portfolio.
func BuildScorer(cfg *config.Config, issues []model.IssueWithSignal, districts []model.District, allocations []model.DistrictAllocation) *score.CompositeScorer {
	normalizer := score.NewBenefitNormalizer(cfg.City, cfg.Bootstrap)
	normalizer.Recalibrate(benefitRatios(issues))

	projectCounts := make(map[int]int, len(allocations))
	totalProjects := 0
	for _, a := range allocations {
		projectCounts[a.DistrictID] = a.ProjectCount
		totalProjects += a.ProjectCount
	}
	ratios := score.ServiceRatios(districts, projectCounts, cfg.City.Population, totalProjects)

	return score.NewCompositeScorer(cfg, normalizer, score.NewEquityAdjuster(cfg.Equity, ratios))
}

// benefitRatios extracts population-per-dollar ratios from the current cohort
// so the normalizer's empirical median reflects the issues actually on the
// table this quarter.
func benefitRatios(issues []model.IssueWithSignal) []float64 {
	ratios := make([]float64, 0, len(issues))
	for _, item := range issues {
		if item.Signal.EstimatedCost > 0 {
			ratios = append(ratios, float64(item.Signal.PopulationAffected)/item.Signal.EstimatedCost)
		}
	}
	return ratios
}

// crewFormer turns open issues into scored project candidates. It reads but
// never writes the resource ledger: feasibility is a snapshot of crew
// availability at formation time.
type crewFormer struct {
	cfg     *config.Config
	scorer  *score.CompositeScorer
	led     *ledger.Ledger
	horizon int
}

// Form sizes the project, estimates scheduling feasibility against current
// crew availability, and computes the composite score breakdown.
func (f *crewFormer) Form(_ context.Context, item model.IssueWithSignal) (*model.ProjectCandidate, error) {
	crewType := f.cfg.Crews.TypeFor(item.Issue.Category)
	weeks := estimateWeeks(item.Signal)
	crew := estimateCrew(item.Signal, f.cfg.Crews.Capacities[crewType])

	feasibility := f.feasibility(crewType, crew, weeks)

	scores, equityTier, err := f.scorer.Compute(item.Signal, feasibility, item.Issue.DistrictID)
	if err != nil {
		return nil, fmt.Errorf("score issue %d: %w", item.Issue.ID, err)
	}

	candidate := &model.ProjectCandidate{
		ID:                  item.Issue.ID,
		IssueID:             item.Issue.ID,
		Title:               item.Issue.Title,
		Scope:               item.Issue.Description,
		DistrictID:          item.Issue.DistrictID,
		EstimatedCost:       item.Signal.EstimatedCost,
		EstimatedWeeks:      weeks,
		UrgencyDays:         item.Signal.UrgencyDays,
		CrewType:            crewType,
		CrewSize:            crew,
		Scores:              scores,
		FeasibilityEstimate: feasibility,
		EquityTier:          equityTier,
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	return candidate, nil
}

// feasibility grades how much of the horizon can actually host the project's
// crew. A project needing more open weeks than exist gets a low grade, not an
// outright rejection; the scheduler has the final word.
func (f *crewFormer) feasibility(crewType string, crew, weeks int) float64 {
	open := 0
	for week := 1; week <= f.horizon; week++ {
		if f.led.Available(crewType, week) >= crew {
			open++
		}
	}

	need := float64(weeks)
	switch avail := float64(open); {
	case avail >= need:
		return 1.0
	case avail >= 0.7*need:
		return 0.7
	case avail >= 0.5*need:
		return 0.5
	default:
		return 0.3
	}
}

// estimateWeeks uses the intake hint when present, otherwise sizes the
// project duration from its cost band.
func estimateWeeks(signal model.IssueSignal) int {
	if signal.DurationWeeks > 0 {
		return signal.DurationWeeks
	}
	switch cost := signal.EstimatedCost; {
	case cost <= 500_000:
		return 2
	case cost <= 2_000_000:
		return 4
	case cost <= 10_000_000:
		return 8
	case cost <= 30_000_000:
		return 12
	default:
		return 16
	}
}

// estimateCrew uses the intake hint when present, otherwise sizes the crew
// from the cost band. Never exceeds the crew type's weekly capacity.
func estimateCrew(signal model.IssueSignal, capacity int) int {
	crew := signal.CrewSize
	if crew <= 0 {
		switch cost := signal.EstimatedCost; {
		case cost <= 1_000_000:
			crew = 1
		case cost <= 5_000_000:
			crew = 2
		case cost <= 20_000_000:
			crew = 3
		default:
			crew = 4
		}
	}
	if capacity > 0 && crew > capacity {
		crew = capacity
	}
	if crew < 1 {
		crew = 1
	}
	return crew
}
