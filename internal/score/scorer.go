package score

import (
	"fmt"
	"math"
	"strings"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
)

// CompositeScorer computes composite value-scores for project candidates.
//
// Formula:
//
//	composite = (w_safety*safety + w_mandate*mandate + w_benefit*benefit
//	           + w_urgency*urgency + w_feasibility*feasibility) * equity_multiplier
//
// The computation is deterministic and side-effect free; the normalizer and
// equity tables are read-only snapshots for the planning cycle.
type CompositeScorer struct {
	weights    config.ScoringWeights
	tiers      config.TierValues
	urgency    config.UrgencyConfig
	normalizer *BenefitNormalizer
	equity     *EquityAdjuster
}

// NewCompositeScorer creates a scorer from the run configuration
func NewCompositeScorer(cfg *config.Config, normalizer *BenefitNormalizer, equity *EquityAdjuster) *CompositeScorer {
	return &CompositeScorer{
		weights:    cfg.Weights,
		tiers:      cfg.TierValues,
		urgency:    cfg.Urgency,
		normalizer: normalizer,
		equity:     equity,
	}
}

// ScoreSafety converts a safety tier to a score in [0,1]
func (s *CompositeScorer) ScoreSafety(tier model.SafetyTier) float64 {
	return s.tiers.Safety[tier]
}

// ScoreMandate converts a mandate tier to a score in [0,1]
func (s *CompositeScorer) ScoreMandate(tier model.MandateTier) float64 {
	return s.tiers.Mandate[tier]
}

// ScoreBenefit computes the normalized citizens-served-per-dollar score
func (s *CompositeScorer) ScoreBenefit(populationAffected int, estimatedCost float64) float64 {
	return s.normalizer.Normalize(populationAffected, estimatedCost)
}

// ScoreUrgency computes the floored exponential decay max(floor, e^(-lambda*days)).
// Reference points at lambda=0.02, floor=0.1: 7d -> 0.87, 30d -> 0.55,
// 90d -> 0.17, 180d -> 0.10 (floor).
func (s *CompositeScorer) ScoreUrgency(daysRemaining int) float64 {
	decay := math.Exp(-s.urgency.Lambda * float64(daysRemaining))
	if decay < s.urgency.Floor {
		return s.urgency.Floor
	}
	return decay
}

// Compute produces the full score breakdown for an issue signal
func (s *CompositeScorer) Compute(signal model.IssueSignal, feasibility float64, districtID *int) (model.ScoreComponents, model.EquityTier, error) {
	if feasibility < 0 || feasibility > 1 {
		return model.ScoreComponents{}, "", fmt.Errorf("feasibility %.4f outside [0,1]", feasibility)
	}

	safety := s.ScoreSafety(signal.SafetyTier)
	mandate := s.ScoreMandate(signal.MandateTier)
	benefit := s.ScoreBenefit(signal.PopulationAffected, signal.EstimatedCost)
	urgency := s.ScoreUrgency(signal.UrgencyDays)
	equityMult, equityTier := s.equity.Adjust(districtID)

	base := s.weights.Safety*safety +
		s.weights.Mandate*mandate +
		s.weights.Benefit*benefit +
		s.weights.Urgency*urgency +
		s.weights.Feasibility*feasibility

	components, err := model.NewScoreComponents(safety, mandate, benefit, urgency, feasibility, equityMult, base*equityMult)
	if err != nil {
		return model.ScoreComponents{}, "", err
	}
	return components, equityTier, nil
}

// Explain renders a human-readable breakdown of a composite score
func (s *CompositeScorer) Explain(c model.ScoreComponents) string {
	return Explain(s.weights, c)
}

// Explain renders the weight-by-component breakdown behind a composite score.
func Explain(w config.ScoringWeights, c model.ScoreComponents) string {
	var b strings.Builder
	b.WriteString("Composite Score Breakdown:\n")
	fmt.Fprintf(&b, "  Safety:      %.2f x %.0f%% = %.3f\n", c.Safety, w.Safety*100, c.Safety*w.Safety)
	fmt.Fprintf(&b, "  Mandate:     %.2f x %.0f%% = %.3f\n", c.Mandate, w.Mandate*100, c.Mandate*w.Mandate)
	fmt.Fprintf(&b, "  Benefit:     %.2f x %.0f%% = %.3f\n", c.Benefit, w.Benefit*100, c.Benefit*w.Benefit)
	fmt.Fprintf(&b, "  Urgency:     %.2f x %.0f%% = %.3f\n", c.Urgency, w.Urgency*100, c.Urgency*w.Urgency)
	fmt.Fprintf(&b, "  Feasibility: %.2f x %.0f%% = %.3f\n", c.Feasibility, w.Feasibility*100, c.Feasibility*w.Feasibility)
	fmt.Fprintf(&b, "  Equity x:    %.3f\n", c.EquityMultiplier)
	fmt.Fprintf(&b, "  COMPOSITE:   %.3f", c.Composite)
	return b.String()
}
