package model

import (
	"fmt"
	"time"
)

// ScoreComponents is the transparent breakdown of a composite value-score.
// All component scores live in [0,1]; the equity multiplier is bounded by the
// configured clamp (±12.5% at default strength). Immutable after construction.
type ScoreComponents struct {
	Safety           float64 `json:"safety_score"`
	Mandate          float64 `json:"mandate_score"`
	Benefit          float64 `json:"benefit_score"`
	Urgency          float64 `json:"urgency_score"`
	Feasibility      float64 `json:"feasibility_score"`
	EquityMultiplier float64 `json:"equity_multiplier"`
	Composite        float64 `json:"composite_score"`
}

// NewScoreComponents validates component ranges at construction time
func NewScoreComponents(safety, mandate, benefit, urgency, feasibility, equityMult, composite float64) (ScoreComponents, error) {
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"safety", safety},
		{"mandate", mandate},
		{"benefit", benefit},
		{"urgency", urgency},
		{"feasibility", feasibility},
	} {
		if c.value < 0 || c.value > 1 {
			return ScoreComponents{}, fmt.Errorf("%s score %.4f outside [0,1]", c.name, c.value)
		}
	}
	if composite < 0 {
		return ScoreComponents{}, fmt.Errorf("composite score %.4f must be >= 0", composite)
	}
	return ScoreComponents{
		Safety:           safety,
		Mandate:          mandate,
		Benefit:          benefit,
		Urgency:          urgency,
		Feasibility:      feasibility,
		EquityMultiplier: equityMult,
		Composite:        composite,
	}, nil
}

// ProjectCandidate is a proposed project with cost estimates and scoring
type ProjectCandidate struct {
	ID                  int        `json:"project_id" gorm:"primaryKey;column:project_id"`
	IssueID             int        `json:"issue_id"`
	Title               string     `json:"title"`
	Scope               string     `json:"scope,omitempty"`
	DistrictID          *int       `json:"district_id,omitempty"`
	EstimatedCost       float64    `json:"estimated_cost"`
	EstimatedWeeks      int        `json:"estimated_weeks"`
	UrgencyDays         int        `json:"urgency_days"`
	CrewType            string     `json:"crew_type"`
	CrewSize            int        `json:"crew_size"`
	Scores              ScoreComponents `json:"scores" gorm:"embedded"`
	FeasibilityEstimate float64    `json:"feasibility_estimate"`
	FeasibilityOverride *float64   `json:"feasibility_override,omitempty"`
	EquityTier          EquityTier `json:"equity_tier"`
	CreatedAt           time.Time  `json:"created_at"`
}

// EffectiveFeasibility returns the human override when present, otherwise the
// agent estimate.
func (p ProjectCandidate) EffectiveFeasibility() float64 {
	if p.FeasibilityOverride != nil {
		return *p.FeasibilityOverride
	}
	return p.FeasibilityEstimate
}

// Validate rejects malformed candidates before allocation
func (p ProjectCandidate) Validate() error {
	if p.EstimatedCost <= 0 {
		return fmt.Errorf("project %d: cost must be positive", p.ID)
	}
	if p.EstimatedWeeks < 1 {
		return fmt.Errorf("project %d: duration must be >= 1 week", p.ID)
	}
	if p.CrewSize < 1 {
		return fmt.Errorf("project %d: crew size must be >= 1", p.ID)
	}
	if p.CrewType == "" {
		return fmt.Errorf("project %d: crew type is required", p.ID)
	}
	return nil
}

// ScoreSource identifies who produced a score value
type ScoreSource string

const (
	SourceAgent ScoreSource = "agent"
	SourceHuman ScoreSource = "human"
)

// ScoringProvenance records the origin of each score component for auditability.
// Human overrides carry the original value alongside the final one.
type ScoringProvenance struct {
	ID            int         `json:"id" gorm:"primaryKey"`
	ProjectID     int         `json:"project_id"`
	ScoreType     string      `json:"score_type"`
	Source        ScoreSource `json:"source"`
	ActorID       string      `json:"actor_id"`
	OriginalValue float64     `json:"original_value"`
	FinalValue    float64     `json:"final_value"`
	Reason        string      `json:"reason,omitempty"`
	RecordedAt    time.Time   `json:"recorded_at"`
}
