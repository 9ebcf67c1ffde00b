package model

import (
	"fmt"
	"time"
)

// District is a geographic unit for equity tracking
type District struct {
	ID         int    `json:"district_id" gorm:"primaryKey;column:district_id"`
	Name       string `json:"name"`
	Population int    `json:"population"`
}

// Issue is a raw municipal issue report (citizen complaint, inspection, mandate)
type Issue struct {
	ID          int       `json:"issue_id" gorm:"primaryKey;column:issue_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	DistrictID  *int      `json:"district_id,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// IssueSignal holds the quantified impact/risk metrics for an issue
type IssueSignal struct {
	IssueID            int         `json:"issue_id" gorm:"primaryKey;column:issue_id"`
	PopulationAffected int         `json:"population_affected"`
	ComplaintCount     int         `json:"complaint_count"`
	SafetyTier         SafetyTier  `json:"safety_tier"`
	MandateTier        MandateTier `json:"mandate_tier"`
	EstimatedCost      float64     `json:"estimated_cost"`
	UrgencyDays        int         `json:"urgency_days"`

	// Optional sizing hints from the intake source; zero means the planner
	// estimates them from cost.
	DurationWeeks int `json:"estimated_duration_weeks,omitempty"`
	CrewSize      int `json:"recommended_crew_size,omitempty"`
}

// Validate rejects malformed signals at the boundary before they enter the core
func (s IssueSignal) Validate() error {
	if err := s.SafetyTier.Validate(); err != nil {
		return fmt.Errorf("issue %d: %w", s.IssueID, err)
	}
	if err := s.MandateTier.Validate(); err != nil {
		return fmt.Errorf("issue %d: %w", s.IssueID, err)
	}
	if s.EstimatedCost <= 0 {
		return fmt.Errorf("issue %d: estimated cost must be positive, got %.2f", s.IssueID, s.EstimatedCost)
	}
	if s.UrgencyDays < 1 {
		return fmt.Errorf("issue %d: urgency days must be >= 1, got %d", s.IssueID, s.UrgencyDays)
	}
	if s.PopulationAffected < 0 {
		return fmt.Errorf("issue %d: population affected must be >= 0, got %d", s.IssueID, s.PopulationAffected)
	}
	if s.ComplaintCount < 0 {
		return fmt.Errorf("issue %d: complaint count must be >= 0, got %d", s.IssueID, s.ComplaintCount)
	}
	return nil
}

// IssueWithSignal combines an issue with its signal for scoring
type IssueWithSignal struct {
	Issue  Issue
	Signal IssueSignal
}
