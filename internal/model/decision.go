package model

import "time"

// PortfolioDecision is a budget allocation decision for a single project
type PortfolioDecision struct {
	ID              int            `json:"decision_id" gorm:"primaryKey;column:decision_id"`
	ProjectID       int            `json:"project_id"`
	Status          DecisionStatus `json:"decision" gorm:"column:decision"`
	AllocatedBudget float64        `json:"allocated_budget,omitempty"`
	PriorityRank    int            `json:"priority_rank,omitempty"`
	Rationale       string         `json:"rationale"`
	DeadlineWeek    int            `json:"deadline_week,omitempty"`

	// Confirmation workflow; populated iff Status == APPROVED_WITH_CONDITIONS
	RequiresConfirmation bool       `json:"requires_confirmation"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty"`
	ConfirmedAt          *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy          string     `json:"confirmed_by,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}

// Pending reports whether the decision is awaiting human confirmation
func (d PortfolioDecision) Pending() bool {
	return d.Status == DecisionConditional && d.ConfirmedAt == nil
}

// PortfolioSummary aggregates the allocator's decisions for one cycle
type PortfolioSummary struct {
	TotalBudget     float64             `json:"total_budget"`
	AllocatedBudget float64             `json:"allocated_budget"`
	RemainingBudget float64             `json:"remaining_budget"`
	MandateSpend    float64             `json:"mandate_spend"`
	UrgentSpend     float64             `json:"urgent_spend"`
	ValueSpend      float64             `json:"value_spend"`
	ApprovedCount   int                 `json:"approved_count"`
	ConditionalCount int                `json:"conditional_count"`
	DeferredCount   int                 `json:"deferred_count"`
	RejectedCount   int                 `json:"rejected_count"`
	Decisions       []PortfolioDecision `json:"decisions" gorm:"-"`
}
