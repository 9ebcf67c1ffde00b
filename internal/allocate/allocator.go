package allocate

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
)

// ErrInsufficientBudget signals that an approval would overdraw the quarterly
// budget. The caller decides whether to defer lower-priority work first.
var ErrInsufficientBudget = errors.New("insufficient budget")

// Rationale strings recorded on decisions.
const (
	rationaleMandate       = "legal mandate obligation"
	rationaleUrgent        = "critical safety with high urgency"
	rationaleValue         = "value-ranked by composite score"
	rationaleMandateCap    = "mandate budget cap exceeded"
	rationaleUrgentCap     = "urgent-critical budget cap exceeded"
	rationaleExhausted     = "budget exhausted"
	rationaleEquity        = "sequencing investment for long-run geographic fairness"
	rationaleLowValue      = "no mandate, no safety concern, low urgency"
	lowValueUrgencyCeiling = 0.3
)

// Allocator runs tiered budget selection over scored project candidates.
//
// Three phases, each greedy by composite score descending:
//  1. mandates (mandate_score >= floor), capped at a fraction of the budget
//  2. urgent-critical (urgency > floor AND safety >= floor), capped likewise
//  3. value-ranked, capped at whatever the first two phases left
//
// Ties within a phase are broken by candidate insertion order so repeated
// runs over the same input produce identical portfolios.
type Allocator struct {
	cfg *config.Config
	log *zap.SugaredLogger
	now func() time.Time
}

// New creates an Allocator. The clock is injectable for tests.
func New(cfg *config.Config, log *zap.SugaredLogger) *Allocator {
	return &Allocator{cfg: cfg, log: log, now: time.Now}
}

// WithClock overrides the allocator's clock.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// districtLedger tracks projected per-district spend during a single run so
// the equity check sees approvals made earlier in the same cycle.
type districtLedger struct {
	fairShare map[int]float64
	spend     map[int]float64
}

func newDistrictLedger(allocations map[int]model.DistrictAllocation) *districtLedger {
	l := &districtLedger{
		fairShare: make(map[int]float64, len(allocations)),
		spend:     make(map[int]float64, len(allocations)),
	}
	for id, alloc := range allocations {
		l.fairShare[id] = alloc.FairShareBudget
		l.spend[id] = alloc.AllocatedBudget
	}
	return l
}

// wouldExceed reports whether adding cost to the district would push it past
// threshold multiples of its fair share. Unknown districts never violate.
func (l *districtLedger) wouldExceed(districtID *int, cost, threshold float64) bool {
	if districtID == nil {
		return false
	}
	fair, ok := l.fairShare[*districtID]
	if !ok || fair <= 0 {
		return false
	}
	return l.spend[*districtID]+cost > fair*threshold
}

func (l *districtLedger) commit(districtID *int, cost float64) {
	if districtID != nil {
		l.spend[*districtID] += cost
	}
}

// Allocate runs the three selection phases over candidates and returns one
// decision per candidate. District allocations carry prior-quarter spend for
// the equity constraint; a nil map disables it.
func (a *Allocator) Allocate(candidates []model.ProjectCandidate, allocations map[int]model.DistrictAllocation) (*model.PortfolioSummary, error) {
	budget := a.cfg.City.QuarterlyBudget
	mandateCap := budget * a.cfg.Governance.MandateBudgetCap
	urgentCap := budget * a.cfg.Governance.UrgentCriticalCap

	summary := &model.PortfolioSummary{TotalBudget: budget}
	districts := newDistrictLedger(allocations)
	decided := make(map[int]bool, len(candidates))
	rank := 0

	admit := func(pool []model.ProjectCandidate, phaseCap float64, approveReason, deferReason string, spend *float64) error {
		for _, c := range pool {
			if *spend+c.EstimatedCost > phaseCap {
				summary.Decisions = append(summary.Decisions, a.deferral(c, deferReason))
				summary.DeferredCount++
				decided[c.ID] = true
				continue
			}
			if c.EstimatedCost > summary.TotalBudget-summary.AllocatedBudget {
				return fmt.Errorf("project %d needs $%.0f with $%.0f remaining: %w",
					c.ID, c.EstimatedCost, summary.TotalBudget-summary.AllocatedBudget, ErrInsufficientBudget)
			}
			if districts.wouldExceed(c.DistrictID, c.EstimatedCost, a.cfg.Equity.DeferThreshold) {
				a.log.Infow("equity deferral", "project_id", c.ID, "district_id", *c.DistrictID)
				summary.Decisions = append(summary.Decisions, a.deferral(c, rationaleEquity))
				summary.DeferredCount++
				decided[c.ID] = true
				continue
			}
			rank++
			d := a.approve(c, rank, approveReason)
			summary.Decisions = append(summary.Decisions, d)
			if d.Status == model.DecisionConditional {
				summary.ConditionalCount++
			} else {
				summary.ApprovedCount++
			}
			*spend += c.EstimatedCost
			summary.AllocatedBudget += c.EstimatedCost
			districts.commit(c.DistrictID, c.EstimatedCost)
			decided[c.ID] = true
		}
		return nil
	}

	// Phase 1: mandates.
	mandates := filterByScore(candidates, decided, func(c model.ProjectCandidate) bool {
		return c.Scores.Mandate >= a.cfg.Governance.MandateScoreFloor
	})
	if err := admit(mandates, mandateCap, rationaleMandate, rationaleMandateCap, &summary.MandateSpend); err != nil {
		return nil, err
	}

	// Phase 2: urgent-critical.
	urgent := filterByScore(candidates, decided, func(c model.ProjectCandidate) bool {
		return c.Scores.Urgency > a.cfg.Governance.UrgencyScoreFloor &&
			c.Scores.Safety >= a.cfg.Governance.ConfirmationSafetyScore
	})
	if err := admit(urgent, urgentCap, rationaleUrgent, rationaleUrgentCap, &summary.UrgentSpend); err != nil {
		return nil, err
	}

	// Phase 3: value-ranked over what remains of the budget. Exhaustion here
	// is the one place a candidate can be rejected outright, and only when it
	// carries no mandate, no safety concern, and little urgency.
	valueCap := budget - summary.MandateSpend - summary.UrgentSpend
	remaining := filterByScore(candidates, decided, func(c model.ProjectCandidate) bool { return true })
	for _, c := range remaining {
		if summary.ValueSpend+c.EstimatedCost > valueCap {
			if a.rejectable(c) {
				summary.Decisions = append(summary.Decisions, a.reject(c))
				summary.RejectedCount++
			} else {
				summary.Decisions = append(summary.Decisions, a.deferral(c, rationaleExhausted))
				summary.DeferredCount++
			}
			continue
		}
		if districts.wouldExceed(c.DistrictID, c.EstimatedCost, a.cfg.Equity.DeferThreshold) {
			a.log.Infow("equity deferral", "project_id", c.ID, "district_id", *c.DistrictID)
			summary.Decisions = append(summary.Decisions, a.deferral(c, rationaleEquity))
			summary.DeferredCount++
			continue
		}
		rank++
		d := a.approve(c, rank, rationaleValue)
		summary.Decisions = append(summary.Decisions, d)
		if d.Status == model.DecisionConditional {
			summary.ConditionalCount++
		} else {
			summary.ApprovedCount++
		}
		summary.ValueSpend += c.EstimatedCost
		summary.AllocatedBudget += c.EstimatedCost
		districts.commit(c.DistrictID, c.EstimatedCost)
	}

	summary.RemainingBudget = budget - summary.AllocatedBudget
	a.log.Infow("portfolio allocated",
		"candidates", len(candidates),
		"approved", summary.ApprovedCount,
		"conditional", summary.ConditionalCount,
		"deferred", summary.DeferredCount,
		"rejected", summary.RejectedCount,
		"allocated", summary.AllocatedBudget,
		"remaining", summary.RemainingBudget,
	)
	return summary, nil
}

// approve builds the decision for an admitted candidate, deciding whether
// human confirmation is required.
func (a *Allocator) approve(c model.ProjectCandidate, rank int, rationale string) model.PortfolioDecision {
	needsConfirmation := c.EstimatedCost >= a.cfg.Governance.ConfirmationCost ||
		c.Scores.Safety >= a.cfg.Governance.ConfirmationSafetyScore

	d := model.PortfolioDecision{
		ProjectID:       c.ID,
		Status:          model.DecisionApproved,
		AllocatedBudget: c.EstimatedCost,
		PriorityRank:    rank,
		Rationale:       rationale,
		DeadlineWeek:    deadlineWeek(c.UrgencyDays),
		DecidedAt:       a.now(),
	}
	if needsConfirmation {
		deadline := a.now().Add(a.cfg.Governance.ConfirmationTimeout)
		d.Status = model.DecisionConditional
		d.RequiresConfirmation = true
		d.ConfirmationDeadline = &deadline
	}
	return d
}

func (a *Allocator) deferral(c model.ProjectCandidate, rationale string) model.PortfolioDecision {
	return model.PortfolioDecision{
		ProjectID: c.ID,
		Status:    model.DecisionDeferred,
		Rationale: rationale,
		DecidedAt: a.now(),
	}
}

func (a *Allocator) reject(c model.ProjectCandidate) model.PortfolioDecision {
	return model.PortfolioDecision{
		ProjectID: c.ID,
		Status:    model.DecisionRejected,
		Rationale: rationaleLowValue,
		DecidedAt: a.now(),
	}
}

// rejectable limits outright rejection to candidates with nothing forcing a
// future reconsideration. Everything else is deferred.
func (a *Allocator) rejectable(c model.ProjectCandidate) bool {
	return c.Scores.Mandate == 0 && c.Scores.Safety == 0 && c.Scores.Urgency < lowValueUrgencyCeiling
}

// deadlineWeek converts an urgency window in days to the planning week the
// project must finish by. Week numbering starts at 1.
func deadlineWeek(urgencyDays int) int {
	w := urgencyDays / 7
	if w < 1 {
		w = 1
	}
	return w
}

// filterByScore selects undecided candidates matching keep, sorted by
// composite score descending with insertion order breaking ties.
func filterByScore(candidates []model.ProjectCandidate, decided map[int]bool, keep func(model.ProjectCandidate) bool) []model.ProjectCandidate {
	out := make([]model.ProjectCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !decided[c.ID] && keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Scores.Composite > out[j].Scores.Composite
	})
	return out
}
