package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppetrenko/civicplan/internal/allocate"
	"github.com/ppetrenko/civicplan/internal/audit"
	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/schedule"
	"github.com/ppetrenko/civicplan/internal/score"
	"github.com/ppetrenko/civicplan/internal/store"
	"github.com/ppetrenko/civicplan/internal/worker"
)

const defaultScoringConcurrency = 4

// Planner orchestrates one complete planning cycle: formation and scoring of
// open issues, phased budget allocation, and resource scheduling. Each run
// starts from a clean slate; prior cycle outputs are cleared so the cycle is
// reproducible against the same issue feed.
type Planner struct {
	cfg         *config.Config
	store       *store.Store
	log         *zap.SugaredLogger
	concurrency int
	now         func() time.Time
}

// NewPlanner creates a planner over the given store
func NewPlanner(cfg *config.Config, st *store.Store, log *zap.SugaredLogger) *Planner {
	return &Planner{
		cfg:         cfg,
		store:       st,
		log:         log,
		concurrency: defaultScoringConcurrency,
		now:         time.Now,
	}
}

// WithConcurrency sets the scoring worker count
func (p *Planner) WithConcurrency(n int) *Planner {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

// WithClock fixes the planner's clock; tests use this for determinism
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// SkippedIssue is an issue that failed formation or scoring
type SkippedIssue struct {
	IssueID int    `json:"issue_id"`
	Reason  string `json:"reason"`
}

// Result is the complete output of one planning cycle
type Result struct {
	Quarter    string                   `json:"quarter"`
	Year       int                      `json:"year"`
	Candidates []model.ProjectCandidate `json:"candidates"`
	Summary    *model.PortfolioSummary  `json:"portfolio"`
	Schedule   *model.ScheduleOutput    `json:"schedule"`
	Skipped    []SkippedIssue           `json:"skipped_issues,omitempty"`
}

// Run executes the full cycle against the store's open issues
func (p *Planner) Run(ctx context.Context) (*Result, error) {
	now := p.now()
	quarter := Quarter(now)
	year := now.Year()

	if err := p.store.ClearPlanningOutputs(); err != nil {
		return nil, fmt.Errorf("reset cycle: %w", err)
	}

	var (
		districts []model.District
		issues    []model.IssueWithSignal
		slots     []model.ResourceSlot
	)
	var g errgroup.Group
	g.Go(func() (err error) {
		if districts, err = p.store.Districts(); err != nil {
			return fmt.Errorf("load districts: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if issues, err = p.store.OpenIssues(); err != nil {
			return fmt.Errorf("load issues: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if slots, err = p.store.ResourceSlots(year); err != nil {
			return fmt.Errorf("load resource calendar: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	p.log.Infow("planning cycle started",
		"quarter", quarter, "year", year,
		"districts", len(districts), "open_issues", len(issues))

	allocations := p.freshAllocations(districts, quarter, year)
	if err := p.store.SaveDistrictAllocations(allocations); err != nil {
		return nil, fmt.Errorf("save district allocations: %w", err)
	}

	led := p.restoreLedger(slots, year)

	rec := audit.NewRecorder(p.store, p.log).WithClock(p.now)

	scorer := BuildScorer(p.cfg, issues, districts, allocations)
	candidates, skipped := p.scoreIssues(ctx, issues, led, scorer)
	for i := range candidates {
		if err := p.store.SaveProject(&candidates[i]); err != nil {
			return nil, fmt.Errorf("save project %d: %w", candidates[i].ID, err)
		}
		rec.Record(model.EventProjectScored, "pipeline", map[string]any{
			"project_id":  candidates[i].ID,
			"issue_id":    candidates[i].IssueID,
			"composite":   candidates[i].Scores.Composite,
			"feasibility": candidates[i].FeasibilityEstimate,
			"breakdown":   scorer.Explain(candidates[i].Scores),
		})
	}

	allocMap := make(map[int]model.DistrictAllocation, len(allocations))
	for _, a := range allocations {
		allocMap[a.DistrictID] = a
	}

	summary, err := allocate.New(p.cfg, p.log).WithClock(p.now).Allocate(candidates, allocMap)
	if err != nil {
		return nil, fmt.Errorf("allocate budget: %w", err)
	}

	byProject := make(map[int]model.ProjectCandidate, len(candidates))
	for _, c := range candidates {
		byProject[c.ID] = c
	}
	if err := p.recordDecisions(rec, summary, byProject, allocMap, quarter, year); err != nil {
		return nil, err
	}

	out, err := p.runScheduler(ctx, summary, byProject, led, rec)
	if err != nil {
		return nil, err
	}

	if err := p.store.SaveResourceSlots(led.Snapshot()); err != nil {
		return nil, fmt.Errorf("save resource calendar: %w", err)
	}

	p.log.Infow("planning cycle complete",
		"candidates", len(candidates),
		"approved", summary.ApprovedCount,
		"conditional", summary.ConditionalCount,
		"deferred", summary.DeferredCount,
		"rejected", summary.RejectedCount,
		"scheduled", len(out.Tasks),
		"infeasible", len(out.Infeasible))

	return &Result{
		Quarter:    quarter,
		Year:       year,
		Candidates: candidates,
		Summary:    summary,
		Schedule:   out,
		Skipped:    skipped,
	}, nil
}

// freshAllocations builds the quarter's fair-share ledger rows, one per
// district, proportional to population.
func (p *Planner) freshAllocations(districts []model.District, quarter string, year int) []model.DistrictAllocation {
	allocations := make([]model.DistrictAllocation, 0, len(districts))
	for _, d := range districts {
		fairShare := 0.0
		if p.cfg.City.Population > 0 {
			fairShare = p.cfg.City.QuarterlyBudget * float64(d.Population) / float64(p.cfg.City.Population)
		}
		allocations = append(allocations, model.DistrictAllocation{
			DistrictID:      d.ID,
			Quarter:         quarter,
			Year:            year,
			Population:      d.Population,
			FairShareBudget: fairShare,
		})
	}
	return allocations
}

func (p *Planner) restoreLedger(slots []model.ResourceSlot, year int) *ledger.Ledger {
	if len(slots) == 0 {
		p.log.Infow("no resource calendar persisted, seeding from configured capacities", "year", year)
		return ledger.New(p.cfg.Crews.Capacities, p.cfg.City.HorizonWeeks, year)
	}
	return ledger.Restore(slots, year)
}

// scoreIssues runs formation and composite scoring for every open issue on a
// worker pool. Failed issues are skipped with a warning, never fatal.
func (p *Planner) scoreIssues(ctx context.Context, issues []model.IssueWithSignal, led *ledger.Ledger, scorer *score.CompositeScorer) ([]model.ProjectCandidate, []SkippedIssue) {
	former := &crewFormer{
		cfg:     p.cfg,
		scorer:  scorer,
		led:     led,
		horizon: p.cfg.City.HorizonWeeks,
	}

	results := worker.NewBatchScorer(former, p.concurrency).ScoreIssues(ctx, issues)
	sort.Slice(results, func(i, j int) bool { return results[i].IssueID < results[j].IssueID })

	var candidates []model.ProjectCandidate
	var skipped []SkippedIssue
	for _, res := range results {
		if err := res.GetError(); err != nil {
			p.log.Warnw("issue skipped", "issue_id", res.IssueID, "error", err)
			skipped = append(skipped, SkippedIssue{IssueID: res.IssueID, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, *res.Candidate)
	}
	return candidates, skipped
}

// recordDecisions persists each allocation decision, emits the matching audit
// event, and books approved spend against the district fair-share rows.
func (p *Planner) recordDecisions(rec *audit.Recorder, summary *model.PortfolioSummary, byProject map[int]model.ProjectCandidate, allocMap map[int]model.DistrictAllocation, quarter string, year int) error {
	for i := range summary.Decisions {
		d := &summary.Decisions[i]
		if err := p.store.SaveDecision(d); err != nil {
			return fmt.Errorf("save decision for project %d: %w", d.ProjectID, err)
		}

		payload := map[string]any{
			"project_id":    d.ProjectID,
			"decision":      d.Status,
			"rationale":     d.Rationale,
			"priority_rank": d.PriorityRank,
		}
		switch d.Status {
		case model.DecisionApproved:
			rec.Record(model.EventProjectApproved, "allocator", payload)
		case model.DecisionConditional:
			payload["requires_confirmation"] = true
			payload["confirmation_deadline"] = d.ConfirmationDeadline
			rec.Record(model.EventProjectApproved, "allocator", payload)
		case model.DecisionDeferred:
			rec.Record(model.EventProjectDeferred, "allocator", payload)
		case model.DecisionRejected:
			rec.Record(model.EventProjectRejected, "allocator", payload)
		}

		if d.Status != model.DecisionApproved && d.Status != model.DecisionConditional {
			continue
		}
		c, ok := byProject[d.ProjectID]
		if !ok || c.DistrictID == nil {
			continue
		}
		a, ok := allocMap[*c.DistrictID]
		if !ok {
			a = model.DistrictAllocation{DistrictID: *c.DistrictID, Quarter: quarter, Year: year}
		}
		a.AllocatedBudget += d.AllocatedBudget
		a.ProjectCount++
		allocMap[*c.DistrictID] = a
	}

	updated := make([]model.DistrictAllocation, 0, len(allocMap))
	for _, a := range allocMap {
		updated = append(updated, a)
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i].DistrictID < updated[j].DistrictID })
	if err := p.store.SaveDistrictAllocations(updated); err != nil {
		return fmt.Errorf("update district allocations: %w", err)
	}
	return nil
}

// runScheduler schedules every approved or conditional project and persists
// the resulting tasks.
func (p *Planner) runScheduler(ctx context.Context, summary *model.PortfolioSummary, byProject map[int]model.ProjectCandidate, led *ledger.Ledger, rec *audit.Recorder) (*model.ScheduleOutput, error) {
	var reqs []schedule.Request
	for _, d := range summary.Decisions {
		if d.Status != model.DecisionApproved && d.Status != model.DecisionConditional {
			continue
		}
		c, ok := byProject[d.ProjectID]
		if !ok {
			continue
		}
		reqs = append(reqs, schedule.NewRequest(c, d))
	}

	sched := schedule.Select(p.cfg, p.log, reqs)
	out, err := sched.Schedule(ctx, reqs, led, p.cfg.City.HorizonWeeks)
	if err != nil {
		return nil, fmt.Errorf("schedule projects: %w", err)
	}

	for i := range out.Tasks {
		task := &out.Tasks[i]
		if err := p.store.SaveTask(task); err != nil {
			return nil, fmt.Errorf("save task for project %d: %w", task.ProjectID, err)
		}
		rec.Record(model.EventTaskScheduled, "scheduler", map[string]any{
			"project_id":      task.ProjectID,
			"start_week":      task.StartWeek,
			"end_week":        task.EndWeek,
			"resource_type":   task.ResourceType,
			"crew_assigned":   task.CrewAssigned,
			"reservation":     task.Reservation,
			"deadline_status": task.DeadlineStatus,
		})
	}
	return out, nil
}

// Quarter names the calendar quarter a cycle belongs to, e.g. "Q1"
func Quarter(t time.Time) string {
	return fmt.Sprintf("Q%d", (int(t.Month())-1)/3+1)
}
