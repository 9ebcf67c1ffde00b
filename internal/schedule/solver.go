package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

// Objective weights. Scheduling a project always outweighs any lateness
// penalty it can accrue, so the solver prefers a late placement over no
// placement.
const (
	scheduledReward = 1000.0
	latenessPenalty = 100.0
)

// Constraint schedules by branch and bound over per-project start weeks,
// for batches too large for the greedy heuristics. The search is bounded by
// a wall-clock budget; on timeout the best incumbent found so far is
// committed, and if none exists every project is reported infeasible.
type Constraint struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewConstraint(cfg *config.Config, log *zap.SugaredLogger) *Constraint {
	return &Constraint{cfg: cfg, log: log}
}

func (s *Constraint) Name() string { return "constraint" }

// assignment is a candidate solution: start week per project index, 0 when
// unscheduled.
type assignment []int

type solverState struct {
	ctx     context.Context
	reqs    []Request
	horizon int
	// free capacity per resource and week, indexed [week-1]
	capacity map[string][]int
	deadline time.Time

	current assignment
	usage   map[string][]int

	best      assignment
	bestScore float64
	found     bool
	timedOut  bool
}

func (s *Constraint) Schedule(ctx context.Context, reqs []Request, led *ledger.Ledger, horizonWeeks int) (*model.ScheduleOutput, error) {
	ordered := byEffectivePriority(reqs, s.cfg.Scheduler.UrgencyPriorityWeight)

	st := &solverState{
		ctx:      ctx,
		reqs:     ordered,
		horizon:  horizonWeeks,
		capacity: freeCapacity(ordered, led, horizonWeeks),
		deadline: time.Now().Add(s.cfg.Scheduler.SolverTimeout),
		current:  make(assignment, len(ordered)),
		usage:    make(map[string][]int),
		best:     make(assignment, len(ordered)),
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(st.deadline) {
		st.deadline = ctxDeadline
	}
	for res := range st.capacity {
		st.usage[res] = make([]int, horizonWeeks)
	}

	st.search(0, 0)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if st.timedOut {
		s.log.Warnw("solver timeout", "projects", len(ordered), "incumbent_found", st.found)
	}

	if !st.found {
		infeasible := make([]int, 0, len(ordered))
		for _, r := range ordered {
			infeasible = append(infeasible, r.ProjectID)
		}
		return buildOutput(s.Name(), horizonWeeks, nil, infeasible), nil
	}
	return s.commit(st, led, horizonWeeks)
}

// commit reserves ledger capacity for the winning assignment and builds the
// schedule output.
func (s *Constraint) commit(st *solverState, led *ledger.Ledger, horizonWeeks int) (*model.ScheduleOutput, error) {
	var tasks []model.ScheduleTask
	var infeasible []int
	for i, r := range st.reqs {
		start := st.best[i]
		if start == 0 {
			infeasible = append(infeasible, r.ProjectID)
			continue
		}
		end := start + r.Weeks - 1
		if err := led.ReserveWindow(r.ResourceType, start, end, r.CrewSize, r.Kind()); err != nil {
			return nil, fmt.Errorf("commit project %d: %w", r.ProjectID, err)
		}
		status, slack := deadlineStatus(end, r.DeadlineWeek)
		task, err := model.NewScheduleTask(r.ProjectID, start, end, r.DeadlineWeek, status, slack, r.ResourceType, r.CrewSize, r.Kind())
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return buildOutput(s.Name(), horizonWeeks, tasks, infeasible), nil
}

// search explores project i given the score accumulated so far. Branches
// try start weeks earliest-first, then the unscheduled branch, so the first
// incumbent is already a greedy-quality solution.
func (st *solverState) search(i int, score float64) {
	if st.timedOut || st.ctx.Err() != nil || time.Now().After(st.deadline) {
		st.timedOut = true
		return
	}
	if i == len(st.reqs) {
		if !st.found || score > st.bestScore {
			copy(st.best, st.current)
			st.bestScore = score
			st.found = true
		}
		return
	}
	// Optimistic bound: every remaining project scheduled with no lateness.
	if st.found && score+scheduledReward*float64(len(st.reqs)-i) <= st.bestScore {
		return
	}

	r := st.reqs[i]
	if r.Weeks >= 1 && r.Weeks <= st.horizon {
		for start := 1; start <= st.horizon-r.Weeks+1; start++ {
			if !st.fits(r, start) {
				continue
			}
			st.occupy(r, start, r.CrewSize)
			st.current[i] = start
			st.search(i+1, score+scheduledReward-lateness(r, start))
			st.occupy(r, start, -r.CrewSize)
			if st.timedOut {
				return
			}
		}
	}
	st.current[i] = 0
	st.search(i+1, score)
}

func (st *solverState) fits(r Request, start int) bool {
	free := st.capacity[r.ResourceType]
	used := st.usage[r.ResourceType]
	for w := start; w < start+r.Weeks; w++ {
		if used[w-1]+r.CrewSize > free[w-1] {
			return false
		}
	}
	return true
}

func (st *solverState) occupy(r Request, start, crew int) {
	used := st.usage[r.ResourceType]
	for w := start; w < start+r.Weeks; w++ {
		used[w-1] += crew
	}
}

// lateness is the weighted deadline violation for placing r at start.
func lateness(r Request, start int) float64 {
	end := start + r.Weeks - 1
	if over := end - r.DeadlineWeek; over > 0 {
		return latenessPenalty * (1 + r.Urgency) * float64(over)
	}
	return 0
}

// freeCapacity snapshots per-week free capacity from the ledger for every
// resource type the requests touch.
func freeCapacity(reqs []Request, led *ledger.Ledger, horizonWeeks int) map[string][]int {
	out := make(map[string][]int)
	for _, r := range reqs {
		if _, ok := out[r.ResourceType]; ok {
			continue
		}
		weeks := make([]int, horizonWeeks)
		for w := 1; w <= horizonWeeks; w++ {
			weeks[w-1] = led.Available(r.ResourceType, w)
		}
		out[r.ResourceType] = weeks
	}
	return out
}
