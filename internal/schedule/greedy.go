package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

// Greedy places projects one at a time in effective-priority order, taking
// the first window with enough capacity across the full duration. Single
// pass, no backtracking: an early placement can block a later, more urgent
// one, which the repair scheduler exists to fix.
type Greedy struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewGreedy(cfg *config.Config, log *zap.SugaredLogger) *Greedy {
	return &Greedy{cfg: cfg, log: log}
}

func (g *Greedy) Name() string { return "greedy" }

func (g *Greedy) Schedule(ctx context.Context, reqs []Request, led *ledger.Ledger, horizonWeeks int) (*model.ScheduleOutput, error) {
	ordered := byEffectivePriority(reqs, g.cfg.Scheduler.UrgencyPriorityWeight)

	var tasks []model.ScheduleTask
	var infeasible []int
	for _, r := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		task, ok, err := placeFirstFit(r, led, horizonWeeks)
		if err != nil {
			return nil, err
		}
		if !ok {
			g.log.Warnw("no feasible window", "project_id", r.ProjectID, "resource", r.ResourceType, "weeks", r.Weeks)
			infeasible = append(infeasible, r.ProjectID)
			continue
		}
		tasks = append(tasks, task)
	}
	return buildOutput(g.Name(), horizonWeeks, tasks, infeasible), nil
}

// placeFirstFit scans start weeks in order and reserves the first window the
// ledger accepts. A capacity refusal just moves the scan to the next week.
func placeFirstFit(r Request, led *ledger.Ledger, horizonWeeks int) (model.ScheduleTask, bool, error) {
	if r.Weeks < 1 || r.Weeks > horizonWeeks {
		return model.ScheduleTask{}, false, nil
	}
	for start := 1; start <= horizonWeeks-r.Weeks+1; start++ {
		end := start + r.Weeks - 1
		err := led.ReserveWindow(r.ResourceType, start, end, r.CrewSize, r.Kind())
		if errors.Is(err, ledger.ErrCapacityExceeded) {
			continue
		}
		if err != nil {
			return model.ScheduleTask{}, false, fmt.Errorf("reserve project %d: %w", r.ProjectID, err)
		}
		status, slack := deadlineStatus(end, r.DeadlineWeek)
		task, err := model.NewScheduleTask(r.ProjectID, start, end, r.DeadlineWeek, status, slack, r.ResourceType, r.CrewSize, r.Kind())
		if err != nil {
			return model.ScheduleTask{}, false, err
		}
		return task, true, nil
	}
	return model.ScheduleTask{}, false, nil
}

// byEffectivePriority returns a copy sorted for scheduling, lowest effective
// priority first, ranks breaking ties so runs are deterministic.
func byEffectivePriority(reqs []Request, urgencyWeight float64) []Request {
	out := make([]Request, len(reqs))
	copy(out, reqs)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := effectivePriority(out[i], urgencyWeight), effectivePriority(out[j], urgencyWeight)
		if pi != pj {
			return pi < pj
		}
		return out[i].PriorityRank < out[j].PriorityRank
	})
	return out
}
