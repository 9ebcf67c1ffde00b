package schedule

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

// GreedyWithRepair runs the greedy pass, then tries to rescue MISSED tasks
// by swapping windows with an earlier-starting ON_TRACK task of nominally
// lower priority on the same resource. Iterations are bounded; a missed task
// with no eligible swap partner stays missed.
type GreedyWithRepair struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewGreedyWithRepair(cfg *config.Config, log *zap.SugaredLogger) *GreedyWithRepair {
	return &GreedyWithRepair{cfg: cfg, log: log}
}

func (s *GreedyWithRepair) Name() string { return "greedy_repair" }

func (s *GreedyWithRepair) Schedule(ctx context.Context, reqs []Request, led *ledger.Ledger, horizonWeeks int) (*model.ScheduleOutput, error) {
	out, err := NewGreedy(s.cfg, s.log).Schedule(ctx, reqs, led, horizonWeeks)
	if err != nil {
		return nil, err
	}

	byProject := make(map[int]Request, len(reqs))
	for _, r := range reqs {
		byProject[r.ProjectID] = r
	}

	for iter := 0; iter < s.cfg.Scheduler.MaxRepairIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		swapped, err := s.repairPass(out.Tasks, byProject, led, horizonWeeks)
		if err != nil {
			return nil, err
		}
		if !swapped {
			break
		}
	}

	return buildOutput(s.Name(), horizonWeeks, out.Tasks, out.Infeasible), nil
}

// repairPass attempts one swap per missed task and reports whether any
// placement changed.
func (s *GreedyWithRepair) repairPass(tasks []model.ScheduleTask, byProject map[int]Request, led *ledger.Ledger, horizonWeeks int) (bool, error) {
	weight := s.cfg.Scheduler.UrgencyPriorityWeight
	changed := false

	for i := range tasks {
		if tasks[i].DeadlineStatus != model.DeadlineMissed {
			continue
		}
		missed := &tasks[i]
		missedPrio := effectivePriority(byProject[missed.ProjectID], weight)

		for j := range tasks {
			donor := &tasks[j]
			if i == j ||
				donor.DeadlineStatus != model.DeadlineOnTrack ||
				donor.ResourceType != missed.ResourceType ||
				donor.StartWeek >= missed.StartWeek ||
				effectivePriority(byProject[donor.ProjectID], weight) <= missedPrio {
				continue
			}
			ok, err := s.trySwap(missed, donor, led, horizonWeeks)
			if err != nil {
				return false, err
			}
			if ok {
				s.log.Infow("repaired missed deadline",
					"project_id", missed.ProjectID,
					"donor_project_id", donor.ProjectID,
					"new_start", missed.StartWeek,
				)
				changed = true
				break
			}
		}
	}
	return changed, nil
}

// trySwap exchanges the start weeks of a missed task and a donor, keeping
// each task's own duration. Both new windows are reserved before either old
// reservation is considered gone; any failure restores the original
// placements exactly.
func (s *GreedyWithRepair) trySwap(missed, donor *model.ScheduleTask, led *ledger.Ledger, horizonWeeks int) (bool, error) {
	missedWeeks := missed.EndWeek - missed.StartWeek + 1
	donorWeeks := donor.EndWeek - donor.StartWeek + 1

	newMissedStart := donor.StartWeek
	newMissedEnd := newMissedStart + missedWeeks - 1
	newDonorStart := missed.StartWeek
	newDonorEnd := newDonorStart + donorWeeks - 1
	if newMissedEnd > horizonWeeks || newDonorEnd > horizonWeeks {
		return false, nil
	}

	if err := led.ReleaseWindow(missed.ResourceType, missed.StartWeek, missed.EndWeek, missed.CrewAssigned, missed.Reservation); err != nil {
		return false, fmt.Errorf("release project %d: %w", missed.ProjectID, err)
	}
	if err := led.ReleaseWindow(donor.ResourceType, donor.StartWeek, donor.EndWeek, donor.CrewAssigned, donor.Reservation); err != nil {
		return false, fmt.Errorf("release project %d: %w", donor.ProjectID, err)
	}

	restore := func() error {
		if err := led.ReserveWindow(missed.ResourceType, missed.StartWeek, missed.EndWeek, missed.CrewAssigned, missed.Reservation); err != nil {
			return fmt.Errorf("restore project %d: %w", missed.ProjectID, err)
		}
		if err := led.ReserveWindow(donor.ResourceType, donor.StartWeek, donor.EndWeek, donor.CrewAssigned, donor.Reservation); err != nil {
			return fmt.Errorf("restore project %d: %w", donor.ProjectID, err)
		}
		return nil
	}

	if err := led.ReserveWindow(missed.ResourceType, newMissedStart, newMissedEnd, missed.CrewAssigned, missed.Reservation); err != nil {
		return false, restore()
	}
	if err := led.ReserveWindow(donor.ResourceType, newDonorStart, newDonorEnd, donor.CrewAssigned, donor.Reservation); err != nil {
		if relErr := led.ReleaseWindow(missed.ResourceType, newMissedStart, newMissedEnd, missed.CrewAssigned, missed.Reservation); relErr != nil {
			return false, relErr
		}
		return false, restore()
	}

	missed.StartWeek, missed.EndWeek = newMissedStart, newMissedEnd
	missed.DeadlineStatus, missed.SlackDays = deadlineStatus(missed.EndWeek, missed.DeadlineWeek)
	donor.StartWeek, donor.EndWeek = newDonorStart, newDonorEnd
	donor.DeadlineStatus, donor.SlackDays = deadlineStatus(donor.EndWeek, donor.DeadlineWeek)
	return true, nil
}
