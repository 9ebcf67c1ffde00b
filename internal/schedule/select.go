package schedule

import (
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
)

// Select picks the scheduler for one planning cycle from the batch shape:
// project count, distinct resource types, and the fraction of high-urgency
// projects. Small uniform batches take the cheap greedy pass, mid-size calm
// batches get greedy with repair, everything else goes to the solver.
func Select(cfg *config.Config, log *zap.SugaredLogger, reqs []Request) Scheduler {
	projects := len(reqs)
	resources := make(map[string]struct{})
	urgent := 0
	for _, r := range reqs {
		resources[r.ResourceType] = struct{}{}
		if r.Urgency > cfg.Governance.UrgencyScoreFloor {
			urgent++
		}
	}
	urgentFrac := 0.0
	if projects > 0 {
		urgentFrac = float64(urgent) / float64(projects)
	}

	var s Scheduler
	switch {
	case projects <= cfg.Scheduler.GreedyMaxProjects && len(resources) <= cfg.Scheduler.GreedyMaxResourceTypes:
		s = NewGreedy(cfg, log)
	case projects <= cfg.Scheduler.RepairMaxProjects && urgentFrac <= cfg.Scheduler.RepairMaxUrgentFrac:
		s = NewGreedyWithRepair(cfg, log)
	default:
		s = NewConstraint(cfg, log)
	}
	log.Infow("scheduler selected",
		"scheduler", s.Name(),
		"projects", projects,
		"resource_types", len(resources),
		"urgent_fraction", urgentFrac,
	)
	return s
}
