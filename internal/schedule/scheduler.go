package schedule

import (
	"context"

	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

// Request is one approved project as the schedulers see it: the candidate's
// resource demand plus the priority and deadline assigned by the portfolio
// decision.
type Request struct {
	ProjectID    int
	PriorityRank int
	Urgency      float64
	DeadlineWeek int
	ResourceType string
	CrewSize     int
	Weeks        int

	// PendingConfirmation marks decisions still awaiting human sign-off.
	// Their capacity is soft-reserved and releasable on expiry.
	PendingConfirmation bool
}

// NewRequest pairs an approved candidate with its portfolio decision.
func NewRequest(c model.ProjectCandidate, d model.PortfolioDecision) Request {
	return Request{
		ProjectID:           c.ID,
		PriorityRank:        d.PriorityRank,
		Urgency:             c.Scores.Urgency,
		DeadlineWeek:        d.DeadlineWeek,
		ResourceType:        c.CrewType,
		CrewSize:            c.CrewSize,
		Weeks:               c.EstimatedWeeks,
		PendingConfirmation: d.Pending(),
	}
}

// Kind is the reservation kind this request's capacity holds take.
func (r Request) Kind() model.ReservationKind {
	if r.PendingConfirmation {
		return model.ReservationSoft
	}
	return model.ReservationHard
}

// Scheduler places approved projects onto the resource ledger. Placements
// reserve capacity as a side effect; projects with no feasible window are
// reported in the output's infeasible list, never dropped silently.
type Scheduler interface {
	Name() string
	Schedule(ctx context.Context, reqs []Request, led *ledger.Ledger, horizonWeeks int) (*model.ScheduleOutput, error)
}

// effectivePriority blends the portfolio rank with urgency so pressing work
// schedules ahead of nominally higher-ranked but slower-burning projects.
// Lower values schedule earlier.
func effectivePriority(r Request, urgencyWeight float64) float64 {
	return float64(r.PriorityRank) / (1 + urgencyWeight*r.Urgency)
}

// deadlineStatus classifies a placement against its deadline week and
// returns the slack in days. Two or more weeks of slack is comfortable, one
// or zero is at risk, negative is missed.
func deadlineStatus(endWeek, deadlineWeek int) (model.DeadlineStatus, int) {
	slackWeeks := deadlineWeek - endWeek
	slackDays := slackWeeks * 7
	switch {
	case slackWeeks >= 2:
		return model.DeadlineOnTrack, slackDays
	case slackWeeks >= 0:
		return model.DeadlineAtRisk, slackDays
	default:
		return model.DeadlineMissed, slackDays
	}
}

// buildOutput assembles the ScheduleOutput and its deadline risk count.
func buildOutput(name string, horizonWeeks int, tasks []model.ScheduleTask, infeasible []int) *model.ScheduleOutput {
	risk := 0
	for _, task := range tasks {
		if task.DeadlineStatus != model.DeadlineOnTrack {
			risk++
		}
	}
	return &model.ScheduleOutput{
		Tasks:        tasks,
		Infeasible:   infeasible,
		HorizonWeeks: horizonWeeks,
		Scheduler:    name,
		DeadlineRisk: risk,
	}
}
