// Package confirm implements the human confirmation workflow for
// conditionally approved projects: sign-off with optional feasibility
// override, rejection with task cancellation, and the deadline expiry sweep.
package confirm

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/audit"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/score"
)

var (
	// ErrNotPending is returned when the target decision is not awaiting
	// confirmation, whether already resolved or never conditional.
	ErrNotPending = errors.New("decision is not awaiting confirmation")

	// ErrBadOverride is returned for feasibility overrides outside [0,1].
	ErrBadOverride = errors.New("feasibility override must be in [0,1]")
)

// Store is the persistence surface the confirmation workflow needs.
type Store interface {
	DecisionByProject(projectID int) (*model.PortfolioDecision, error)
	SaveDecision(d *model.PortfolioDecision) error
	ProjectByID(id int) (*model.ProjectCandidate, error)
	SaveProject(p *model.ProjectCandidate) error
	SignalByIssue(issueID int) (*model.IssueSignal, error)
	TasksByProject(projectID int) ([]model.ScheduleTask, error)
	SaveTask(task *model.ScheduleTask) error
	AppendProvenance(p *model.ScoringProvenance) error
}

// Request is one confirmation action from the console.
type Request struct {
	ProjectID           int
	Approved            bool
	ActorID             string
	FeasibilityOverride *float64
	Reason              string
}

// Service applies confirmation requests against pending decisions.
type Service struct {
	store  Store
	scorer *score.CompositeScorer
	led    *ledger.Ledger
	audit  *audit.Recorder
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, scorer *score.CompositeScorer, led *ledger.Ledger, rec *audit.Recorder, log *zap.SugaredLogger) *Service {
	return &Service{store: store, scorer: scorer, led: led, audit: rec, log: log, now: time.Now}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Confirm resolves a pending decision. Approval upgrades the project's soft
// reservations to hard; rejection cancels its tasks and releases their
// capacity. Only decisions currently APPROVED_WITH_CONDITIONS and
// unconfirmed can be acted on.
func (s *Service) Confirm(req Request) (*model.PortfolioDecision, error) {
	d, err := s.store.DecisionByProject(req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load decision for project %d: %w", req.ProjectID, err)
	}
	if !d.Pending() {
		return nil, fmt.Errorf("project %d is %s: %w", req.ProjectID, d.Status, ErrNotPending)
	}

	if req.FeasibilityOverride != nil {
		if err := s.overrideFeasibility(req); err != nil {
			return nil, err
		}
	}

	if req.Approved {
		err = s.approve(d, req)
	} else {
		err = s.reject(d, req)
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) approve(d *model.PortfolioDecision, req Request) error {
	tasks, err := s.store.TasksByProject(req.ProjectID)
	if err != nil {
		return fmt.Errorf("load tasks for project %d: %w", req.ProjectID, err)
	}
	for i := range tasks {
		task := &tasks[i]
		if task.Status != model.TaskScheduled || task.Reservation != model.ReservationSoft {
			continue
		}
		if err := s.led.Upgrade(task.ResourceType, task.StartWeek, task.EndWeek, task.CrewAssigned); err != nil {
			return fmt.Errorf("upgrade reservation for project %d: %w", req.ProjectID, err)
		}
		task.Reservation = model.ReservationHard
		if err := s.store.SaveTask(task); err != nil {
			return fmt.Errorf("save task %d: %w", task.ID, err)
		}
	}

	confirmedAt := s.now()
	d.Status = model.DecisionApproved
	d.ConfirmedAt = &confirmedAt
	d.ConfirmedBy = req.ActorID
	if err := s.store.SaveDecision(d); err != nil {
		return fmt.Errorf("save decision %d: %w", d.ID, err)
	}

	s.log.Infow("decision confirmed", "project_id", req.ProjectID, "actor", req.ActorID)
	s.audit.Record(model.EventProjectApproved, "confirmation", map[string]any{
		"project_id": req.ProjectID,
		"actor_id":   req.ActorID,
		"decision":   d.Status,
	})
	return nil
}

func (s *Service) reject(d *model.PortfolioDecision, req Request) error {
	tasks, err := s.store.TasksByProject(req.ProjectID)
	if err != nil {
		return fmt.Errorf("load tasks for project %d: %w", req.ProjectID, err)
	}
	for i := range tasks {
		task := &tasks[i]
		if task.Status != model.TaskScheduled {
			continue
		}
		if err := s.led.ReleaseWindow(task.ResourceType, task.StartWeek, task.EndWeek, task.CrewAssigned, task.Reservation); err != nil {
			return fmt.Errorf("release reservation for project %d: %w", req.ProjectID, err)
		}
		task.Status = model.TaskCancelled
		if err := s.store.SaveTask(task); err != nil {
			return fmt.Errorf("save task %d: %w", task.ID, err)
		}
		s.audit.Record(model.EventReservationReleased, "confirmation", map[string]any{
			"project_id":    req.ProjectID,
			"resource_type": task.ResourceType,
			"start_week":    task.StartWeek,
			"end_week":      task.EndWeek,
			"crew":          task.CrewAssigned,
		})
	}

	confirmedAt := s.now()
	d.Status = model.DecisionRejected
	d.ConfirmedAt = &confirmedAt
	d.ConfirmedBy = req.ActorID
	if req.Reason != "" {
		d.Rationale = req.Reason
	}
	if err := s.store.SaveDecision(d); err != nil {
		return fmt.Errorf("save decision %d: %w", d.ID, err)
	}

	s.log.Infow("decision rejected", "project_id", req.ProjectID, "actor", req.ActorID, "reason", req.Reason)
	s.audit.Record(model.EventProjectRejected, "confirmation", map[string]any{
		"project_id": req.ProjectID,
		"actor_id":   req.ActorID,
		"reason":     req.Reason,
	})
	return nil
}

// overrideFeasibility applies a human feasibility override, re-scores the
// candidate, and records provenance with the original value.
func (s *Service) overrideFeasibility(req Request) error {
	value := *req.FeasibilityOverride
	if value < 0 || value > 1 {
		return fmt.Errorf("project %d: got %f: %w", req.ProjectID, value, ErrBadOverride)
	}

	candidate, err := s.store.ProjectByID(req.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", req.ProjectID, err)
	}
	signal, err := s.store.SignalByIssue(candidate.IssueID)
	if err != nil {
		return fmt.Errorf("load signal for issue %d: %w", candidate.IssueID, err)
	}

	original := candidate.EffectiveFeasibility()
	candidate.FeasibilityOverride = &value
	scores, tier, err := s.scorer.Compute(*signal, value, candidate.DistrictID)
	if err != nil {
		return fmt.Errorf("re-score project %d: %w", req.ProjectID, err)
	}
	candidate.Scores = scores
	candidate.EquityTier = tier
	if err := s.store.SaveProject(candidate); err != nil {
		return fmt.Errorf("save project %d: %w", req.ProjectID, err)
	}

	if err := s.store.AppendProvenance(&model.ScoringProvenance{
		ProjectID:     req.ProjectID,
		ScoreType:     "feasibility",
		Source:        model.SourceHuman,
		ActorID:       req.ActorID,
		OriginalValue: original,
		FinalValue:    value,
		Reason:        req.Reason,
		RecordedAt:    s.now(),
	}); err != nil {
		return fmt.Errorf("record provenance for project %d: %w", req.ProjectID, err)
	}

	s.log.Infow("feasibility overridden",
		"project_id", req.ProjectID,
		"actor", req.ActorID,
		"original", original,
		"final", value,
	)
	s.audit.Record(model.EventFeasibilityOverridden, "confirmation", map[string]any{
		"project_id":     req.ProjectID,
		"actor_id":       req.ActorID,
		"original_value": original,
		"final_value":    value,
		"reason":         req.Reason,
	})
	return nil
}
