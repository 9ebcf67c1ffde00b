package confirm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/audit"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

// SweepStore lists and updates decisions past their confirmation deadline.
type SweepStore interface {
	ExpiredDecisions(before time.Time) ([]model.PortfolioDecision, error)
	SaveDecision(d *model.PortfolioDecision) error
	TasksByProject(projectID int) ([]model.ScheduleTask, error)
	SaveTask(task *model.ScheduleTask) error
}

// Sweeper expires unconfirmed decisions whose deadline has passed, releasing
// their soft capacity holds. Sweeps are idempotent: expired decisions no
// longer match the query and their tasks are already terminal.
type Sweeper struct {
	store SweepStore
	led   *ledger.Ledger
	audit *audit.Recorder
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewSweeper(store SweepStore, led *ledger.Ledger, rec *audit.Recorder, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{store: store, led: led, audit: rec, log: log, now: time.Now}
}

// WithClock overrides the sweeper clock.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep expires every pending decision whose confirmation deadline is past
// and returns how many were expired.
func (s *Sweeper) Sweep() (int, error) {
	pending, err := s.store.ExpiredDecisions(s.now())
	if err != nil {
		return 0, fmt.Errorf("list expired decisions: %w", err)
	}

	for i := range pending {
		if err := s.expire(&pending[i]); err != nil {
			return 0, err
		}
	}
	if len(pending) > 0 {
		s.log.Infow("confirmation sweep", "expired", len(pending))
	}
	return len(pending), nil
}

func (s *Sweeper) expire(d *model.PortfolioDecision) error {
	tasks, err := s.store.TasksByProject(d.ProjectID)
	if err != nil {
		return fmt.Errorf("load tasks for project %d: %w", d.ProjectID, err)
	}
	for i := range tasks {
		task := &tasks[i]
		if task.Status != model.TaskScheduled || task.Reservation != model.ReservationSoft {
			continue
		}
		if err := s.led.ReleaseWindow(task.ResourceType, task.StartWeek, task.EndWeek, task.CrewAssigned, model.ReservationSoft); err != nil {
			return fmt.Errorf("release reservation for project %d: %w", d.ProjectID, err)
		}
		task.Status = model.TaskExpired
		if err := s.store.SaveTask(task); err != nil {
			return fmt.Errorf("save task %d: %w", task.ID, err)
		}
		s.audit.Record(model.EventReservationReleased, "expiry_sweep", map[string]any{
			"project_id":    d.ProjectID,
			"resource_type": task.ResourceType,
			"start_week":    task.StartWeek,
			"end_week":      task.EndWeek,
			"crew":          task.CrewAssigned,
		})
	}

	d.Status = model.DecisionExpired
	if err := s.store.SaveDecision(d); err != nil {
		return fmt.Errorf("save decision %d: %w", d.ID, err)
	}

	s.log.Infow("approval expired", "project_id", d.ProjectID, "deadline", d.ConfirmationDeadline)
	s.audit.Record(model.EventApprovalExpired, "expiry_sweep", map[string]any{
		"project_id": d.ProjectID,
		"deadline":   d.ConfirmationDeadline,
	})
	return nil
}
