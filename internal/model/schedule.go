package model

import (
	"fmt"
	"time"
)

// Task lifecycle states
const (
	TaskScheduled = "SCHEDULED"
	TaskCancelled = "CANCELLED"
	TaskExpired   = "EXPIRED"
)

// ScheduleTask is the scheduled execution window of an approved project
type ScheduleTask struct {
	ID             int             `json:"task_id" gorm:"primaryKey;column:task_id"`
	ProjectID      int             `json:"project_id"`
	StartWeek      int             `json:"start_week"`
	EndWeek        int             `json:"end_week"`
	DeadlineWeek   int             `json:"deadline_week,omitempty"`
	DeadlineStatus DeadlineStatus  `json:"deadline_status"`
	SlackDays      int             `json:"slack_days"`
	ResourceType   string          `json:"resource_type"`
	CrewAssigned   int             `json:"crew_assigned"`
	Reservation    ReservationKind `json:"reservation_type" gorm:"column:reservation_type"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewScheduleTask validates the week window at construction time
func NewScheduleTask(projectID, startWeek, endWeek, deadlineWeek int, status DeadlineStatus, slackDays int, resourceType string, crew int, kind ReservationKind) (ScheduleTask, error) {
	if startWeek < 1 {
		return ScheduleTask{}, fmt.Errorf("project %d: start week must be >= 1, got %d", projectID, startWeek)
	}
	if endWeek < startWeek {
		return ScheduleTask{}, fmt.Errorf("project %d: end week %d before start week %d", projectID, endWeek, startWeek)
	}
	if err := kind.Validate(); err != nil {
		return ScheduleTask{}, fmt.Errorf("project %d: %w", projectID, err)
	}
	return ScheduleTask{
		ProjectID:      projectID,
		StartWeek:      startWeek,
		EndWeek:        endWeek,
		DeadlineWeek:   deadlineWeek,
		DeadlineStatus: status,
		SlackDays:      slackDays,
		ResourceType:   resourceType,
		CrewAssigned:   crew,
		Reservation:    kind,
		Status:         TaskScheduled,
	}, nil
}

// ScheduleOutput is the complete result of one scheduling run
type ScheduleOutput struct {
	Tasks        []ScheduleTask `json:"scheduled_tasks"`
	Infeasible   []int          `json:"infeasible_projects"`
	HorizonWeeks int            `json:"horizon_weeks"`
	Scheduler    string         `json:"scheduler"`
	DeadlineRisk int            `json:"deadline_risks"` // AT_RISK + MISSED count
}
