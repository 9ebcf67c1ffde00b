// Package store persists planning state in SQLite through gorm. District
// allocations sit behind a short-lived read cache since the equity adjuster
// consults them for every candidate in a scoring batch.
package store

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
)

// Store wraps the database handle and the allocation read cache.
type Store struct {
	db    *gorm.DB
	cache *gocache.Cache
	log   *zap.SugaredLogger
}

// Open opens (creating if needed) the SQLite database at cfg.Path and runs
// migrations. Use ":memory:" for throwaway stores in tests.
func Open(cfg config.StoreConfig, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" stores coherent across goroutines.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&model.District{},
		&model.Issue{},
		&model.IssueSignal{},
		&model.ProjectCandidate{},
		&model.ScoringProvenance{},
		&model.PortfolioDecision{},
		&model.ScheduleTask{},
		&model.ResourceSlot{},
		&model.DistrictAllocation{},
		&model.AuditEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{
		db:    db,
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		log:   log,
	}, nil
}

func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// Districts

func (s *Store) SaveDistricts(districts []model.District) error {
	if len(districts) == 0 {
		return nil
	}
	return s.db.Save(&districts).Error
}

func (s *Store) Districts() ([]model.District, error) {
	var out []model.District
	err := s.db.Order("district_id").Find(&out).Error
	return out, err
}

// Issues

func (s *Store) SaveIssue(issue *model.Issue, signal *model.IssueSignal) error {
	if err := signal.Validate(); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(issue).Error; err != nil {
			return err
		}
		return tx.Save(signal).Error
	})
}

// OpenIssues returns unprocessed issues joined with their signals.
func (s *Store) OpenIssues() ([]model.IssueWithSignal, error) {
	var issues []model.Issue
	if err := s.db.Where("status = ?", "OPEN").Order("issue_id").Find(&issues).Error; err != nil {
		return nil, err
	}
	out := make([]model.IssueWithSignal, 0, len(issues))
	for _, issue := range issues {
		signal, err := s.SignalByIssue(issue.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.IssueWithSignal{Issue: issue, Signal: *signal})
	}
	return out, nil
}

func (s *Store) SignalByIssue(issueID int) (*model.IssueSignal, error) {
	var signal model.IssueSignal
	if err := s.db.First(&signal, "issue_id = ?", issueID).Error; err != nil {
		return nil, fmt.Errorf("signal for issue %d: %w", issueID, err)
	}
	return &signal, nil
}

// Project candidates

func (s *Store) SaveProject(p *model.ProjectCandidate) error {
	return s.db.Save(p).Error
}

func (s *Store) Projects() ([]model.ProjectCandidate, error) {
	var out []model.ProjectCandidate
	err := s.db.Order("project_id").Find(&out).Error
	return out, err
}

func (s *Store) ProjectByID(id int) (*model.ProjectCandidate, error) {
	var p model.ProjectCandidate
	if err := s.db.First(&p, "project_id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("project %d: %w", id, err)
	}
	return &p, nil
}

// Decisions

func (s *Store) SaveDecision(d *model.PortfolioDecision) error {
	return s.db.Save(d).Error
}

func (s *Store) DecisionByProject(projectID int) (*model.PortfolioDecision, error) {
	var d model.PortfolioDecision
	if err := s.db.First(&d, "project_id = ?", projectID).Error; err != nil {
		return nil, fmt.Errorf("decision for project %d: %w", projectID, err)
	}
	return &d, nil
}

func (s *Store) Decisions() ([]model.PortfolioDecision, error) {
	var out []model.PortfolioDecision
	err := s.db.Order("decision_id").Find(&out).Error
	return out, err
}

// ExpiredDecisions returns unconfirmed conditional approvals whose
// confirmation deadline passed before the given instant.
func (s *Store) ExpiredDecisions(before time.Time) ([]model.PortfolioDecision, error) {
	var out []model.PortfolioDecision
	err := s.db.
		Where("decision = ? AND confirmed_at IS NULL AND confirmation_deadline < ?", model.DecisionConditional, before).
		Order("decision_id").
		Find(&out).Error
	return out, err
}

// Schedule tasks

func (s *Store) SaveTask(task *model.ScheduleTask) error {
	return s.db.Save(task).Error
}

func (s *Store) TasksByProject(projectID int) ([]model.ScheduleTask, error) {
	var out []model.ScheduleTask
	err := s.db.Where("project_id = ?", projectID).Order("task_id").Find(&out).Error
	return out, err
}

func (s *Store) Tasks() ([]model.ScheduleTask, error) {
	var out []model.ScheduleTask
	err := s.db.Order("start_week, task_id").Find(&out).Error
	return out, err
}

// Resource calendar

// SaveResourceSlots writes a full ledger snapshot back to the calendar.
func (s *Store) SaveResourceSlots(slots []model.ResourceSlot) error {
	if len(slots) == 0 {
		return nil
	}
	return s.db.Save(&slots).Error
}

func (s *Store) ResourceSlots(year int) ([]model.ResourceSlot, error) {
	var out []model.ResourceSlot
	err := s.db.Where("year = ?", year).Order("resource_type, week_number").Find(&out).Error
	return out, err
}

// District allocations

const allocationCacheKey = "district_allocations:%s:%d"

// SaveDistrictAllocations replaces the allocation rows for their quarter and
// drops any cached reads.
func (s *Store) SaveDistrictAllocations(allocations []model.DistrictAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	if err := s.db.Save(&allocations).Error; err != nil {
		return err
	}
	s.cache.Flush()
	return nil
}

// DistrictAllocations returns the allocation rows for a quarter, serving
// repeat reads from the cache until the TTL lapses or a write flushes it.
func (s *Store) DistrictAllocations(quarter string, year int) ([]model.DistrictAllocation, error) {
	key := fmt.Sprintf(allocationCacheKey, quarter, year)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]model.DistrictAllocation), nil
	}
	var out []model.DistrictAllocation
	if err := s.db.Where("quarter = ? AND year = ?", quarter, year).Order("district_id").Find(&out).Error; err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, out)
	return out, nil
}

// Provenance and audit

func (s *Store) AppendProvenance(p *model.ScoringProvenance) error {
	return s.db.Create(p).Error
}

func (s *Store) AppendAuditEvent(event model.AuditEvent) error {
	return s.db.Create(&event).Error
}

func (s *Store) AuditEvents() ([]model.AuditEvent, error) {
	var out []model.AuditEvent
	err := s.db.Order("timestamp, event_id").Find(&out).Error
	return out, err
}

// ClearPlanningOutputs deletes everything downstream of the issue feed so a
// planning cycle can be re-run against the same issues: candidates,
// decisions, tasks, provenance, allocations, and audit events, plus zeroing
// the resource calendar.
func (s *Store) ClearPlanningOutputs() error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&model.ScheduleTask{},
			&model.PortfolioDecision{},
			&model.ScoringProvenance{},
			&model.ProjectCandidate{},
			&model.DistrictAllocation{},
			&model.AuditEvent{},
		} {
			if err := tx.Where("1 = 1").Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.ResourceSlot{}).
			Where("1 = 1").
			Updates(map[string]any{"soft_allocated": 0, "hard_allocated": 0}).Error
	})
	if err != nil {
		return fmt.Errorf("clear planning outputs: %w", err)
	}
	s.cache.Flush()
	return nil
}
