package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/store"
)

var plannerClock = func() time.Time {
	return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
}

func seededPlanner(t *testing.T) (*Planner, *store.Store) {
	t.Helper()
	cfg := config.Default()
	st, err := store.Open(config.StoreConfig{Path: ":memory:", CacheTTL: time.Minute}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Seed(store.ScenarioSample, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))

	p := NewPlanner(cfg, st, zap.NewNop().Sugar()).WithClock(plannerClock)
	return p, st
}

func TestPlanner_FullCycleOnSampleScenario(t *testing.T) {
	p, st := seededPlanner(t)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Q1", res.Quarter)
	assert.Equal(t, 2026, res.Year)
	assert.Len(t, res.Candidates, 10)
	assert.Empty(t, res.Skipped)

	require.NotNil(t, res.Summary)
	assert.Equal(t, 75_000_000.0, res.Summary.TotalBudget)
	assert.LessOrEqual(t, res.Summary.AllocatedBudget, res.Summary.TotalBudget)
	decided := res.Summary.ApprovedCount + res.Summary.ConditionalCount +
		res.Summary.DeferredCount + res.Summary.RejectedCount
	assert.Equal(t, 10, decided)
	assert.Len(t, res.Summary.Decisions, 10)

	// Every funded project got either a task or an infeasibility entry.
	require.NotNil(t, res.Schedule)
	funded := res.Summary.ApprovedCount + res.Summary.ConditionalCount
	assert.Equal(t, funded, len(res.Schedule.Tasks)+len(res.Schedule.Infeasible))

	// Candidates carry full score breakdowns.
	for _, c := range res.Candidates {
		assert.Greater(t, c.Scores.Composite, 0.0, "project %d", c.ID)
		assert.NotEmpty(t, c.CrewType, "project %d", c.ID)
		assert.GreaterOrEqual(t, c.EstimatedWeeks, 1, "project %d", c.ID)
	}

	// Everything the cycle produced is persisted.
	decisions, err := st.Decisions()
	require.NoError(t, err)
	assert.Len(t, decisions, 10)

	tasks, err := st.Tasks()
	require.NoError(t, err)
	assert.Len(t, tasks, len(res.Schedule.Tasks))

	slots, err := st.ResourceSlots(2026)
	require.NoError(t, err)
	assert.NotEmpty(t, slots)
	if len(res.Schedule.Tasks) > 0 {
		committed := 0
		for _, s := range slots {
			committed += s.SoftAllocated + s.HardAllocated
		}
		assert.Greater(t, committed, 0)
	}
}

// The generated scenarios produce batches well past the scoring pool's
// default buffers; the cycle must drain every issue and pick the scheduler
// the policy table names for the funded cohort.
func TestPlanner_FullCycleOnBalancedScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.SolverTimeout = 5 * time.Second
	st, err := store.Open(config.StoreConfig{Path: ":memory:", CacheTTL: time.Minute}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Seed(store.ScenarioBalanced, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))

	p := NewPlanner(cfg, st, zap.NewNop().Sugar()).WithClock(plannerClock)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, runErr := p.Run(context.Background())
		done <- outcome{res, runErr}
	}()

	var res *Result
	select {
	case out := <-done:
		require.NoError(t, out.err)
		res = out.res
	case <-time.After(60 * time.Second):
		t.Fatal("planning cycle stalled with the scoring batch still queued")
	}

	assert.Len(t, res.Candidates, 25)
	assert.Empty(t, res.Skipped)
	decided := res.Summary.ApprovedCount + res.Summary.ConditionalCount +
		res.Summary.DeferredCount + res.Summary.RejectedCount
	assert.Equal(t, 25, decided)

	funded := res.Summary.ApprovedCount + res.Summary.ConditionalCount
	require.Greater(t, funded, 0)
	require.NotNil(t, res.Schedule)
	assert.Equal(t, funded, len(res.Schedule.Tasks)+len(res.Schedule.Infeasible))

	// The funded cohort's shape decides the scheduler, exactly per the table.
	byProject := map[int]model.ProjectCandidate{}
	for _, c := range res.Candidates {
		byProject[c.ID] = c
	}
	crews := map[string]struct{}{}
	urgentCount := 0
	for _, d := range res.Summary.Decisions {
		if d.Status != model.DecisionApproved && d.Status != model.DecisionConditional {
			continue
		}
		c := byProject[d.ProjectID]
		crews[c.CrewType] = struct{}{}
		if c.Scores.Urgency > cfg.Governance.UrgencyScoreFloor {
			urgentCount++
		}
	}
	expected := "constraint"
	switch {
	case funded <= cfg.Scheduler.GreedyMaxProjects && len(crews) <= cfg.Scheduler.GreedyMaxResourceTypes:
		expected = "greedy"
	case funded <= cfg.Scheduler.RepairMaxProjects && float64(urgentCount)/float64(funded) <= cfg.Scheduler.RepairMaxUrgentFrac:
		expected = "greedy_repair"
	}
	assert.Equal(t, expected, res.Schedule.Scheduler)

	decisions, err := st.Decisions()
	require.NoError(t, err)
	assert.Len(t, decisions, 25)

	tasks, err := st.Tasks()
	require.NoError(t, err)
	assert.Len(t, tasks, len(res.Schedule.Tasks))
}

func TestPlanner_EmitsAuditTrail(t *testing.T) {
	p, st := seededPlanner(t)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	events, err := st.AuditEvents()
	require.NoError(t, err)

	byType := map[model.AuditEventType]int{}
	for _, e := range events {
		byType[e.Type]++
		assert.NotEmpty(t, e.ID)
		assert.NotEmpty(t, e.Payload)
	}
	assert.Equal(t, 10, byType[model.EventProjectScored])
	assert.Equal(t, len(res.Schedule.Tasks), byType[model.EventTaskScheduled])

	decisionEvents := byType[model.EventProjectApproved] +
		byType[model.EventProjectDeferred] + byType[model.EventProjectRejected]
	assert.Equal(t, 10, decisionEvents)
}

func TestPlanner_BooksSpendAgainstDistricts(t *testing.T) {
	p, st := seededPlanner(t)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	allocations, err := st.DistrictAllocations("Q1", 2026)
	require.NoError(t, err)
	require.NotEmpty(t, allocations)

	booked := 0.0
	projects := 0
	for _, a := range allocations {
		assert.Greater(t, a.FairShareBudget, 0.0, "district %d", a.DistrictID)
		booked += a.AllocatedBudget
		projects += a.ProjectCount
	}

	// Funded projects without a district are not booked; everything else is.
	fundedWithDistrict := 0.0
	fundedCount := 0
	byProject := map[int]model.ProjectCandidate{}
	for _, c := range res.Candidates {
		byProject[c.ID] = c
	}
	for _, d := range res.Summary.Decisions {
		if d.Status != model.DecisionApproved && d.Status != model.DecisionConditional {
			continue
		}
		if c := byProject[d.ProjectID]; c.DistrictID != nil {
			fundedWithDistrict += d.AllocatedBudget
			fundedCount++
		}
	}
	assert.InDelta(t, fundedWithDistrict, booked, 0.01)
	assert.Equal(t, fundedCount, projects)
}

func TestPlanner_RerunIsDeterministic(t *testing.T) {
	p, _ := seededPlanner(t)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, second.Summary.Decisions, len(first.Summary.Decisions))
	firstByProject := map[int]model.PortfolioDecision{}
	for _, d := range first.Summary.Decisions {
		firstByProject[d.ProjectID] = d
	}
	for _, d := range second.Summary.Decisions {
		prev := firstByProject[d.ProjectID]
		assert.Equal(t, prev.Status, d.Status, "project %d", d.ProjectID)
		assert.Equal(t, prev.Rationale, d.Rationale, "project %d", d.ProjectID)
		assert.Equal(t, prev.PriorityRank, d.PriorityRank, "project %d", d.ProjectID)
	}

	require.Len(t, second.Schedule.Tasks, len(first.Schedule.Tasks))
	firstTasks := map[int][2]int{}
	for _, task := range first.Schedule.Tasks {
		firstTasks[task.ProjectID] = [2]int{task.StartWeek, task.EndWeek}
	}
	for _, task := range second.Schedule.Tasks {
		assert.Equal(t, firstTasks[task.ProjectID], [2]int{task.StartWeek, task.EndWeek}, "project %d", task.ProjectID)
	}
}

func TestPlanner_NoOpenIssuesYieldsEmptyCycle(t *testing.T) {
	cfg := config.Default()
	st, err := store.Open(config.StoreConfig{Path: ":memory:", CacheTTL: time.Minute}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p := NewPlanner(cfg, st, zap.NewNop().Sugar()).WithClock(plannerClock)
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, res.Summary.ApprovedCount+res.Summary.ConditionalCount)
	assert.Empty(t, res.Schedule.Tasks)
}
