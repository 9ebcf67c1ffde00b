package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{Path: ":memory:", CacheTTL: time.Minute}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveIssue_RejectsInvalidSignal(t *testing.T) {
	s := openTestStore(t)

	issue := model.Issue{ID: 1, Title: "Broken hydrant", Category: "Water", Source: "citizen_complaint", Status: "OPEN"}
	bad := model.IssueSignal{IssueID: 1, SafetyTier: "catastrophic", MandateTier: model.MandateNone, EstimatedCost: 1000, UrgencyDays: 5}
	require.Error(t, s.SaveIssue(&issue, &bad))

	open, err := s.OpenIssues()
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenIssues_JoinsSignals(t *testing.T) {
	s := openTestStore(t)

	issue := model.Issue{ID: 1, Title: "Broken hydrant", Category: "Water", Source: "citizen_complaint", Status: "OPEN"}
	signal := model.IssueSignal{IssueID: 1, PopulationAffected: 500, SafetyTier: model.SafetyModerate, MandateTier: model.MandateNone, EstimatedCost: 40_000, UrgencyDays: 20}
	require.NoError(t, s.SaveIssue(&issue, &signal))

	closed := model.Issue{ID: 2, Title: "Resolved leak", Category: "Water", Source: "citizen_complaint", Status: "CLOSED"}
	closedSignal := model.IssueSignal{IssueID: 2, SafetyTier: model.SafetyNone, MandateTier: model.MandateNone, EstimatedCost: 10_000, UrgencyDays: 90}
	require.NoError(t, s.SaveIssue(&closed, &closedSignal))

	open, err := s.OpenIssues()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 1, open[0].Issue.ID)
	assert.Equal(t, model.SafetyModerate, open[0].Signal.SafetyTier)
}

func TestExpiredDecisions_FiltersCorrectly(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, time.March, 16, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	confirmedAt := now.Add(-2 * time.Hour)

	overdue := model.PortfolioDecision{ProjectID: 1, Status: model.DecisionConditional, RequiresConfirmation: true, ConfirmationDeadline: &past}
	pending := model.PortfolioDecision{ProjectID: 2, Status: model.DecisionConditional, RequiresConfirmation: true, ConfirmationDeadline: &future}
	confirmed := model.PortfolioDecision{ProjectID: 3, Status: model.DecisionApproved, RequiresConfirmation: true, ConfirmationDeadline: &past, ConfirmedAt: &confirmedAt}
	unconditional := model.PortfolioDecision{ProjectID: 4, Status: model.DecisionApproved}
	for _, d := range []*model.PortfolioDecision{&overdue, &pending, &confirmed, &unconditional} {
		require.NoError(t, s.SaveDecision(d))
	}

	expired, err := s.ExpiredDecisions(now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, 1, expired[0].ProjectID)
}

func TestDistrictAllocations_CachedUntilWrite(t *testing.T) {
	s := openTestStore(t)

	first := []model.DistrictAllocation{
		{DistrictID: 1, Quarter: "2026-Q1", Year: 2026, Population: 450_000, FairShareBudget: 9_375_000},
	}
	require.NoError(t, s.SaveDistrictAllocations(first))

	got, err := s.DistrictAllocations("2026-Q1", 2026)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A direct DB write invisible to the cache: reads stay stale until a
	// SaveDistrictAllocations flushes it.
	require.NoError(t, s.db.Save(&model.DistrictAllocation{
		DistrictID: 2, Quarter: "2026-Q1", Year: 2026, Population: 380_000, FairShareBudget: 7_916_667,
	}).Error)
	got, err = s.DistrictAllocations("2026-Q1", 2026)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.SaveDistrictAllocations(first))
	got, err = s.DistrictAllocations("2026-Q1", 2026)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSeed_SampleScenario(t *testing.T) {
	s := openTestStore(t)
	cfg := config.Default()

	require.NoError(t, s.Seed(ScenarioSample, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))

	districts, err := s.Districts()
	require.NoError(t, err)
	assert.Len(t, districts, 8)

	open, err := s.OpenIssues()
	require.NoError(t, err)
	assert.Len(t, open, 10)

	slots, err := s.ResourceSlots(2026)
	require.NoError(t, err)
	assert.Len(t, slots, 4*cfg.City.HorizonWeeks)
	for _, slot := range slots {
		assert.Zero(t, slot.SoftAllocated)
		assert.Zero(t, slot.HardAllocated)
		assert.Equal(t, cfg.Crews.Capacities[slot.ResourceType], slot.Capacity)
	}

	// Re-seeding is safe and returns to a clean slate.
	require.NoError(t, s.Seed(ScenarioSample, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))
	open, err = s.OpenIssues()
	require.NoError(t, err)
	assert.Len(t, open, 10)
}

func TestSeed_GeneratedScenariosAreReproducible(t *testing.T) {
	cfg := config.Default()

	run := func(scenario string) []model.IssueWithSignal {
		s := openTestStore(t)
		require.NoError(t, s.Seed(scenario, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))
		open, err := s.OpenIssues()
		require.NoError(t, err)
		return open
	}

	signals := func(issues []model.IssueWithSignal) []model.IssueSignal {
		out := make([]model.IssueSignal, 0, len(issues))
		for _, iws := range issues {
			out = append(out, iws.Signal)
		}
		return out
	}

	large := run(ScenarioLarge)
	assert.Len(t, large, 30)
	assert.Equal(t, signals(large), signals(run(ScenarioLarge)))

	balanced := run(ScenarioBalanced)
	assert.Len(t, balanced, 25)
	for _, iws := range balanced {
		assert.Positive(t, iws.Signal.CrewSize)
		assert.Positive(t, iws.Signal.DurationWeeks)
	}

	assert.Error(t, run0(t, "nonsense"))
}

func run0(t *testing.T, scenario string) error {
	t.Helper()
	s := openTestStore(t)
	cfg := config.Default()
	return s.Seed(scenario, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026)
}

func TestClearPlanningOutputs_ResetsCalendar(t *testing.T) {
	s := openTestStore(t)
	cfg := config.Default()
	require.NoError(t, s.Seed(ScenarioSample, cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026))

	require.NoError(t, s.SaveProject(&model.ProjectCandidate{ID: 1, IssueID: 1, Title: "Pipeline replacement", EstimatedCost: 1000, EstimatedWeeks: 2}))
	require.NoError(t, s.SaveDecision(&model.PortfolioDecision{ProjectID: 1, Status: model.DecisionApproved}))
	task := model.ScheduleTask{ProjectID: 1, StartWeek: 1, EndWeek: 2, ResourceType: "water_crew", CrewAssigned: 2, Reservation: model.ReservationHard, Status: model.TaskScheduled}
	require.NoError(t, s.SaveTask(&task))

	slots, err := s.ResourceSlots(2026)
	require.NoError(t, err)
	slots[0].HardAllocated = 2
	require.NoError(t, s.SaveResourceSlots(slots))

	require.NoError(t, s.ClearPlanningOutputs())

	projects, err := s.Projects()
	require.NoError(t, err)
	assert.Empty(t, projects)
	decisions, err := s.Decisions()
	require.NoError(t, err)
	assert.Empty(t, decisions)
	tasks, err := s.Tasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	slots, err = s.ResourceSlots(2026)
	require.NoError(t, err)
	for _, slot := range slots {
		assert.Zero(t, slot.HardAllocated)
		assert.Zero(t, slot.SoftAllocated)
	}
}
