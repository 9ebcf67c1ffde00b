package schedule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
)

const testHorizon = 12

func testLedger(capacities map[string]int) *ledger.Ledger {
	return ledger.New(capacities, testHorizon, 2026)
}

func request(id, rank int, urgency float64, deadline int, resource string, crew, weeks int) Request {
	return Request{
		ProjectID:    id,
		PriorityRank: rank,
		Urgency:      urgency,
		DeadlineWeek: deadline,
		ResourceType: resource,
		CrewSize:     crew,
		Weeks:        weeks,
	}
}

func taskFor(t *testing.T, out *model.ScheduleOutput, projectID int) model.ScheduleTask {
	t.Helper()
	for _, task := range out.Tasks {
		if task.ProjectID == projectID {
			return task
		}
	}
	t.Fatalf("no task for project %d", projectID)
	return model.ScheduleTask{}
}

func TestEffectivePriority(t *testing.T) {
	// Rank 3 at full urgency beats rank 2 with none: 3/1.5 = 2.0 vs 2/1.0.
	urgent := request(1, 3, 1.0, 4, "water_crew", 1, 2)
	calm := request(2, 2, 0.0, 8, "water_crew", 1, 2)

	assert.InDelta(t, 2.0, effectivePriority(urgent, 0.5), 1e-9)
	assert.InDelta(t, 2.0, effectivePriority(calm, 0.5), 1e-9)

	urgent.PriorityRank = 2
	assert.Less(t, effectivePriority(urgent, 0.5), effectivePriority(calm, 0.5))
}

func TestDeadlineStatus(t *testing.T) {
	cases := []struct {
		end, deadline int
		status        model.DeadlineStatus
		slackDays     int
	}{
		{end: 4, deadline: 8, status: model.DeadlineOnTrack, slackDays: 28},
		{end: 6, deadline: 8, status: model.DeadlineOnTrack, slackDays: 14},
		{end: 7, deadline: 8, status: model.DeadlineAtRisk, slackDays: 7},
		{end: 8, deadline: 8, status: model.DeadlineAtRisk, slackDays: 0},
		{end: 9, deadline: 8, status: model.DeadlineMissed, slackDays: -7},
	}
	for _, tc := range cases {
		status, slack := deadlineStatus(tc.end, tc.deadline)
		assert.Equal(t, tc.status, status, "end %d deadline %d", tc.end, tc.deadline)
		assert.Equal(t, tc.slackDays, slack)
	}
}

func TestGreedy_FirstFitAndReservations(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 3})
	g := NewGreedy(cfg, zap.NewNop().Sugar())

	confirmed := request(1, 1, 0.2, 10, "water_crew", 2, 3)
	pending := request(2, 2, 0.2, 10, "water_crew", 2, 3)
	pending.PendingConfirmation = true

	out, err := g.Schedule(context.Background(), []Request{confirmed, pending}, led, testHorizon)
	require.NoError(t, err)
	require.Len(t, out.Tasks, 2)
	assert.Empty(t, out.Infeasible)

	t1 := taskFor(t, out, 1)
	assert.Equal(t, 1, t1.StartWeek)
	assert.Equal(t, 3, t1.EndWeek)
	assert.Equal(t, model.ReservationHard, t1.Reservation)

	// Crew 2+2 exceeds capacity 3, so the pending project starts after the
	// first window frees up, with a soft hold.
	t2 := taskFor(t, out, 2)
	assert.Equal(t, 4, t2.StartWeek)
	assert.Equal(t, model.ReservationSoft, t2.Reservation)

	slot, ok := led.Slot("water_crew", 2)
	require.True(t, ok)
	assert.Equal(t, 2, slot.HardAllocated)
	slot, ok = led.Slot("water_crew", 5)
	require.True(t, ok)
	assert.Equal(t, 2, slot.SoftAllocated)
}

func TestGreedy_InfeasibleReported(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 1})
	g := NewGreedy(cfg, zap.NewNop().Sugar())

	reqs := []Request{
		request(1, 1, 0, 12, "water_crew", 1, 12), // fills the horizon
		request(2, 2, 0, 12, "water_crew", 1, 2),
		request(3, 3, 0, 12, "water_crew", 1, 20), // longer than the horizon
	}

	out, err := g.Schedule(context.Background(), reqs, led, testHorizon)
	require.NoError(t, err)
	assert.Len(t, out.Tasks, 1)
	assert.ElementsMatch(t, []int{2, 3}, out.Infeasible)
}

func TestGreedy_Deterministic(t *testing.T) {
	cfg := config.Default()
	reqs := []Request{
		request(1, 1, 0.3, 6, "water_crew", 2, 2),
		request(2, 2, 0.9, 4, "water_crew", 2, 3),
		request(3, 3, 0.1, 10, "construction_crew", 3, 4),
	}

	run := func() *model.ScheduleOutput {
		led := testLedger(map[string]int{"water_crew": 3, "construction_crew": 5})
		out, err := NewGreedy(cfg, zap.NewNop().Sugar()).Schedule(context.Background(), reqs, led, testHorizon)
		require.NoError(t, err)
		return out
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first.Tasks, run().Tasks)
	}
}

func TestRepair_SwapsMissedWithEarlierDonor(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 2})
	s := NewGreedyWithRepair(cfg, zap.NewNop().Sugar())

	// Constructed mid-cycle state: a low-priority donor holds weeks 1-4
	// while a tight-deadline task sits at 5-8 and misses.
	mustTask := func(projectID, start, end, deadline int, kind model.ReservationKind) model.ScheduleTask {
		status, slack := deadlineStatus(end, deadline)
		task, err := model.NewScheduleTask(projectID, start, end, deadline, status, slack, "water_crew", 2, kind)
		require.NoError(t, err)
		require.NoError(t, led.ReserveWindow("water_crew", start, end, 2, kind))
		return task
	}
	tasks := []model.ScheduleTask{
		mustTask(1, 1, 4, 12, model.ReservationHard), // ON_TRACK donor
		mustTask(2, 5, 8, 4, model.ReservationHard),  // MISSED
	}
	byProject := map[int]Request{
		1: request(1, 5, 0.0, 12, "water_crew", 2, 4), // effective priority 5.0
		2: request(2, 2, 0.9, 4, "water_crew", 2, 4),  // effective priority 1.38
	}

	swapped, err := s.repairPass(tasks, byProject, led, testHorizon)
	require.NoError(t, err)
	assert.True(t, swapped)

	repaired := tasks[1]
	assert.Equal(t, 1, repaired.StartWeek)
	assert.Equal(t, 4, repaired.EndWeek)
	assert.Equal(t, model.DeadlineAtRisk, repaired.DeadlineStatus)
	assert.Equal(t, 0, repaired.SlackDays)

	moved := tasks[0]
	assert.Equal(t, 5, moved.StartWeek)
	assert.Equal(t, 8, moved.EndWeek)
	assert.Equal(t, model.DeadlineOnTrack, moved.DeadlineStatus)

	// Ledger reflects the swapped windows, not the originals.
	slot, ok := led.Slot("water_crew", 1)
	require.True(t, ok)
	assert.Equal(t, 2, slot.HardAllocated)
	slot, ok = led.Slot("water_crew", 8)
	require.True(t, ok)
	assert.Equal(t, 2, slot.HardAllocated)
}

func TestRepair_NoEligibleDonorLeavesMissed(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 2})
	s := NewGreedyWithRepair(cfg, zap.NewNop().Sugar())

	// The earlier task is itself AT_RISK, not ON_TRACK, so it cannot donate
	// its window.
	first := request(1, 1, 0.0, 4, "water_crew", 2, 4)
	second := request(2, 2, 0.9, 4, "water_crew", 2, 4)

	out, err := s.Schedule(context.Background(), []Request{first, second}, led, testHorizon)
	require.NoError(t, err)

	assert.Equal(t, model.DeadlineAtRisk, taskFor(t, out, 1).DeadlineStatus)
	assert.Equal(t, model.DeadlineMissed, taskFor(t, out, 2).DeadlineStatus)
}

func TestConstraint_SchedulesAroundCapacity(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 2})
	s := NewConstraint(cfg, zap.NewNop().Sugar())

	// Three 4-week projects on a crew of 2, each needing the full crew: only
	// one can run at a time, and the 12-week horizon fits exactly three.
	reqs := []Request{
		request(1, 1, 0.5, 12, "water_crew", 2, 4),
		request(2, 2, 0.5, 12, "water_crew", 2, 4),
		request(3, 3, 0.5, 12, "water_crew", 2, 4),
	}

	out, err := s.Schedule(context.Background(), reqs, led, testHorizon)
	require.NoError(t, err)
	assert.Empty(t, out.Infeasible)
	require.Len(t, out.Tasks, 3)

	// No overlap anywhere: every week's ledger total stays within capacity
	// (the ledger would have rejected the commit otherwise).
	for w := 1; w <= testHorizon; w++ {
		slot, ok := led.Slot("water_crew", w)
		require.True(t, ok)
		assert.LessOrEqual(t, slot.SoftAllocated+slot.HardAllocated, slot.Capacity)
	}
}

func TestConstraint_PrefersSchedulingOverLateness(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 1})
	s := NewConstraint(cfg, zap.NewNop().Sugar())

	// Both projects cannot meet the week-4 deadline on one crew, but the
	// solver schedules both anyway: a late placement beats no placement.
	reqs := []Request{
		request(1, 1, 0.8, 4, "water_crew", 1, 4),
		request(2, 2, 0.8, 4, "water_crew", 1, 4),
	}

	out, err := s.Schedule(context.Background(), reqs, led, testHorizon)
	require.NoError(t, err)
	assert.Empty(t, out.Infeasible)
	require.Len(t, out.Tasks, 2)

	statuses := map[model.DeadlineStatus]int{}
	for _, task := range out.Tasks {
		statuses[task.DeadlineStatus]++
	}
	assert.Equal(t, 1, statuses[model.DeadlineAtRisk])
	assert.Equal(t, 1, statuses[model.DeadlineMissed])
}

func TestConstraint_OverlongProjectInfeasible(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 2})
	s := NewConstraint(cfg, zap.NewNop().Sugar())

	reqs := []Request{
		request(1, 1, 0.2, 12, "water_crew", 1, 20),
		request(2, 2, 0.2, 12, "water_crew", 1, 3),
	}

	out, err := s.Schedule(context.Background(), reqs, led, testHorizon)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, out.Infeasible)
	assert.Len(t, out.Tasks, 1)
}

func TestConstraint_CancelledContextStopsSearch(t *testing.T) {
	cfg := config.Default()
	led := testLedger(map[string]int{"water_crew": 2})
	s := NewConstraint(cfg, zap.NewNop().Sugar())

	reqs := []Request{
		request(1, 1, 0.5, 12, "water_crew", 2, 4),
		request(2, 2, 0.5, 12, "water_crew", 2, 4),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := s.Schedule(ctx, reqs, led, testHorizon)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing was committed to the ledger.
	for w := 1; w <= testHorizon; w++ {
		slot, ok := led.Slot("water_crew", w)
		require.True(t, ok)
		assert.Zero(t, slot.SoftAllocated+slot.HardAllocated)
	}
}

func TestSelect_PolicyTable(t *testing.T) {
	cfg := config.Default()
	log := zap.NewNop().Sugar()

	build := func(n int, resources []string, urgentCount int) []Request {
		reqs := make([]Request, 0, n)
		for i := 0; i < n; i++ {
			urgency := 0.2
			if i < urgentCount {
				urgency = 0.9
			}
			reqs = append(reqs, request(i+1, i+1, urgency, 8, resources[i%len(resources)], 1, 2))
		}
		return reqs
	}

	// Small batch, two resource types: greedy.
	s := Select(cfg, log, build(8, []string{"water_crew", "general_crew"}, 4))
	assert.Equal(t, "greedy", s.Name())

	// Too many resource types for greedy, but calm enough for repair.
	s = Select(cfg, log, build(15, []string{"water_crew", "general_crew", "construction_crew"}, 3))
	assert.Equal(t, "greedy_repair", s.Name())

	// Small project count but urgent: greedy still wins on the first row.
	s = Select(cfg, log, build(10, []string{"water_crew"}, 10))
	assert.Equal(t, "greedy", s.Name())

	// 25 projects over 4 crew types misses both heuristic rows and falls
	// through to the solver, regardless of urgency mix.
	s = Select(cfg, log, build(25, []string{"water_crew", "electrical_crew", "construction_crew", "general_crew"}, 2))
	assert.Equal(t, "constraint", s.Name())
}
