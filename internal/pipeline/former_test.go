package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppetrenko/civicplan/internal/config"
	"github.com/ppetrenko/civicplan/internal/ledger"
	"github.com/ppetrenko/civicplan/internal/model"
	"github.com/ppetrenko/civicplan/internal/score"
)

func TestEstimateWeeks_CostBands(t *testing.T) {
	cases := []struct {
		cost  float64
		weeks int
	}{
		{300_000, 2},
		{1_500_000, 4},
		{8_000_000, 8},
		{25_000_000, 12},
		{60_000_000, 16},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.weeks, estimateWeeks(model.IssueSignal{EstimatedCost: tc.cost}), "cost %.0f", tc.cost)
	}
}

func TestEstimateWeeks_PrefersIntakeHint(t *testing.T) {
	signal := model.IssueSignal{EstimatedCost: 60_000_000, DurationWeeks: 3}
	assert.Equal(t, 3, estimateWeeks(signal))
}

func TestEstimateCrew_CappedAtCapacity(t *testing.T) {
	assert.Equal(t, 1, estimateCrew(model.IssueSignal{EstimatedCost: 800_000}, 5))
	assert.Equal(t, 3, estimateCrew(model.IssueSignal{EstimatedCost: 15_000_000}, 5))
	assert.Equal(t, 2, estimateCrew(model.IssueSignal{EstimatedCost: 50_000_000}, 2))
	assert.Equal(t, 3, estimateCrew(model.IssueSignal{CrewSize: 3, EstimatedCost: 400_000}, 5))
	assert.Equal(t, 2, estimateCrew(model.IssueSignal{CrewSize: 6, EstimatedCost: 400_000}, 2))
}

func TestFeasibility_AvailabilityLadder(t *testing.T) {
	cfg := config.Default()
	led := ledger.New(map[string]int{"water_crew": 1}, 10, 2026)
	f := &crewFormer{cfg: cfg, led: led, horizon: 10}

	// Fully open horizon covers the whole duration.
	assert.Equal(t, 1.0, f.feasibility("water_crew", 1, 10))

	// Block weeks until only 7, 5, then 4 remain open.
	require.NoError(t, led.ReserveWindow("water_crew", 1, 3, 1, model.ReservationHard))
	assert.Equal(t, 0.7, f.feasibility("water_crew", 1, 10))

	require.NoError(t, led.ReserveWindow("water_crew", 4, 5, 1, model.ReservationHard))
	assert.Equal(t, 0.5, f.feasibility("water_crew", 1, 10))

	require.NoError(t, led.Reserve("water_crew", 6, 1, model.ReservationHard))
	assert.Equal(t, 0.3, f.feasibility("water_crew", 1, 10))
}

func TestForm_BuildsScoredCandidate(t *testing.T) {
	cfg := config.Default()
	normalizer := score.NewBenefitNormalizer(cfg.City, cfg.Bootstrap)
	scorer := score.NewCompositeScorer(cfg, normalizer, score.NewEquityAdjuster(cfg.Equity, nil))
	led := ledger.New(cfg.Crews.Capacities, cfg.City.HorizonWeeks, 2026)

	former := &crewFormer{cfg: cfg, scorer: scorer, led: led, horizon: cfg.City.HorizonWeeks}

	district := 2
	item := model.IssueWithSignal{
		Issue: model.Issue{
			ID:          7,
			Title:       "Storm Drain Upgrade",
			Category:    "Water",
			Description: "Replace undersized drains on the east corridor",
			DistrictID:  &district,
			Status:      "OPEN",
		},
		Signal: model.IssueSignal{
			IssueID:            7,
			PopulationAffected: 80_000,
			SafetyTier:         model.SafetySevere,
			MandateTier:        model.MandateAdvisory,
			EstimatedCost:      4_000_000,
			UrgencyDays:        45,
		},
	}

	c, err := former.Form(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, 7, c.ID)
	assert.Equal(t, 7, c.IssueID)
	assert.Equal(t, "water_crew", c.CrewType)
	assert.Equal(t, 8, c.EstimatedWeeks)
	assert.Equal(t, 2, c.CrewSize)
	assert.Equal(t, 45, c.UrgencyDays)
	assert.Equal(t, 1.0, c.FeasibilityEstimate)
	assert.Equal(t, 0.7, c.Scores.Safety)
	assert.Greater(t, c.Scores.Composite, 0.0)
	require.NotNil(t, c.DistrictID)
	assert.Equal(t, district, *c.DistrictID)
}

func TestQuarter(t *testing.T) {
	cases := map[time.Month]string{
		time.January:   "Q1",
		time.March:     "Q1",
		time.April:     "Q2",
		time.September: "Q3",
		time.December:  "Q4",
	}
	for month, want := range cases {
		got := Quarter(time.Date(2026, month, 15, 0, 0, 0, 0, time.UTC))
		assert.Equal(t, want, got, "month %s", month)
	}
}
