package config

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/ppetrenko/civicplan/internal/model"
)

// Config is the single immutable configuration value for a planning run.
// Constructed once per process and passed explicitly to component
// constructors; never accessed as ambient global state.
type Config struct {
	City       CityConfig       `yaml:"city" mapstructure:"city"`
	Weights    ScoringWeights   `yaml:"weights" mapstructure:"weights"`
	TierValues TierValues       `yaml:"tier_values" mapstructure:"tier_values"`
	Urgency    UrgencyConfig    `yaml:"urgency" mapstructure:"urgency"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap" mapstructure:"bootstrap"`
	Equity     EquityConfig     `yaml:"equity" mapstructure:"equity"`
	Governance GovernanceConfig `yaml:"governance" mapstructure:"governance"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Crews      CrewConfig       `yaml:"crews" mapstructure:"crews"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
}

// CityConfig describes the planning jurisdiction
type CityConfig struct {
	Name            string  `yaml:"name" mapstructure:"name"`
	Population      int     `yaml:"population" mapstructure:"population"`
	QuarterlyBudget float64 `yaml:"quarterly_budget" mapstructure:"quarterly_budget"`
	HorizonWeeks    int     `yaml:"planning_horizon_weeks" mapstructure:"planning_horizon_weeks"`
}

// ScoringWeights are the five composite weights; they must sum to 1.0
type ScoringWeights struct {
	Safety      float64 `yaml:"safety" mapstructure:"safety"`
	Mandate     float64 `yaml:"mandate" mapstructure:"mandate"`
	Benefit     float64 `yaml:"benefit" mapstructure:"benefit"`
	Urgency     float64 `yaml:"urgency" mapstructure:"urgency"`
	Feasibility float64 `yaml:"feasibility" mapstructure:"feasibility"`
}

// Sum returns the total of the five weights
func (w ScoringWeights) Sum() float64 {
	return w.Safety + w.Mandate + w.Benefit + w.Urgency + w.Feasibility
}

// TierValues map categorical tiers to numeric scores
type TierValues struct {
	Safety  map[model.SafetyTier]float64  `yaml:"safety" mapstructure:"safety"`
	Mandate map[model.MandateTier]float64 `yaml:"mandate" mapstructure:"mandate"`
}

// UrgencyConfig parameterizes exponential urgency decay
type UrgencyConfig struct {
	Lambda float64 `yaml:"lambda" mapstructure:"lambda"`
	Floor  float64 `yaml:"floor" mapstructure:"floor"`
}

// BootstrapConfig parameterizes the Bayesian benefit normalizer
type BootstrapConfig struct {
	PriorStrength   int     `yaml:"prior_strength" mapstructure:"prior_strength"`
	WinsorizeLow    float64 `yaml:"winsorize_low" mapstructure:"winsorize_low"`
	WinsorizeHigh   float64 `yaml:"winsorize_high" mapstructure:"winsorize_high"`
	AvgProjectCount int     `yaml:"avg_project_count" mapstructure:"avg_project_count"`
}

// EquityConfig parameterizes the district equity adjustment
type EquityConfig struct {
	UnderservedThreshold float64 `yaml:"underserved_threshold" mapstructure:"underserved_threshold"`
	OverservedThreshold  float64 `yaml:"overserved_threshold" mapstructure:"overserved_threshold"`
	MultiplierStrength   float64 `yaml:"multiplier_strength" mapstructure:"multiplier_strength"`
	ClampLow             float64 `yaml:"clamp_low" mapstructure:"clamp_low"`
	ClampHigh            float64 `yaml:"clamp_high" mapstructure:"clamp_high"`
	DeferThreshold       float64 `yaml:"defer_threshold" mapstructure:"defer_threshold"`
}

// GovernanceConfig parameterizes budget phases and the confirmation workflow
type GovernanceConfig struct {
	MandateBudgetCap        float64       `yaml:"mandate_budget_cap" mapstructure:"mandate_budget_cap"`
	UrgentCriticalCap       float64       `yaml:"urgent_critical_cap" mapstructure:"urgent_critical_cap"`
	ConfirmationCost        float64       `yaml:"confirmation_cost" mapstructure:"confirmation_cost"`
	ConfirmationSafetyScore float64       `yaml:"confirmation_safety_score" mapstructure:"confirmation_safety_score"`
	ConfirmationTimeout     time.Duration `yaml:"confirmation_timeout" mapstructure:"confirmation_timeout"`
	MandateScoreFloor       float64       `yaml:"mandate_score_floor" mapstructure:"mandate_score_floor"`
	UrgencyScoreFloor       float64       `yaml:"urgency_score_floor" mapstructure:"urgency_score_floor"`
}

// SchedulerConfig parameterizes scheduler selection and behavior
type SchedulerConfig struct {
	GreedyMaxProjects      int           `yaml:"greedy_max_projects" mapstructure:"greedy_max_projects"`
	GreedyMaxResourceTypes int           `yaml:"greedy_max_resource_types" mapstructure:"greedy_max_resource_types"`
	RepairMaxProjects      int           `yaml:"repair_max_projects" mapstructure:"repair_max_projects"`
	RepairMaxUrgentFrac    float64       `yaml:"repair_max_urgent_frac" mapstructure:"repair_max_urgent_frac"`
	UrgencyPriorityWeight  float64       `yaml:"urgency_priority_weight" mapstructure:"urgency_priority_weight"`
	MaxRepairIterations    int           `yaml:"max_repair_iterations" mapstructure:"max_repair_iterations"`
	SolverTimeout          time.Duration `yaml:"solver_timeout" mapstructure:"solver_timeout"`
}

// CrewConfig maps issue categories to crew types and sets weekly capacities
type CrewConfig struct {
	Mapping     map[string]string `yaml:"mapping" mapstructure:"mapping"`
	DefaultType string            `yaml:"default_type" mapstructure:"default_type"`
	Capacities  map[string]int    `yaml:"capacities" mapstructure:"capacities"`
}

// TypeFor returns the crew type for an issue category
func (c CrewConfig) TypeFor(category string) string {
	if t, ok := c.Mapping[category]; ok {
		return t
	}
	return c.DefaultType
}

// StoreConfig configures persistence
type StoreConfig struct {
	Path     string        `yaml:"path" mapstructure:"path"`
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		City: CityConfig{
			Name:            "Metroville",
			Population:      2_500_000,
			QuarterlyBudget: 75_000_000,
			HorizonWeeks:    12,
		},
		Weights: ScoringWeights{
			Safety:      0.25,
			Mandate:     0.15,
			Benefit:     0.25,
			Urgency:     0.20,
			Feasibility: 0.15,
		},
		TierValues: TierValues{
			Safety: map[model.SafetyTier]float64{
				model.SafetyNone:     0.0,
				model.SafetyModerate: 0.4,
				model.SafetySevere:   0.7,
				model.SafetyCritical: 1.0,
			},
			Mandate: map[model.MandateTier]float64{
				model.MandateNone:         0.0,
				model.MandateAdvisory:     0.3,
				model.MandateRequired:     0.7,
				model.MandateCourtOrdered: 1.0,
			},
		},
		Urgency: UrgencyConfig{
			Lambda: 0.02,
			Floor:  0.10,
		},
		Bootstrap: BootstrapConfig{
			PriorStrength:   20,
			WinsorizeLow:    0.10,
			WinsorizeHigh:   0.90,
			AvgProjectCount: 50,
		},
		Equity: EquityConfig{
			UnderservedThreshold: 0.6,
			OverservedThreshold:  1.4,
			MultiplierStrength:   0.25,
			ClampLow:             -0.5,
			ClampHigh:            0.5,
			DeferThreshold:       2.0,
		},
		Governance: GovernanceConfig{
			MandateBudgetCap:        0.30,
			UrgentCriticalCap:       0.20,
			ConfirmationCost:        10_000_000,
			ConfirmationSafetyScore: 0.7,
			ConfirmationTimeout:     14 * 24 * time.Hour,
			MandateScoreFloor:       0.7,
			UrgencyScoreFloor:       0.7,
		},
		Scheduler: SchedulerConfig{
			GreedyMaxProjects:      10,
			GreedyMaxResourceTypes: 2,
			RepairMaxProjects:      20,
			RepairMaxUrgentFrac:    0.3,
			UrgencyPriorityWeight:  0.5,
			MaxRepairIterations:    3,
			SolverTimeout:          60 * time.Second,
		},
		Crews: CrewConfig{
			Mapping: map[string]string{
				"Water":               "water_crew",
				"Health":              "electrical_crew",
				"Disaster Management": "construction_crew",
				"Infrastructure":      "construction_crew",
				"Recreation":          "general_crew",
				"Education":           "general_crew",
			},
			DefaultType: "general_crew",
			Capacities: map[string]int{
				"water_crew":        3,
				"electrical_crew":   2,
				"construction_crew": 5,
				"general_crew":      4,
			},
		},
		Store: StoreConfig{
			Path:     "civicplan.db",
			CacheTTL: 5 * time.Minute,
		},
	}
}

// Load merges viper-provided values (file, env, flags) over the defaults
// and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const weightEpsilon = 1e-9

// Validate enforces the configuration invariants. Violations are rejected at
// load, never silently corrected.
func (c *Config) Validate() error {
	if sum := c.Weights.Sum(); math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.6f", sum)
	}
	for _, tier := range []model.SafetyTier{model.SafetyNone, model.SafetyModerate, model.SafetySevere, model.SafetyCritical} {
		if _, ok := c.TierValues.Safety[tier]; !ok {
			return fmt.Errorf("safety tier table missing %q", tier)
		}
	}
	for _, tier := range []model.MandateTier{model.MandateNone, model.MandateAdvisory, model.MandateRequired, model.MandateCourtOrdered} {
		if _, ok := c.TierValues.Mandate[tier]; !ok {
			return fmt.Errorf("mandate tier table missing %q", tier)
		}
	}
	if c.Urgency.Lambda <= 0 {
		return fmt.Errorf("urgency lambda must be positive, got %f", c.Urgency.Lambda)
	}
	if c.Urgency.Floor <= 0 || c.Urgency.Floor >= 1 {
		return fmt.Errorf("urgency floor must be in (0,1), got %f", c.Urgency.Floor)
	}
	if c.Bootstrap.PriorStrength < 1 {
		return fmt.Errorf("bootstrap prior strength must be >= 1, got %d", c.Bootstrap.PriorStrength)
	}
	if c.Bootstrap.AvgProjectCount < 1 {
		return fmt.Errorf("bootstrap avg project count must be >= 1, got %d", c.Bootstrap.AvgProjectCount)
	}
	if lo, hi := c.Bootstrap.WinsorizeLow, c.Bootstrap.WinsorizeHigh; lo < 0 || hi > 1 || lo >= hi {
		return fmt.Errorf("winsorize percentiles must satisfy 0 <= low < high <= 1, got (%f, %f)", lo, hi)
	}
	if c.Equity.ClampLow >= c.Equity.ClampHigh {
		return fmt.Errorf("equity clamp bounds out of order: (%f, %f)", c.Equity.ClampLow, c.Equity.ClampHigh)
	}
	if c.Equity.DeferThreshold <= 0 {
		return fmt.Errorf("equity defer threshold must be positive, got %f", c.Equity.DeferThreshold)
	}
	for name, cap := range map[string]float64{
		"mandate budget cap":  c.Governance.MandateBudgetCap,
		"urgent critical cap": c.Governance.UrgentCriticalCap,
	} {
		if cap <= 0 || cap > 1 {
			return fmt.Errorf("%s must be in (0,1], got %f", name, cap)
		}
	}
	if c.City.QuarterlyBudget <= 0 {
		return fmt.Errorf("quarterly budget must be positive, got %f", c.City.QuarterlyBudget)
	}
	if c.City.Population <= 0 {
		return fmt.Errorf("city population must be positive, got %d", c.City.Population)
	}
	if c.City.HorizonWeeks < 1 {
		return fmt.Errorf("planning horizon must be >= 1 week, got %d", c.City.HorizonWeeks)
	}
	if c.Scheduler.MaxRepairIterations < 0 {
		return fmt.Errorf("max repair iterations must be >= 0, got %d", c.Scheduler.MaxRepairIterations)
	}
	if c.Scheduler.SolverTimeout <= 0 {
		return fmt.Errorf("solver timeout must be positive, got %v", c.Scheduler.SolverTimeout)
	}
	for crew, capacity := range c.Crews.Capacities {
		if capacity < 1 {
			return fmt.Errorf("crew %q weekly capacity must be >= 1, got %d", crew, capacity)
		}
	}
	if c.Crews.DefaultType == "" {
		return fmt.Errorf("default crew type is required")
	}
	return nil
}
