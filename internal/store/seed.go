package store

import (
	"fmt"
	"math/rand"

	"github.com/ppetrenko/civicplan/internal/model"
)

// Seed scenario names accepted by Seed.
const (
	ScenarioSample   = "sample"
	ScenarioLarge    = "large"
	ScenarioBalanced = "balanced"
)

// Seed loads districts, the resource calendar, and one of the demo issue
// sets, wiping previous planning output first.
func (s *Store) Seed(scenario string, capacities map[string]int, horizonWeeks, year int) error {
	if err := s.seedDistricts(); err != nil {
		return err
	}
	if err := s.seedResourceCalendar(capacities, horizonWeeks, year); err != nil {
		return err
	}
	if err := s.clearIssues(); err != nil {
		return err
	}
	if err := s.ClearPlanningOutputs(); err != nil {
		return err
	}

	var err error
	switch scenario {
	case ScenarioSample:
		err = s.seedSampleIssues()
	case ScenarioLarge:
		err = s.seedGeneratedIssues(largeTemplates, 30, 42)
	case ScenarioBalanced:
		err = s.seedGeneratedIssues(balancedTemplates, 25, 123)
	default:
		return fmt.Errorf("unknown seed scenario %q", scenario)
	}
	if err != nil {
		return err
	}
	s.log.Infow("seeded scenario", "scenario", scenario)
	return nil
}

func (s *Store) seedDistricts() error {
	return s.SaveDistricts([]model.District{
		{ID: 1, Name: "Downtown", Population: 450_000},
		{ID: 2, Name: "Northside", Population: 380_000},
		{ID: 3, Name: "Eastborough", Population: 320_000},
		{ID: 4, Name: "Riverside", Population: 280_000},
		{ID: 5, Name: "Westend", Population: 420_000},
		{ID: 6, Name: "Southgate", Population: 350_000},
		{ID: 7, Name: "Industrial", Population: 150_000},
		{ID: 8, Name: "University", Population: 150_000},
	})
}

func (s *Store) seedResourceCalendar(capacities map[string]int, horizonWeeks, year int) error {
	var slots []model.ResourceSlot
	for resourceType, capacity := range capacities {
		for week := 1; week <= horizonWeeks; week++ {
			slots = append(slots, model.ResourceSlot{
				ResourceType: resourceType,
				WeekNumber:   week,
				Year:         year,
				Capacity:     capacity,
			})
		}
	}
	return s.SaveResourceSlots(slots)
}

func (s *Store) clearIssues() error {
	if err := s.db.Where("1 = 1").Delete(&model.IssueSignal{}).Error; err != nil {
		return err
	}
	return s.db.Where("1 = 1").Delete(&model.Issue{}).Error
}

func intptr(v int) *int { return &v }

// seedSampleIssues loads the ten-issue walkthrough set, spanning every
// safety and mandate tier.
func (s *Store) seedSampleIssues() error {
	issues := []struct {
		issue  model.Issue
		signal model.IssueSignal
	}{
		{
			model.Issue{ID: 1, Title: "Major Water Pipeline Rupture", Category: "Water", Description: "Critical water main break affecting downtown area", Source: "emergency_report", DistrictID: intptr(1), Status: "OPEN"},
			model.IssueSignal{IssueID: 1, PopulationAffected: 450_000, ComplaintCount: 1200, SafetyTier: model.SafetyCritical, MandateTier: model.MandateCourtOrdered, EstimatedCost: 45_000_000, UrgencyDays: 7},
		},
		{
			model.Issue{ID: 2, Title: "Hospital Power Backup Failure", Category: "Health", Description: "Primary backup generator at City Hospital non-functional", Source: "facility_inspection", DistrictID: intptr(2), Status: "OPEN"},
			model.IssueSignal{IssueID: 2, PopulationAffected: 180_000, ComplaintCount: 300, SafetyTier: model.SafetyCritical, MandateTier: model.MandateRequired, EstimatedCost: 12_000_000, UrgencyDays: 14},
		},
		{
			model.Issue{ID: 3, Title: "Urban Flooding in Low-Lying Areas", Category: "Disaster Management", Description: "Recurring flooding in Districts 4 and 7 during monsoon", Source: "citizen_complaint", DistrictID: intptr(4), Status: "OPEN"},
			model.IssueSignal{IssueID: 3, PopulationAffected: 280_000, ComplaintCount: 900, SafetyTier: model.SafetySevere, MandateTier: model.MandateNone, EstimatedCost: 60_000_000, UrgencyDays: 30},
		},
		{
			model.Issue{ID: 4, Title: "Pothole Complaints in Residential Zones", Category: "Infrastructure", Description: "Multiple potholes reported on Main St and Oak Ave", Source: "citizen_complaint", DistrictID: intptr(5), Status: "OPEN"},
			model.IssueSignal{IssueID: 4, PopulationAffected: 80_000, ComplaintCount: 40, SafetyTier: model.SafetyNone, MandateTier: model.MandateNone, EstimatedCost: 4_000_000, UrgencyDays: 60},
		},
		{
			model.Issue{ID: 5, Title: "Public Park Renovation", Category: "Recreation", Description: "Central Park playground equipment outdated", Source: "council_request", DistrictID: intptr(3), Status: "OPEN"},
			model.IssueSignal{IssueID: 5, PopulationAffected: 15_000, ComplaintCount: 12, SafetyTier: model.SafetyNone, MandateTier: model.MandateNone, EstimatedCost: 2_500_000, UrgencyDays: 180},
		},
		{
			model.Issue{ID: 6, Title: "Street Light Outages", Category: "Infrastructure", Description: "Multiple street lights non-functional in Sector 12", Source: "citizen_complaint", DistrictID: intptr(6), Status: "OPEN"},
			model.IssueSignal{IssueID: 6, PopulationAffected: 25_000, ComplaintCount: 85, SafetyTier: model.SafetyModerate, MandateTier: model.MandateNone, EstimatedCost: 800_000, UrgencyDays: 45},
		},
		{
			model.Issue{ID: 7, Title: "School Zone Safety Improvements", Category: "Education", Description: "Need for crosswalks and speed bumps near Lincoln Elementary", Source: "citizen_complaint", DistrictID: intptr(8), Status: "OPEN"},
			model.IssueSignal{IssueID: 7, PopulationAffected: 5_000, ComplaintCount: 150, SafetyTier: model.SafetyModerate, MandateTier: model.MandateAdvisory, EstimatedCost: 500_000, UrgencyDays: 30},
		},
		{
			model.Issue{ID: 8, Title: "Bridge Structural Assessment", Category: "Infrastructure", Description: "Main Street bridge showing signs of deterioration", Source: "facility_inspection", DistrictID: intptr(1), Status: "OPEN"},
			model.IssueSignal{IssueID: 8, PopulationAffected: 120_000, ComplaintCount: 50, SafetyTier: model.SafetySevere, MandateTier: model.MandateRequired, EstimatedCost: 8_000_000, UrgencyDays: 21},
		},
		{
			model.Issue{ID: 9, Title: "Community Center HVAC Replacement", Category: "Recreation", Description: "Aging HVAC system in Southgate Community Center", Source: "facility_inspection", DistrictID: intptr(6), Status: "OPEN"},
			model.IssueSignal{IssueID: 9, PopulationAffected: 8_000, ComplaintCount: 25, SafetyTier: model.SafetyNone, MandateTier: model.MandateNone, EstimatedCost: 1_200_000, UrgencyDays: 90},
		},
		{
			model.Issue{ID: 10, Title: "Stormwater Drain Capacity Upgrade", Category: "Water", Description: "Drains overflow during heavy rain in Eastborough", Source: "citizen_complaint", DistrictID: intptr(3), Status: "OPEN"},
			model.IssueSignal{IssueID: 10, PopulationAffected: 95_000, ComplaintCount: 180, SafetyTier: model.SafetyModerate, MandateTier: model.MandateAdvisory, EstimatedCost: 5_500_000, UrgencyDays: 45},
		},
	}
	for i := range issues {
		if err := s.SaveIssue(&issues[i].issue, &issues[i].signal); err != nil {
			return err
		}
	}
	return nil
}

// issueTemplate drives the generated scenarios.
type issueTemplate struct {
	title       string
	category    string
	safety      model.SafetyTier
	mandate     model.MandateTier
	costLo      float64
	costHi      float64
	weeksLo     int
	weeksHi     int
	crewLo      int
	crewHi      int
	urgencyLo   int
	urgencyHi   int
}

var largeTemplates = []issueTemplate{
	{"Emergency Water Main Break - Sector %s", "Water", model.SafetyCritical, model.MandateCourtOrdered, 20_000_000, 50_000_000, 10, 20, 0, 0, 3, 14},
	{"Hospital Equipment Failure - Wing %s", "Health", model.SafetyCritical, model.MandateRequired, 5_000_000, 15_000_000, 6, 12, 0, 0, 7, 21},
	{"Bridge Inspection - %s Ave", "Infrastructure", model.SafetySevere, model.MandateRequired, 3_000_000, 10_000_000, 4, 10, 0, 0, 14, 30},
	{"Fire Station Renovation - Station %s", "Infrastructure", model.SafetySevere, model.MandateRequired, 2_000_000, 8_000_000, 8, 16, 0, 0, 21, 45},
	{"School Safety Upgrade - %s", "Education", model.SafetyModerate, model.MandateAdvisory, 200_000, 1_000_000, 3, 8, 0, 0, 30, 60},
	{"Street Lighting - District %s", "Infrastructure", model.SafetyModerate, model.MandateNone, 300_000, 800_000, 4, 8, 0, 0, 30, 60},
	{"Park Renovation - %s Park", "Recreation", model.SafetyNone, model.MandateNone, 500_000, 3_000_000, 6, 14, 0, 0, 60, 120},
	{"Pothole Repair - Zone %s", "Infrastructure", model.SafetyNone, model.MandateNone, 100_000, 500_000, 2, 6, 0, 0, 45, 90},
	{"Stormwater System - Sector %s", "Water", model.SafetyModerate, model.MandateAdvisory, 1_000_000, 6_000_000, 5, 12, 0, 0, 30, 60},
	{"Community Center Upgrade - %s", "Recreation", model.SafetyNone, model.MandateNone, 400_000, 1_500_000, 4, 10, 0, 0, 60, 120},
	{"Sewer Line Replacement - %s St", "Water", model.SafetySevere, model.MandateRequired, 2_000_000, 8_000_000, 8, 16, 0, 0, 14, 30},
	{"Green Space Development - Area %s", "Recreation", model.SafetyNone, model.MandateNone, 800_000, 3_000_000, 8, 16, 0, 0, 90, 180},
}

var balancedTemplates = []issueTemplate{
	{"Water Main Repair - Sector %s", "Water", model.SafetyCritical, model.MandateCourtOrdered, 2_000_000, 5_000_000, 3, 6, 2, 4, 7, 14},
	{"Hospital Generator Check - %s", "Health", model.SafetyCritical, model.MandateRequired, 500_000, 2_000_000, 2, 4, 2, 3, 7, 14},
	{"Bridge Safety Fix - %s St", "Infrastructure", model.SafetySevere, model.MandateRequired, 1_000_000, 3_000_000, 3, 5, 3, 5, 14, 21},
	{"Fire Alarm Upgrade - Station %s", "Health", model.SafetyModerate, model.MandateRequired, 200_000, 600_000, 2, 4, 1, 2, 21, 30},
	{"School Crossing Safety - %s", "Education", model.SafetyModerate, model.MandateAdvisory, 100_000, 300_000, 2, 3, 1, 2, 14, 30},
	{"Street Light Repair - Zone %s", "Infrastructure", model.SafetyModerate, model.MandateNone, 50_000, 150_000, 1, 2, 1, 2, 21, 45},
	{"Sidewalk Repair - %s Ave", "Infrastructure", model.SafetyModerate, model.MandateNone, 80_000, 200_000, 2, 3, 2, 3, 30, 45},
	{"Park Bench Install - %s Park", "Recreation", model.SafetyNone, model.MandateNone, 20_000, 80_000, 1, 2, 1, 2, 45, 90},
	{"Pothole Patch - Sector %s", "Infrastructure", model.SafetyNone, model.MandateNone, 30_000, 100_000, 1, 2, 1, 2, 30, 60},
	{"Playground Equipment - %s Park", "Recreation", model.SafetyNone, model.MandateNone, 50_000, 150_000, 2, 3, 1, 2, 60, 90},
	{"Drainage Clear - Sector %s", "Water", model.SafetyNone, model.MandateAdvisory, 40_000, 120_000, 1, 2, 1, 2, 30, 60},
	{"Community Garden - Site %s", "Recreation", model.SafetyNone, model.MandateNone, 30_000, 100_000, 2, 3, 1, 2, 60, 120},
}

var sectorNames = []string{"Alpha", "Beta", "Gamma", "Delta", "North", "South", "East", "West", "Central", "Omega"}

// seedGeneratedIssues synthesizes a reproducible issue set from templates.
// The fixed seed keeps demo runs comparable across machines.
func (s *Store) seedGeneratedIssues(templates []issueTemplate, count int, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	sources := []string{"citizen_complaint", "facility_inspection", "emergency_report", "council_request"}

	for i := 1; i <= count; i++ {
		tpl := templates[rng.Intn(len(templates))]
		issue := model.Issue{
			ID:         i,
			Title:      fmt.Sprintf(tpl.title, sectorNames[rng.Intn(len(sectorNames))]),
			Category:   tpl.category,
			Source:     sources[rng.Intn(len(sources))],
			DistrictID: intptr(1 + rng.Intn(8)),
			Status:     "OPEN",
		}
		issue.Description = "Generated scenario issue: " + issue.Title

		complaints := 5 + rng.Intn(96)
		if tpl.safety == model.SafetyCritical || tpl.safety == model.SafetySevere {
			complaints = 20 + rng.Intn(281)
		}
		signal := model.IssueSignal{
			IssueID:            i,
			PopulationAffected: 5_000 + rng.Intn(195_001),
			ComplaintCount:     complaints,
			SafetyTier:         tpl.safety,
			MandateTier:        tpl.mandate,
			EstimatedCost:      tpl.costLo + rng.Float64()*(tpl.costHi-tpl.costLo),
			UrgencyDays:        tpl.urgencyLo + rng.Intn(tpl.urgencyHi-tpl.urgencyLo+1),
			DurationWeeks:      tpl.weeksLo + rng.Intn(tpl.weeksHi-tpl.weeksLo+1),
		}
		if tpl.crewHi > 0 {
			signal.CrewSize = tpl.crewLo + rng.Intn(tpl.crewHi-tpl.crewLo+1)
		}
		if err := s.SaveIssue(&issue, &signal); err != nil {
			return err
		}
	}
	return nil
}
