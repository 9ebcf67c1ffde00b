package model

// ResourceSlot is one crew type's capacity for one week.
// Invariant: SoftAllocated + HardAllocated <= Capacity at all times.
type ResourceSlot struct {
	ResourceType  string `json:"resource_type" gorm:"primaryKey"`
	WeekNumber    int    `json:"week_number" gorm:"primaryKey"`
	Year          int    `json:"year" gorm:"primaryKey"`
	Capacity      int    `json:"capacity"`
	SoftAllocated int    `json:"soft_allocated"`
	HardAllocated int    `json:"hard_allocated"`
}

// Available is the remaining uncommitted capacity
func (s ResourceSlot) Available() int {
	return s.Capacity - s.SoftAllocated - s.HardAllocated
}

// DistrictAllocation tracks quarterly spending against a district's fair share
type DistrictAllocation struct {
	DistrictID      int     `json:"district_id" gorm:"primaryKey;column:district_id"`
	Quarter         string  `json:"quarter" gorm:"primaryKey"`
	Year            int     `json:"year" gorm:"primaryKey"`
	Population      int     `json:"population"`
	FairShareBudget float64 `json:"fair_share_budget"`
	AllocatedBudget float64 `json:"allocated_budget"`
	ProjectCount    int     `json:"project_count"`
}

// ServiceRatio is allocated spend relative to the district's fair share.
// Defined as 1.0 when the fair share is zero.
func (d DistrictAllocation) ServiceRatio() float64 {
	if d.FairShareBudget <= 0 {
		return 1.0
	}
	return d.AllocatedBudget / d.FairShareBudget
}
