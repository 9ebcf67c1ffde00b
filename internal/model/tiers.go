package model

import "fmt"

// SafetyTier classifies the public-safety risk of an issue
type SafetyTier string

const (
	SafetyNone     SafetyTier = "none"
	SafetyModerate SafetyTier = "moderate"
	SafetySevere   SafetyTier = "severe"
	SafetyCritical SafetyTier = "critical"
)

// Validate rejects values outside the closed tier set
func (t SafetyTier) Validate() error {
	switch t {
	case SafetyNone, SafetyModerate, SafetySevere, SafetyCritical:
		return nil
	}
	return fmt.Errorf("unknown safety tier %q", string(t))
}

// MandateTier classifies the legal obligation behind an issue
type MandateTier string

const (
	MandateNone         MandateTier = "none"
	MandateAdvisory     MandateTier = "advisory"
	MandateRequired     MandateTier = "required"
	MandateCourtOrdered MandateTier = "court_ordered"
)

// Validate rejects values outside the closed tier set
func (t MandateTier) Validate() error {
	switch t {
	case MandateNone, MandateAdvisory, MandateRequired, MandateCourtOrdered:
		return nil
	}
	return fmt.Errorf("unknown mandate tier %q", string(t))
}

// EquityTier is the qualitative service classification of a district
type EquityTier string

const (
	EquityUnderserved EquityTier = "underserved"
	EquityAverage     EquityTier = "average"
	EquityWellServed  EquityTier = "well_served"
)

// DecisionStatus is the lifecycle state of a portfolio decision
type DecisionStatus string

const (
	DecisionApproved    DecisionStatus = "APPROVED"
	DecisionConditional DecisionStatus = "APPROVED_WITH_CONDITIONS"
	DecisionDeferred    DecisionStatus = "DEFERRED"
	DecisionRejected    DecisionStatus = "REJECTED"
	DecisionExpired     DecisionStatus = "EXPIRED"
)

// Terminal reports whether the status admits no further transitions.
// Only APPROVED_WITH_CONDITIONS can move (to APPROVED, REJECTED, or EXPIRED).
func (s DecisionStatus) Terminal() bool {
	return s != DecisionConditional
}

// DeadlineStatus tracks a scheduled task against its deadline week
type DeadlineStatus string

const (
	DeadlineOnTrack DeadlineStatus = "ON_TRACK"
	DeadlineAtRisk  DeadlineStatus = "AT_RISK"
	DeadlineMissed  DeadlineStatus = "MISSED"
)

// ReservationKind distinguishes tentative from committed capacity holds
type ReservationKind string

const (
	ReservationSoft ReservationKind = "soft"
	ReservationHard ReservationKind = "hard"
)

// Validate rejects values outside the closed set
func (k ReservationKind) Validate() error {
	switch k {
	case ReservationSoft, ReservationHard:
		return nil
	}
	return fmt.Errorf("unknown reservation kind %q", string(k))
}
