package model

import "time"

// AuditEventType is the closed set of recorded events
type AuditEventType string

const (
	EventProjectScored         AuditEventType = "PROJECT_SCORED"
	EventProjectApproved       AuditEventType = "PROJECT_APPROVED"
	EventProjectDeferred       AuditEventType = "PROJECT_DEFERRED"
	EventProjectRejected       AuditEventType = "PROJECT_REJECTED"
	EventFeasibilityOverridden AuditEventType = "FEASIBILITY_OVERRIDDEN"
	EventTaskScheduled         AuditEventType = "TASK_SCHEDULED"
	EventApprovalExpired       AuditEventType = "APPROVAL_EXPIRED"
	EventReservationReleased   AuditEventType = "RESERVATION_RELEASED"
)

// AuditEvent is one append-only entry in the audit stream
type AuditEvent struct {
	ID        string         `json:"event_id" gorm:"primaryKey;column:event_id"`
	Type      AuditEventType `json:"event_type"`
	Component string         `json:"component"`
	Payload   string         `json:"payload"` // JSON-encoded event detail
	Timestamp time.Time      `json:"timestamp"`
}
