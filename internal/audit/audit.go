// Package audit appends structured events to a durable sink. Events are
// advisory: a failed append is logged and never fails the operation that
// produced it.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppetrenko/civicplan/internal/model"
)

// Sink accepts audit events for storage.
type Sink interface {
	AppendAuditEvent(event model.AuditEvent) error
}

// Recorder builds and appends audit events.
type Recorder struct {
	sink Sink
	log  *zap.SugaredLogger
	now  func() time.Time
}

func NewRecorder(sink Sink, log *zap.SugaredLogger) *Recorder {
	return &Recorder{sink: sink, log: log, now: time.Now}
}

// WithClock overrides the recorder's clock.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record appends one event. The payload is JSON-encoded; encoding failures
// and sink failures are logged, not returned.
func (r *Recorder) Record(eventType model.AuditEventType, component string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.log.Errorw("encode audit payload", "event_type", eventType, "error", err)
		return
	}
	event := model.AuditEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Component: component,
		Payload:   string(body),
		Timestamp: r.now(),
	}
	if err := r.sink.AppendAuditEvent(event); err != nil {
		r.log.Errorw("append audit event", "event_type", eventType, "error", err)
	}
}
