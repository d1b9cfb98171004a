package model

// EventKind represents the push notification message type
type EventKind string

const (
	// Server → Client push notifications
	EventJobCompleted    EventKind = "JOB_COMPLETED"
	EventPaymentPending  EventKind = "PAYMENT_PENDING"
	EventPaymentTimeout  EventKind = "PAYMENT_TIMEOUT"
	EventJobStatusUpdate EventKind = "JOB_STATUS_UPDATE"
	EventDisputeRaised   EventKind = "DISPUTE_RAISED"
	EventDisputeResolved EventKind = "DISPUTE_RESOLVED"
)

// PushEvent is a server-initiated notification delivered over the
// persistent channel. It exists only for the duration of dispatch.
type PushEvent struct {
	Type    EventKind `json:"type"`
	JobID   int64     `json:"job_id"`
	Message string    `json:"message,omitempty"`
}

// NoticeKey returns the notice-center key for the event's job, so that
// redelivered events replace rather than duplicate a visible notice.
func (e *PushEvent) NoticeKey() string {
	return JobNoticeKey(e.JobID)
}
