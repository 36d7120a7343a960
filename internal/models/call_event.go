package models

import "time"

// Call event types recorded to the audit log.
const (
	EventDispatched = "dispatched"
	EventCompleted  = "completed"
	EventFailed     = "failed"
	EventReconciled = "reconciled"
	EventOrphaned   = "orphaned"
	EventCancelled  = "cancelled"
)

// CallEvent is one append-only row in the call lifecycle audit log.
// Orphaned webhook notifications (no matching session) are recorded here
// instead of being dead-lettered.
type CallEvent struct {
	ID              string    `json:"id" db:"id"`
	ScreeningID     string    `json:"screeningId" db:"screening_id"`
	BulkOperationID string    `json:"bulkOperationId" db:"bulk_operation_id"`
	SessionID       string    `json:"sessionId" db:"session_id"`
	EventType       string    `json:"eventType" db:"event_type"`
	Source          string    `json:"source" db:"source"` // dispatcher, scheduler, webhook, reconciler
	Detail          string    `json:"detail" db:"detail"`
	OccurredAt      time.Time `json:"occurredAt" db:"occurred_at"`
}
