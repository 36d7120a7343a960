package models

import (
	"time"

	"github.com/screening-orchestrator/internal/types"
)

// ScheduledCall is the time-trigger record for a screening that is not
// dispatched immediately. One exists per non-bulk or pre-scheduled
// screening; it is the unit the scheduled-call runner sweeps.
type ScheduledCall struct {
	ID            string                    `json:"id" db:"id"`
	ScreeningID   string                    `json:"screeningId" db:"screening_id"`
	ScheduledTime time.Time                 `json:"scheduledTime" db:"scheduled_time"`
	Status        types.ScheduledCallStatus `json:"status" db:"status"`
	RetryCount    int                       `json:"retryCount" db:"retry_count"`
	NextRetryAt   *time.Time                `json:"nextRetryAt,omitempty" db:"next_retry_at"`
	LastAttemptAt *time.Time                `json:"lastAttemptAt,omitempty" db:"last_attempt_at"`
	LastError     *string                   `json:"lastError,omitempty" db:"last_error"`
	CreatedAt     time.Time                 `json:"createdAt" db:"created_at"`
}
