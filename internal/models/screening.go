package models

import (
	"time"

	"github.com/screening-orchestrator/internal/types"
)

// Screening represents one candidate-role voice screening attempt.
// Rows are never deleted by the engine; they are retained for audit.
type Screening struct {
	ID              string                `json:"id" db:"id"`
	RoleID          string                `json:"roleId" db:"role_id"`
	CandidateID     string                `json:"candidateId" db:"candidate_id"`
	BulkOperationID *string               `json:"bulkOperationId,omitempty" db:"bulk_operation_id"`
	Status          types.ScreeningStatus `json:"status" db:"status"`
	Attempts        int                   `json:"attempts" db:"attempts"`
	ScheduledAt     *time.Time            `json:"scheduledAt,omitempty" db:"scheduled_at"`
	StartedAt       *time.Time            `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt     *time.Time            `json:"completedAt,omitempty" db:"completed_at"`

	// SessionID is the provider's conversation identifier. It is the
	// reconciliation key and is set once a call has been dispatched.
	SessionID *string `json:"sessionId,omitempty" db:"session_id"`

	// Result payload, populated only at completion.
	Transcript               []types.TranscriptEntry `json:"transcript,omitempty" db:"transcript"`
	Score                    *float64                `json:"score,omitempty" db:"score"`
	Outcome                  *types.Outcome          `json:"outcome,omitempty" db:"outcome"`
	Reasons                  []string                `json:"reasons,omitempty" db:"reasons"`
	ConversationTurns        *int                    `json:"conversationTurns,omitempty" db:"conversation_turns"`
	CandidateResponded       *bool                   `json:"candidateResponded,omitempty" db:"candidate_responded"`
	CallConnected            *bool                   `json:"callConnected,omitempty" db:"call_connected"`
	FirstResponseTimeSeconds *float64                `json:"firstResponseTimeSeconds,omitempty" db:"first_response_time_seconds"`
	DurationSeconds          *int                    `json:"durationSeconds,omitempty" db:"duration_seconds"`
	RecordingURL             *string                 `json:"recordingUrl,omitempty" db:"recording_url"`
	AISummary                *string                 `json:"aiSummary,omitempty" db:"ai_summary"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ScreeningResult bundles the fields written by a finalization in one place
// so the webhook and reconciliation paths persist identical payloads.
type ScreeningResult struct {
	Transcript               []types.TranscriptEntry
	Score                    float64
	Outcome                  types.Outcome
	Reasons                  []string
	ConversationTurns        int
	CandidateResponded       bool
	CallConnected            bool
	FirstResponseTimeSeconds *float64
	DurationSeconds          *int
	RecordingURL             *string
	AISummary                *string
}
