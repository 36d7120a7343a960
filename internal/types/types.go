// Package types defines shared domain types used across the screening
// orchestration engine.
package types

// ScreeningStatus represents the lifecycle state of a screening
type ScreeningStatus string

const (
	// ScreeningPending means the screening is waiting to be dispatched
	ScreeningPending ScreeningStatus = "pending"
	// ScreeningScheduled means the screening is waiting for its scheduled time
	ScreeningScheduled ScreeningStatus = "scheduled"
	// ScreeningInProgress means a provider call has been initiated
	ScreeningInProgress ScreeningStatus = "in_progress"
	// ScreeningCompleted means the call finished and results were recorded
	ScreeningCompleted ScreeningStatus = "completed"
	// ScreeningFailed means the call could not be completed
	ScreeningFailed ScreeningStatus = "failed"
	// ScreeningIncomplete means the call connected but produced no usable result
	ScreeningIncomplete ScreeningStatus = "incomplete"
	// ScreeningCancelled means an operator cancelled the screening
	ScreeningCancelled ScreeningStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state
func (s ScreeningStatus) IsTerminal() bool {
	switch s {
	case ScreeningCompleted, ScreeningFailed, ScreeningIncomplete, ScreeningCancelled:
		return true
	default:
		return false
	}
}

// BulkOperationStatus represents the control state of a bulk operation
type BulkOperationStatus string

const (
	// BulkPending means the operation has been created but dispatch has not started
	BulkPending BulkOperationStatus = "pending"
	// BulkInProgress means the dispatcher is actively draining the operation
	BulkInProgress BulkOperationStatus = "in_progress"
	// BulkPaused means an operator paused dispatch
	BulkPaused BulkOperationStatus = "paused"
	// BulkCancelled means an operator cancelled the operation
	BulkCancelled BulkOperationStatus = "cancelled"
	// BulkCompleted means no child screenings remain pending or in progress
	BulkCompleted BulkOperationStatus = "completed"
)

// ScheduledCallStatus represents the state of a scheduled call record
type ScheduledCallStatus string

const (
	ScheduledCallPending   ScheduledCallStatus = "pending"
	ScheduledCallCompleted ScheduledCallStatus = "completed"
	ScheduledCallFailed    ScheduledCallStatus = "failed"
)

// Outcome represents the pass/fail result of a completed screening
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// SchedulingMode controls whether a bulk operation dispatches immediately
// or waits for a scheduled time
type SchedulingMode string

const (
	ModeImmediate SchedulingMode = "immediate"
	ModeScheduled SchedulingMode = "scheduled"
)

// CriteriaResult is the canonical normalized form of one provider-evaluated
// scoring criterion. Provider responses arrive as either an array or a keyed
// map; both normalize to a list of these before any scoring runs.
type CriteriaResult struct {
	Criteria string `json:"criteria"`
	Passed   bool   `json:"passed"`
	Reason   string `json:"reason,omitempty"`
}

// TranscriptEntry is one turn of a screening conversation
type TranscriptEntry struct {
	Role    string `json:"role"` // "agent" or "user"
	Message string `json:"message"`
	// TimeInCallSecs is the offset of this turn from call start, when the
	// provider reports it.
	TimeInCallSecs *float64 `json:"time_in_call_secs,omitempty"`
}

// IsCandidate reports whether this transcript entry is attributable to the candidate
func (t TranscriptEntry) IsCandidate() bool {
	return t.Role == "user" || t.Role == "candidate"
}

// CallMetrics holds call-quality metrics computed at finalization
type CallMetrics struct {
	ConversationTurns        int      `json:"conversationTurns"`
	CandidateResponded       bool     `json:"candidateResponded"`
	CallConnected            bool     `json:"callConnected"`
	FirstResponseTimeSeconds *float64 `json:"firstResponseTimeSeconds,omitempty"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
