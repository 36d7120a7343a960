package provider

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/screening-orchestrator/internal/types"
)

// Conversation statuses reported by the provider.
const (
	ConversationInitiated  = "initiated"
	ConversationInProgress = "in-progress"
	ConversationProcessing = "processing"
	ConversationDone       = "done"
	ConversationFailed     = "failed"
)

// InitiateCallRequest holds the parameters for placing an outbound call
type InitiateCallRequest struct {
	AgentID      string            `json:"agent_id"`
	PhoneNumber  string            `json:"to_number"`
	FirstMessage string            `json:"first_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// initiateCallResponse is the provider's response to a call initiation
type initiateCallResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// Conversation is the provider's view of one live or completed conversation
type Conversation struct {
	SessionID  string                  `json:"conversation_id"`
	Status     string                  `json:"status"`
	Transcript []types.TranscriptEntry `json:"transcript"`
	Evaluation *Evaluation             `json:"analysis,omitempty"`
	Metadata   *ConversationMetadata   `json:"metadata,omitempty"`
}

// IsOngoing reports whether the conversation has not yet ended
func (c *Conversation) IsOngoing() bool {
	switch c.Status {
	case ConversationInitiated, ConversationInProgress, ConversationProcessing:
		return true
	default:
		return false
	}
}

// Evaluation holds the provider's scoring of a completed conversation
type Evaluation struct {
	// CallSuccessful is the provider's explicit overall signal when present;
	// absent, outcome falls back to the score threshold.
	CallSuccessful *bool `json:"call_successful,omitempty"`
	// Criteria accepts both response shapes the provider emits.
	Criteria CriteriaList `json:"evaluation_criteria_results,omitempty"`
	Summary  *string      `json:"transcript_summary,omitempty"`
}

// ConversationMetadata holds call-level metadata
type ConversationMetadata struct {
	DurationSeconds *int              `json:"call_duration_secs,omitempty"`
	RecordingURL    *string           `json:"recording_url,omitempty"`
	Custom          map[string]string `json:"custom,omitempty"`
}

// Webhook event types delivered by the provider.
const (
	WebhookConversationEnded = "conversation.ended"
	WebhookCallFailed        = "call.failed"
)

// WebhookEvent is the provider's completion notification payload
type WebhookEvent struct {
	Type         string       `json:"type"`
	Conversation Conversation `json:"data"`
	// FailureReason is set on call.failed events
	FailureReason string `json:"failure_reason,omitempty"`
}

// CriteriaList normalizes the provider's heterogeneous criteria shapes at
// the transport boundary. The provider returns evaluation results either as
// an array of entries or as a map keyed by criteria id; both decode into a
// uniform list so scoring never branches on transport shape.
type CriteriaList []types.CriteriaResult

// rawCriterion is one criteria entry as the provider sends it
type rawCriterion struct {
	CriteriaID string `json:"criteria_id,omitempty"`
	Criteria   string `json:"criteria,omitempty"`
	Result     string `json:"result,omitempty"`
	Passed     *bool  `json:"passed,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func (r rawCriterion) normalize(key string) types.CriteriaResult {
	name := r.Criteria
	if name == "" {
		name = r.CriteriaID
	}
	if name == "" {
		name = key
	}

	passed := false
	if r.Passed != nil {
		passed = *r.Passed
	} else {
		passed = r.Result == "success" || r.Result == "pass"
	}

	reason := r.Rationale
	if reason == "" {
		reason = r.Reason
	}

	return types.CriteriaResult{Criteria: name, Passed: passed, Reason: reason}
}

// UnmarshalJSON accepts either an array or a keyed map of criteria
func (cl *CriteriaList) UnmarshalJSON(data []byte) error {
	var asArray []rawCriterion
	if err := json.Unmarshal(data, &asArray); err == nil {
		out := make(CriteriaList, 0, len(asArray))
		for _, raw := range asArray {
			out = append(out, raw.normalize(""))
		}
		*cl = out
		return nil
	}

	var asMap map[string]rawCriterion
	if err := json.Unmarshal(data, &asMap); err != nil {
		return fmt.Errorf("evaluation criteria is neither array nor map: %w", err)
	}

	// Sort map keys so normalization is deterministic
	keys := make([]string, 0, len(asMap))
	for k := range asMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(CriteriaList, 0, len(asMap))
	for _, k := range keys {
		out = append(out, asMap[k].normalize(k))
	}
	*cl = out
	return nil
}
