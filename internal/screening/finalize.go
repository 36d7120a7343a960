package screening

import (
	"fmt"

	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/types"
)

// passThreshold is the score at or above which a screening passes when the
// provider gives no explicit overall signal.
const passThreshold = 60.0

// noResponseReason is synthesized when a call produced no evaluation and the
// candidate never engaged.
const noResponseReason = "Candidate did not respond to the screening call"

// buildResult converts a completed provider conversation into the result
// payload persisted on the screening row. The webhook and reconciliation
// paths both call this, so a screening finalized by either produces the same
// stored result.
func buildResult(conv *provider.Conversation) *models.ScreeningResult {
	result := &models.ScreeningResult{
		Transcript: conv.Transcript,
	}

	var criteria []types.CriteriaResult
	var explicit *bool
	if conv.Evaluation != nil {
		criteria = conv.Evaluation.Criteria
		explicit = conv.Evaluation.CallSuccessful
		result.AISummary = conv.Evaluation.Summary
	}
	if conv.Metadata != nil {
		result.DurationSeconds = conv.Metadata.DurationSeconds
		result.RecordingURL = conv.Metadata.RecordingURL
	}

	result.Score = scoreCriteria(criteria)
	result.Reasons = failureReasons(criteria)

	metrics := computeCallMetrics(conv.Transcript)
	result.ConversationTurns = metrics.ConversationTurns
	result.CandidateResponded = metrics.CandidateResponded
	result.CallConnected = metrics.CallConnected
	result.FirstResponseTimeSeconds = metrics.FirstResponseTimeSeconds

	// A call with no evaluated criteria and no real conversation is a
	// no-show, not a scored fail.
	if len(criteria) == 0 && metrics.ConversationTurns < 2 {
		result.Reasons = append(result.Reasons, noResponseReason)
	}

	switch {
	case explicit != nil && *explicit:
		result.Outcome = types.OutcomePass
	case explicit != nil:
		result.Outcome = types.OutcomeFail
	case result.Score >= passThreshold:
		result.Outcome = types.OutcomePass
	default:
		result.Outcome = types.OutcomeFail
	}

	return result
}

// scoreCriteria returns the percentage of criteria passed, 0 when none were
// evaluated.
func scoreCriteria(criteria []types.CriteriaResult) float64 {
	if len(criteria) == 0 {
		return 0
	}

	passed := 0
	for _, c := range criteria {
		if c.Passed {
			passed++
		}
	}

	return float64(passed) / float64(len(criteria)) * 100
}

// failureReasons collects the human-readable reasons from failed criteria
func failureReasons(criteria []types.CriteriaResult) []string {
	var reasons []string
	for _, c := range criteria {
		if c.Passed {
			continue
		}
		if c.Reason != "" {
			reasons = append(reasons, c.Reason)
		} else {
			reasons = append(reasons, fmt.Sprintf("Did not meet criteria: %s", c.Criteria))
		}
	}
	return reasons
}

// computeCallMetrics derives call-quality metrics from the transcript
func computeCallMetrics(transcript []types.TranscriptEntry) types.CallMetrics {
	metrics := types.CallMetrics{
		ConversationTurns: len(transcript),
	}

	for _, entry := range transcript {
		if !entry.IsCandidate() {
			continue
		}
		metrics.CandidateResponded = true
		if entry.TimeInCallSecs != nil {
			secs := *entry.TimeInCallSecs
			metrics.FirstResponseTimeSeconds = &secs
		}
		break
	}

	metrics.CallConnected = metrics.ConversationTurns >= 2 && metrics.CandidateResponded

	return metrics
}
