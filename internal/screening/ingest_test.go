package screening

import (
	"context"
	"testing"

	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dispatchedHarness returns a harness with one bulk operation of n screenings
// already dispatched, along with their session ids in order.
func dispatchedHarness(t *testing.T, n int) (*testHarness, []string) {
	t.Helper()
	h := newTestHarness()

	candidates := h.seedDirectory("role-1", n)
	h.seedBulkOperation("op-1", "role-1", candidates)
	require.NoError(t, h.dispatcher.Run(context.Background(), "op-1"))
	require.Equal(t, n, h.provider.callCount())

	sessions := make([]string, 0, n)
	for _, call := range h.provider.calls {
		sessions = append(sessions, call.sessionID)
	}
	return h, sessions
}

func endedEvent(sessionID string, criteriaResults ...bool) *provider.WebhookEvent {
	return &provider.WebhookEvent{
		Type: provider.WebhookConversationEnded,
		Conversation: provider.Conversation{
			SessionID:  sessionID,
			Status:     provider.ConversationDone,
			Transcript: twoTurnTranscript(),
			Evaluation: &provider.Evaluation{Criteria: criteria(criteriaResults...)},
		},
	}
}

func TestIngestFinalizesScreening(t *testing.T) {
	h, sessions := dispatchedHarness(t, 1)
	ctx := context.Background()

	require.NoError(t, h.ingester.Ingest(ctx, endedEvent(sessions[0], true, true, true, false)))

	s, err := h.screenings.GetBySessionID(ctx, sessions[0])
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, types.ScreeningCompleted, s.Status)
	require.NotNil(t, s.Score)
	assert.Equal(t, float64(75), *s.Score)
	require.NotNil(t, s.Outcome)
	assert.Equal(t, types.OutcomePass, *s.Outcome)

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.CompletedCount)
	assert.Equal(t, types.BulkCompleted, op.Status, "last completion closes the operation")
	require.NotNil(t, op.CompletedAt)
}

func TestIngestDuplicateWebhookCountsOnce(t *testing.T) {
	h, sessions := dispatchedHarness(t, 2)
	ctx := context.Background()

	event := endedEvent(sessions[0], true)
	require.NoError(t, h.ingester.Ingest(ctx, event))
	require.NoError(t, h.ingester.Ingest(ctx, event))
	require.NoError(t, h.ingester.Ingest(ctx, event))

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.CompletedCount, "redelivered webhook must not re-increment")
	assert.Equal(t, types.BulkInProgress, op.Status, "second screening still in flight")
}

func TestIngestFailedCallEvent(t *testing.T) {
	h, sessions := dispatchedHarness(t, 1)
	ctx := context.Background()

	err := h.ingester.Ingest(ctx, &provider.WebhookEvent{
		Type:          provider.WebhookCallFailed,
		Conversation:  provider.Conversation{SessionID: sessions[0]},
		FailureReason: "no answer",
	})
	require.NoError(t, err)

	s, err := h.screenings.GetBySessionID(ctx, sessions[0])
	require.NoError(t, err)
	assert.Equal(t, types.ScreeningFailed, s.Status)

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.FailedCount)
	assert.Equal(t, 0, op.CompletedCount)
	assert.Equal(t, types.BulkCompleted, op.Status)
}

func TestIngestFailThenEndedIsStable(t *testing.T) {
	// Out-of-order delivery: once the failed event lands, a later ended
	// event for the same session must not overwrite the terminal state.
	h, sessions := dispatchedHarness(t, 1)
	ctx := context.Background()

	require.NoError(t, h.ingester.Ingest(ctx, &provider.WebhookEvent{
		Type:         provider.WebhookCallFailed,
		Conversation: provider.Conversation{SessionID: sessions[0]},
	}))
	require.NoError(t, h.ingester.Ingest(ctx, endedEvent(sessions[0], true, true)))

	s, err := h.screenings.GetBySessionID(ctx, sessions[0])
	require.NoError(t, err)
	assert.Equal(t, types.ScreeningFailed, s.Status)
	assert.Nil(t, s.Score)

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.FailedCount)
	assert.Equal(t, 0, op.CompletedCount)
}

func TestIngestOrphanedWebhook(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	err := h.ingester.Ingest(ctx, endedEvent("session-unknown", true))
	require.NoError(t, err, "orphans are acknowledged, not rejected")

	orphaned := h.events.byType(models.EventOrphaned)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "session-unknown", orphaned[0].SessionID)
}

func TestIngestIgnoresNonTerminalEventType(t *testing.T) {
	h, sessions := dispatchedHarness(t, 1)
	ctx := context.Background()

	event := endedEvent(sessions[0], true)
	event.Type = "conversation.started"

	require.NoError(t, h.ingester.Ingest(ctx, event))

	s, err := h.screenings.GetBySessionID(ctx, sessions[0])
	require.NoError(t, err)
	assert.Equal(t, types.ScreeningInProgress, s.Status, "a non-terminal notification must not finalize")

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 0, op.CompletedCount)
	assert.Equal(t, 0, op.FailedCount)

	// The terminal event still lands afterwards.
	require.NoError(t, h.ingester.Ingest(ctx, endedEvent(sessions[0], true)))
	s, err = h.screenings.GetBySessionID(ctx, sessions[0])
	require.NoError(t, err)
	assert.Equal(t, types.ScreeningCompleted, s.Status)
}

func TestIngestRejectsMissingSessionID(t *testing.T) {
	h := newTestHarness()

	err := h.ingester.Ingest(context.Background(), &provider.WebhookEvent{
		Type: provider.WebhookConversationEnded,
	})
	assert.Error(t, err)
}

func TestIngestMixedCompletionsCloseOperation(t *testing.T) {
	h, sessions := dispatchedHarness(t, 3)
	ctx := context.Background()

	require.NoError(t, h.ingester.Ingest(ctx, endedEvent(sessions[0], true, true)))
	require.NoError(t, h.ingester.Ingest(ctx, endedEvent(sessions[1], false, false)))
	require.NoError(t, h.ingester.Ingest(ctx, &provider.WebhookEvent{
		Type:         provider.WebhookCallFailed,
		Conversation: provider.Conversation{SessionID: sessions[2]},
	}))

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	// A failing score still counts as a completion; only the dead call
	// counts as failed.
	assert.Equal(t, 2, op.CompletedCount)
	assert.Equal(t, 1, op.FailedCount)
	assert.Equal(t, types.BulkCompleted, op.Status)
}
