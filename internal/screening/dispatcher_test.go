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

func TestDispatcherDrainsOperationInChunks(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	candidates := h.seedDirectory("role-1", 5)
	h.seedBulkOperation("op-1", "role-1", candidates)

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	// Five candidates with batch size two means three chunks, all calls
	// placed in creation order.
	assert.Equal(t, 5, h.provider.callCount())
	for i, call := range h.provider.calls {
		expected := h.directory.candidates[candidates[i]].PhoneNumber
		assert.Equal(t, expected, call.req.PhoneNumber, "call order")
	}

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, types.BulkInProgress, op.Status, "operation stays in progress until completions arrive")

	for _, s := range h.screenings.rows {
		assert.Equal(t, types.ScreeningInProgress, s.Status)
		assert.NotNil(t, s.SessionID)
	}

	assert.Len(t, h.events.byType(models.EventDispatched), 5)
}

func TestDispatcherHaltsMidChunkOnPause(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	candidates := h.seedDirectory("role-1", 5)
	h.seedBulkOperation("op-1", "role-1", candidates)

	// Status flips to paused after the second pre-dispatch checkpoint, so
	// exactly two calls go out.
	h.bulkOps.pauseAfterChecks = 2

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	assert.Equal(t, 2, h.provider.callCount())

	counts, err := h.screenings.CountByStatus(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[types.ScreeningPending], "undispatched screenings stay pending")
	assert.Equal(t, 2, counts[types.ScreeningInProgress])
}

func TestDispatcherResumesAfterPause(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	candidates := h.seedDirectory("role-1", 4)
	h.seedBulkOperation("op-1", "role-1", candidates)
	h.bulkOps.pauseAfterChecks = 2

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))
	require.Equal(t, 2, h.provider.callCount())

	// Operator resumes: remaining pending rows drain with no re-dispatch
	// of the in-flight ones.
	h.bulkOps.pauseAfterChecks = 0
	_, err := h.bulkOps.TransitionStatus(ctx, "op-1",
		[]types.BulkOperationStatus{types.BulkPaused}, types.BulkInProgress)
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	assert.Equal(t, 4, h.provider.callCount())
}

func TestDispatcherFailsScreeningOnProviderError(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	candidates := h.seedDirectory("role-1", 3)
	h.seedBulkOperation("op-1", "role-1", candidates)

	// Second initiation fails, the rest succeed.
	h.provider.initiateErrs = []error{nil, provider.ErrRateLimited, nil}

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	counts, err := h.screenings.CountByStatus(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[types.ScreeningInProgress])
	assert.Equal(t, 1, counts[types.ScreeningFailed])

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.FailedCount)
	assert.Equal(t, 0, op.CompletedCount)
}

func TestDispatcherFailsScreeningOnMissingConfiguration(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	// Role exists but has no voice agent: every dispatch is a permanent
	// configuration failure and no provider traffic happens.
	h.directory.roles["role-1"] = &models.Role{ID: "role-1", Title: "Backend Engineer"}
	h.directory.candidates["cand-1"] = &models.Candidate{ID: "cand-1", PhoneNumber: "+15550000001"}
	h.seedBulkOperation("op-1", "role-1", []string{"cand-1"})

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	assert.Equal(t, 0, h.provider.callCount())

	op, err := h.bulkOps.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, 1, op.FailedCount)
	// The only child failed at dispatch, so the operation is done.
	assert.Equal(t, types.BulkCompleted, op.Status)
}

func TestDispatcherSkipsCancelledOperation(t *testing.T) {
	h := newTestHarness()
	ctx := context.Background()

	candidates := h.seedDirectory("role-1", 2)
	h.seedBulkOperation("op-1", "role-1", candidates)
	h.bulkOps.rows["op-1"].Status = types.BulkCancelled

	require.NoError(t, h.dispatcher.Run(ctx, "op-1"))

	assert.Equal(t, 0, h.provider.callCount())
}

func TestDispatcherMissingOperation(t *testing.T) {
	h := newTestHarness()

	err := h.dispatcher.Run(context.Background(), "nope")
	assert.Error(t, err)
}
