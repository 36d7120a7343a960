package screening

import (
	"io"
	"time"

	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/types"
)

// testHarness bundles the fakes and wired components for engine tests.
// All pacing delays are zero so runs are synchronous and instant.
type testHarness struct {
	screenings *fakeScreeningStore
	bulkOps    *fakeBulkOperationStore
	calls      *fakeScheduledCallStore
	directory  *fakeDirectory
	provider   *fakeProvider
	events     *fakeEventSink

	lifecycle  *lifecycle
	dispatcher *BatchDispatcher
	runner     *ScheduledCallRunner
	ingester   *CompletionIngester
	reconciler *StuckScreeningReconciler
	controller *Controller
}

func newTestHarness() *testHarness {
	logger := logging.NewLogger(logging.LevelError, logging.FormatText)
	logger.SetOutput(io.Discard)

	h := &testHarness{
		screenings: newFakeScreeningStore(),
		bulkOps:    newFakeBulkOperationStore(),
		calls:      newFakeScheduledCallStore(),
		directory:  newFakeDirectory(),
		provider:   newFakeProvider(),
		events:     &fakeEventSink{},
	}
	h.bulkOps.screenings = h.screenings

	h.lifecycle = newLifecycle(h.screenings, h.bulkOps, h.events, nil, logger)

	h.dispatcher = NewBatchDispatcher(h.screenings, h.bulkOps, h.directory, h.provider, h.lifecycle,
		DispatcherConfig{BatchSize: 2}, logger)
	h.runner = NewScheduledCallRunner(h.calls, h.screenings, h.directory, h.provider, h.lifecycle,
		RunnerConfig{PageSize: 10}, logger)
	h.ingester = NewCompletionIngester(h.screenings, h.lifecycle, logger)
	h.reconciler = NewStuckScreeningReconciler(h.screenings, h.provider, h.lifecycle,
		ReconcilerConfig{StalenessThreshold: 5 * time.Minute, PageSize: 10}, logger)
	h.controller = NewController(h.screenings, h.bulkOps, h.calls, h.directory, h.provider, h.lifecycle,
		h.dispatcher, nil, 5, logger)

	return h
}

// seedDirectory registers a role with a voice agent and n reachable candidates,
// returning the candidate ids
func (h *testHarness) seedDirectory(roleID string, n int) []string {
	agentID := "agent-1"
	h.directory.roles[roleID] = &models.Role{ID: roleID, Title: "Backend Engineer", VoiceAgentID: &agentID}

	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		id := roleID + "-candidate-" + string(rune('a'+i-1))
		h.directory.candidates[id] = &models.Candidate{
			ID:          id,
			Name:        "Candidate " + string(rune('A'+i-1)),
			PhoneNumber: "+1555000000" + string(rune('0'+i)),
		}
		ids = append(ids, id)
	}
	return ids
}

// seedBulkOperation creates an operation with n pending screenings directly
// in the stores, bypassing intake
func (h *testHarness) seedBulkOperation(opID, roleID string, candidateIDs []string) {
	now := time.Now()
	h.bulkOps.rows[opID] = &models.BulkOperation{
		ID:         opID,
		RoleID:     roleID,
		Status:     types.BulkPending,
		BatchSize:  2,
		TotalCount: len(candidateIDs),
		CreatedAt:  now,
	}
	for i, candidateID := range candidateIDs {
		id := opID + "-screening-" + string(rune('1'+i))
		op := opID
		h.screenings.rows[id] = &models.Screening{
			ID:              id,
			RoleID:          roleID,
			CandidateID:     candidateID,
			BulkOperationID: &op,
			Status:          types.ScreeningPending,
			CreatedAt:       now,
		}
		h.screenings.order = append(h.screenings.order, id)
	}
}
