package screening

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/types"
)

// Event sources recorded on audit rows.
const (
	sourceDispatcher = "dispatcher"
	sourceScheduler  = "scheduler"
	sourceWebhook    = "webhook"
	sourceReconciler = "reconciler"
	sourceOperator   = "operator"
)

// lifecycle owns the state transitions shared by the dispatch, webhook, and
// reconciliation paths: guarded screening finalization, atomic parent counter
// updates, cache invalidation, bulk completion detection, and audit events.
// Centralizing these here is what makes finalization idempotent regardless of
// which path reaches a screening first.
type lifecycle struct {
	screenings ScreeningStore
	bulkOps    BulkOperationStore
	events     EventSink
	progress   ProgressInvalidator
	logger     *logging.Logger
	now        func() time.Time
}

func newLifecycle(screenings ScreeningStore, bulkOps BulkOperationStore, events EventSink, progress ProgressInvalidator, logger *logging.Logger) *lifecycle {
	return &lifecycle{
		screenings: screenings,
		bulkOps:    bulkOps,
		events:     events,
		progress:   progress,
		logger:     logger,
		now:        time.Now,
	}
}

// finalizeCompleted persists the conversation result on a screening. The
// underlying update is guarded on status, so a screening already finalized by
// another path is left untouched and no counters move twice. Returns whether
// this call performed the finalization.
func (l *lifecycle) finalizeCompleted(ctx context.Context, s *models.Screening, conv *provider.Conversation, source string) (bool, error) {
	result := buildResult(conv)

	finalized, err := l.screenings.FinalizeCompleted(ctx, s.ID, result, l.now())
	if err != nil {
		return false, fmt.Errorf("failed to finalize screening %s: %w", s.ID, err)
	}
	if !finalized {
		l.logger.WithField("screening_id", s.ID).Debug("Screening already finalized, skipping")
		return false, nil
	}

	if s.BulkOperationID != nil {
		if err := l.bulkOps.IncrementCompleted(ctx, *s.BulkOperationID); err != nil {
			return true, fmt.Errorf("failed to increment completed count: %w", err)
		}
		l.invalidateProgress(ctx, *s.BulkOperationID)
		l.maybeCompleteOperation(ctx, *s.BulkOperationID)
	}

	eventType := models.EventCompleted
	if source == sourceReconciler {
		eventType = models.EventReconciled
	}
	l.recordEvent(ctx, &models.CallEvent{
		ScreeningID:     s.ID,
		BulkOperationID: derefOr(s.BulkOperationID),
		SessionID:       derefOr(s.SessionID),
		EventType:       eventType,
		Source:          source,
		Detail:          fmt.Sprintf("outcome=%s score=%.1f", result.Outcome, result.Score),
	})

	l.logger.WithFields(map[string]interface{}{
		"screening_id": s.ID,
		"outcome":      result.Outcome,
		"score":        result.Score,
		"source":       source,
	}).Info("Screening finalized")

	return true, nil
}

// finalizeFailed marks a dispatched screening failed, with the same
// idempotence guard as finalizeCompleted.
func (l *lifecycle) finalizeFailed(ctx context.Context, s *models.Screening, summary, source string) (bool, error) {
	finalized, err := l.screenings.FinalizeFailed(ctx, s.ID, summary)
	if err != nil {
		return false, fmt.Errorf("failed to mark screening %s failed: %w", s.ID, err)
	}
	if !finalized {
		l.logger.WithField("screening_id", s.ID).Debug("Screening already finalized, skipping failure")
		return false, nil
	}

	if s.BulkOperationID != nil {
		if err := l.bulkOps.IncrementFailed(ctx, *s.BulkOperationID); err != nil {
			return true, fmt.Errorf("failed to increment failed count: %w", err)
		}
		l.invalidateProgress(ctx, *s.BulkOperationID)
		l.maybeCompleteOperation(ctx, *s.BulkOperationID)
	}

	l.recordEvent(ctx, &models.CallEvent{
		ScreeningID:     s.ID,
		BulkOperationID: derefOr(s.BulkOperationID),
		SessionID:       derefOr(s.SessionID),
		EventType:       models.EventFailed,
		Source:          source,
		Detail:          summary,
	})

	l.logger.WithFields(map[string]interface{}{
		"screening_id": s.ID,
		"reason":       summary,
		"source":       source,
	}).Warn("Screening failed")

	return true, nil
}

// dispatchFailed marks an undispatched screening failed before any call was
// placed (missing configuration, provider rejection).
func (l *lifecycle) dispatchFailed(ctx context.Context, s *models.Screening, summary, source string) (bool, error) {
	marked, err := l.screenings.MarkDispatchFailed(ctx, s.ID, summary)
	if err != nil {
		return false, fmt.Errorf("failed to mark screening %s dispatch-failed: %w", s.ID, err)
	}
	if !marked {
		return false, nil
	}

	if s.BulkOperationID != nil {
		if err := l.bulkOps.IncrementFailed(ctx, *s.BulkOperationID); err != nil {
			return true, fmt.Errorf("failed to increment failed count: %w", err)
		}
		l.markOperationStarted(ctx, *s.BulkOperationID)
		l.invalidateProgress(ctx, *s.BulkOperationID)
		l.maybeCompleteOperation(ctx, *s.BulkOperationID)
	}

	l.recordEvent(ctx, &models.CallEvent{
		ScreeningID:     s.ID,
		BulkOperationID: derefOr(s.BulkOperationID),
		EventType:       models.EventFailed,
		Source:          source,
		Detail:          summary,
	})

	return true, nil
}

// markOperationStarted moves a pending bulk operation to in progress. This
// covers the scheduled-mode path where the runner, not the batch dispatcher,
// places the first call. A rejected guard means the operation already moved,
// which is fine.
func (l *lifecycle) markOperationStarted(ctx context.Context, bulkOperationID string) {
	started, err := l.bulkOps.TransitionStatus(ctx, bulkOperationID,
		[]types.BulkOperationStatus{types.BulkPending}, types.BulkInProgress)
	if err != nil {
		l.logger.WithError(err).WithField("bulk_operation_id", bulkOperationID).
			Error("Failed to mark bulk operation started")
		return
	}
	if started {
		l.invalidateProgress(ctx, bulkOperationID)
	}
}

// maybeCompleteOperation marks a bulk operation completed once no child
// screenings remain pending or in progress. The mark is guarded on
// in_progress status, so paused and cancelled operations are never
// auto-completed by trailing webhooks.
func (l *lifecycle) maybeCompleteOperation(ctx context.Context, bulkOperationID string) {
	remaining, err := l.screenings.CountRemaining(ctx, bulkOperationID)
	if err != nil {
		l.logger.WithError(err).WithField("bulk_operation_id", bulkOperationID).
			Error("Failed to count remaining screenings")
		return
	}
	if remaining > 0 {
		return
	}

	marked, err := l.bulkOps.MarkCompleted(ctx, bulkOperationID, l.now())
	if err != nil {
		l.logger.WithError(err).WithField("bulk_operation_id", bulkOperationID).
			Error("Failed to mark bulk operation completed")
		return
	}
	if marked {
		l.invalidateProgress(ctx, bulkOperationID)
		l.logger.WithField("bulk_operation_id", bulkOperationID).Info("Bulk operation completed")
	}
}

// recordEvent appends one audit event. The audit log never blocks a state
// transition, so sink errors are logged and swallowed.
func (l *lifecycle) recordEvent(ctx context.Context, event *models.CallEvent) {
	if l.events == nil {
		return
	}

	event.ID = uuid.New().String()
	event.OccurredAt = l.now()

	if err := l.events.Append(ctx, []*models.CallEvent{event}); err != nil {
		l.logger.WithError(err).WithFields(map[string]interface{}{
			"event_type":   event.EventType,
			"screening_id": event.ScreeningID,
		}).Warn("Failed to append call event")
	}
}

func (l *lifecycle) invalidateProgress(ctx context.Context, bulkOperationID string) {
	if l.progress == nil {
		return
	}
	if err := l.progress.Invalidate(ctx, bulkOperationID); err != nil {
		l.logger.WithError(err).WithField("bulk_operation_id", bulkOperationID).
			Warn("Failed to invalidate progress cache")
	}
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
