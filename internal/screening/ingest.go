package screening

import (
	"context"
	"time"

	apperrors "github.com/screening-orchestrator/internal/errors"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
)

// CompletionIngester consumes provider completion notifications and drives
// screening finalization. Delivery is at-least-once and ordering is not
// guaranteed, so every path through Ingest must be safe to repeat.
type CompletionIngester struct {
	screenings ScreeningStore
	lifecycle  *lifecycle
	logger     *logging.Logger
	now        func() time.Time
}

// NewCompletionIngester creates a new completion ingester
func NewCompletionIngester(screenings ScreeningStore, lc *lifecycle, logger *logging.Logger) *CompletionIngester {
	return &CompletionIngester{
		screenings: screenings,
		lifecycle:  lc,
		logger:     logger.WithField("component", "completion_ingester"),
		now:        time.Now,
	}
}

// Ingest processes one webhook event. Unknown sessions are recorded to the
// audit log and acknowledged rather than rejected, so the provider never
// redelivers events this service can never match.
func (i *CompletionIngester) Ingest(ctx context.Context, event *provider.WebhookEvent) error {
	sessionID := event.Conversation.SessionID
	if sessionID == "" {
		return apperrors.NewInvalidParameterError("conversation_id", "missing from webhook payload")
	}

	logger := i.logger.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"event_type": event.Type,
	})

	s, err := i.screenings.GetBySessionID(ctx, sessionID)
	if err != nil {
		return apperrors.NewDatabaseError("webhook session lookup", err)
	}
	if s == nil {
		logger.Warn("Webhook for unknown session")
		i.lifecycle.recordEvent(ctx, &models.CallEvent{
			SessionID: sessionID,
			EventType: models.EventOrphaned,
			Source:    sourceWebhook,
			Detail:    event.Type,
		})
		return nil
	}

	if s.Status.IsTerminal() {
		logger.WithField("screening_id", s.ID).Debug("Duplicate webhook for finalized screening")
		return nil
	}

	switch event.Type {
	case provider.WebhookCallFailed:
		reason := event.FailureReason
		if reason == "" {
			reason = "call failed"
		}
		_, err = i.lifecycle.finalizeFailed(ctx, s, reason, sourceWebhook)
		return err
	case provider.WebhookConversationEnded:
		_, err = i.lifecycle.finalizeCompleted(ctx, s, &event.Conversation, sourceWebhook)
		return err
	default:
		// Only terminal notifications finalize. A started/progress event
		// for an in-flight call must not close the screening with an empty
		// result; the reconciliation sweep picks up anything that never
		// gets a terminal event.
		logger.WithField("screening_id", s.ID).Warn("Ignoring webhook with unrecognized event type")
		return nil
	}
}
