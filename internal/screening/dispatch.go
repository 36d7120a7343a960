package screening

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/screening-orchestrator/internal/errors"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
)

// callDispatcher places a single provider call for a screening. It is shared
// by the batch dispatcher, the scheduled-call runner, and single-screening
// intake so directory validation and dispatch bookkeeping stay in one place.
type callDispatcher struct {
	screenings ScreeningStore
	directory  DirectoryStore
	provider   CallProvider
	lifecycle  *lifecycle
	logger     *logging.Logger
	now        func() time.Time
}

// resolve loads the candidate and role for a screening and validates the
// fields required to place a call. Missing configuration is a permanent
// error; the caller must not retry it.
func (d *callDispatcher) resolve(ctx context.Context, s *models.Screening) (*models.Candidate, *models.Role, error) {
	role, err := d.directory.GetRole(ctx, s.RoleID)
	if err != nil {
		return nil, nil, apperrors.NewNotFoundError("role", s.RoleID)
	}
	if role.VoiceAgentID == nil || *role.VoiceAgentID == "" {
		return nil, nil, apperrors.NewMissingVoiceAgentError(s.RoleID)
	}

	candidate, err := d.directory.GetCandidate(ctx, s.CandidateID)
	if err != nil {
		return nil, nil, apperrors.NewNotFoundError("candidate", s.CandidateID)
	}
	if candidate.PhoneNumber == "" {
		return nil, nil, apperrors.NewMissingPhoneNumberError(s.CandidateID)
	}

	return candidate, role, nil
}

// place initiates the outbound call and records the dispatch. The provider
// error, if any, is returned unmarked so the caller can apply its own retry
// policy; the screening row is only touched on success.
func (d *callDispatcher) place(ctx context.Context, s *models.Screening, candidate *models.Candidate, role *models.Role, source string) (string, error) {
	req := &provider.InitiateCallRequest{
		AgentID:     *role.VoiceAgentID,
		PhoneNumber: candidate.PhoneNumber,
		Metadata: map[string]string{
			"screening_id": s.ID,
		},
	}
	if role.FirstMessage != nil {
		req.FirstMessage = *role.FirstMessage
	}
	if s.BulkOperationID != nil {
		req.Metadata["bulk_operation_id"] = *s.BulkOperationID
	}

	sessionID, err := d.provider.InitiateCall(ctx, req)
	if err != nil {
		return "", apperrors.NewProviderError("call initiation", err)
	}

	marked, err := d.screenings.MarkDispatched(ctx, s.ID, sessionID, d.now())
	if err != nil {
		return "", fmt.Errorf("failed to mark screening %s dispatched: %w", s.ID, err)
	}
	if !marked {
		// The screening left its dispatchable state underneath us,
		// most likely an operator cancellation between the list query
		// and the call. The call was placed; the webhook for it will
		// arrive against a terminal row and be dropped by the guard.
		d.logger.WithField("screening_id", s.ID).Warn("Dispatched call for screening no longer dispatchable")
		return sessionID, nil
	}

	if s.BulkOperationID != nil {
		d.lifecycle.markOperationStarted(ctx, *s.BulkOperationID)
	}

	d.lifecycle.recordEvent(ctx, &models.CallEvent{
		ScreeningID:     s.ID,
		BulkOperationID: derefOr(s.BulkOperationID),
		SessionID:       sessionID,
		EventType:       models.EventDispatched,
		Source:          source,
		Detail:          fmt.Sprintf("candidate=%s", s.CandidateID),
	})

	d.logger.WithFields(map[string]interface{}{
		"screening_id": s.ID,
		"session_id":   sessionID,
		"source":       source,
	}).Info("Screening call dispatched")

	return sessionID, nil
}
