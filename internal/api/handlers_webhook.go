package api

import (
	"encoding/json"
	"net/http"

	"github.com/screening-orchestrator/internal/provider"
)

// handleCallWebhook handles POST /webhooks/call-events, the provider's
// completion notification. The response code matters: anything but 2xx makes
// the provider redeliver, so only malformed payloads are rejected. Unknown
// sessions are acknowledged and recorded as orphans by the ingester.
func (s *Server) handleCallWebhook(w http.ResponseWriter, r *http.Request) {
	var event provider.WebhookEvent

	// Provider payloads carry fields this service does not model, so no
	// DisallowUnknownFields here.
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid webhook payload", nil)
		return
	}

	if err := s.ingester.Ingest(r.Context(), &event); err != nil {
		s.logger.WithError(err).WithField("session_id", event.Conversation.SessionID).
			Error("Webhook ingestion failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
