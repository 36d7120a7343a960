package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/screening-orchestrator/internal/screening"
	"github.com/screening-orchestrator/internal/types"
)

// handleCreateBulkOperation handles POST /api/bulk-operations
func (s *Server) handleCreateBulkOperation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID        string     `json:"roleId"`
		CandidateIDs  []string   `json:"candidateIds"`
		BatchSize     int        `json:"batchSize,omitempty"`
		Mode          string     `json:"mode,omitempty"`
		ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}
	if req.RoleID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "roleId is required", nil)
		return
	}

	op, err := s.service.CreateBulkOperation(r.Context(), &screening.CreateBulkOperationInput{
		RoleID:        req.RoleID,
		CandidateIDs:  req.CandidateIDs,
		BatchSize:     req.BatchSize,
		Mode:          types.SchedulingMode(req.Mode),
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		s.logger.WithError(err).Warn("CreateBulkOperation failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, op)
}

// handleGetProgress handles GET /api/bulk-operations/{id}/progress.
// The recount query parameter forces a counter rebuild from child rows
// before the read, which repairs any drift.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recount := r.URL.Query().Get("recount") == "1"

	progress, err := s.service.Progress(r.Context(), id, recount)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

// handlePause handles POST /api/bulk-operations/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.service.Pause(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "paused"})
}

// handleResume handles POST /api/bulk-operations/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.service.Resume(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "in_progress"})
}

// handleCancel handles POST /api/bulk-operations/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.service.Cancel(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

// handleRetryFailed handles POST /api/bulk-operations/{id}/retry-failed
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	reset, err := s.service.RetryFailed(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":         id,
		"resetCount": reset,
	})
}
