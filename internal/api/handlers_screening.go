package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/screening-orchestrator/internal/screening"
)

// handleCreateScreening handles POST /api/screenings
func (s *Server) handleCreateScreening(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoleID        string     `json:"roleId"`
		CandidateID   string     `json:"candidateId"`
		ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid request body", nil)
		return
	}
	if req.RoleID == "" || req.CandidateID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "roleId and candidateId are required", nil)
		return
	}

	result, err := s.service.CreateScreening(r.Context(), &screening.CreateScreeningInput{
		RoleID:        req.RoleID,
		CandidateID:   req.CandidateID,
		ScheduledTime: req.ScheduledTime,
	})
	if err != nil {
		s.logger.WithError(err).Warn("CreateScreening failed")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// handleGetScreening handles GET /api/screenings/{id}
func (s *Server) handleGetScreening(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := s.service.GetScreening(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleScheduledSweep handles POST /api/sweeps/scheduled-calls
func (s *Server) handleScheduledSweep(w http.ResponseWriter, r *http.Request) {
	handled, err := s.scheduled.RunSweep(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"handled": handled})
}

// handleReconcileSweep handles POST /api/sweeps/reconciliation
func (s *Server) handleReconcileSweep(w http.ResponseWriter, r *http.Request) {
	examined, err := s.reconcile.RunSweep(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"examined": examined})
}
