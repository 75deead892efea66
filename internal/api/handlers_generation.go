package api

import (
	"net/http"

	"github.com/token-ledger/internal/service"
)

// handleAuthorizeGeneration handles POST /api/generations/authorize - The
// consumption gate. On success the job's cost is already debited; the caller
// may start the generation.
func (s *Server) handleAuthorizeGeneration(w http.ResponseWriter, r *http.Request) {
	var input service.AuthorizeInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	result, err := s.gateService.Authorize(r.Context(), &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
