package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// parsePaging reads limit/offset query parameters, leaving zero values for
// the service layer to clamp
func parsePaging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// handleGetBalance handles GET /api/users/:id/balance - Current balance snapshot
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	balance, err := s.ledgerService.GetBalance(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}

// handleGetHistory handles GET /api/users/:id/transactions - Ledger history, newest first
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	limit, offset := parsePaging(r)

	records, err := s.ledgerService.History(r.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": records,
		"count":        len(records),
	})
}

// handleGetUsage handles GET /api/users/:id/usage - Monthly usage aggregates
// from the analytics mirror
func (s *Server) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	if s.usageReader == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Usage analytics are not available", nil)
		return
	}

	userID := mux.Vars(r)["id"]

	now := time.Now()
	from := now.AddDate(-1, 0, 0)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be YYYY-MM-DD", nil)
			return
		}
		from = parsed
	}
	to := now
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be YYYY-MM-DD", nil)
			return
		}
		to = parsed
	}

	usage, err := s.usageReader.MonthlyUsageByUser(r.Context(), userID, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"usage": usage,
	})
}

// handleListPlans handles GET /api/plans - The purchasable plan catalog
func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plans": s.planCatalog.List(),
	})
}

// handleAdminAdjust handles POST /api/users/:id/adjustments - Operator-only
// signed balance adjustment
func (s *Server) handleAdminAdjust(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w, r) {
		return
	}

	userID := mux.Vars(r)["id"]

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Description == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "A description is required for adjustments", nil)
		return
	}

	balance, err := s.ledgerService.AdminAdjust(r.Context(), userID, req.Amount, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, balance)
}
