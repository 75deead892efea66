package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/token-ledger/internal/catalog"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// handleCreateUser handles POST /api/users - Register a new user.
// The user starts on the FREE plan; the balance row is created atomically
// with the user so every user always has a balance.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "A valid email is required", nil)
		return
	}

	user := &models.User{Email: req.Email}

	free, _ := catalog.Default().Lookup(types.PlanFree)
	balance := &models.TokenBalance{
		PlanType:             types.PlanFree,
		TokensRemaining:      free.TokensPerMonth,
		TokensPerMonth:       free.TokensPerMonth,
		AssignmentsRemaining: free.AssignmentsAllowed,
		AssignmentsAllowed:   free.AssignmentsAllowed,
		NextResetAt:          time.Now().AddDate(0, 1, 0),
	}

	if err := s.userStore.Create(r.Context(), user, balance); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// handleGetUser handles GET /api/users/:id - Get user by ID
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	user, err := s.userStore.GetByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
