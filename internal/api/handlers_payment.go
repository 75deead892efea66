package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/token-ledger/internal/service"
	"github.com/token-ledger/internal/types"
)

// handleCreatePayment handles POST /api/payments - Open a new pending payment.
// The acting user comes from X-User-ID; a payment can only be opened for the
// actor, otherwise one caller could block another user's purchases through the
// one-pending-payment invariant.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return
	}

	var input service.CreatePaymentInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if input.UserID != "" && input.UserID != actor {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "A payment can only be created for the acting user", nil)
		return
	}
	input.UserID = actor

	payment, err := s.paymentService.Create(r.Context(), &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, payment)
}

// handleGetPayment handles GET /api/payments/:id - Payment by ID
func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	payment, err := s.paymentService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

// handleGetActivePayment handles GET /api/users/:id/payments/active - The
// user's pending payment, if any
func (s *Server) handleGetActivePayment(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	payment, err := s.paymentService.GetActive(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if payment == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"payment": nil})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"payment": payment})
}

// handleListPayments handles GET /api/users/:id/payments - Payment history
func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	limit, offset := parsePaging(r)

	payments, err := s.paymentService.List(r.Context(), userID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"count":    len(payments),
	})
}

// handleCancelPayment handles POST /api/payments/:id/cancel - Owner-initiated
// cancellation of a pending payment. The acting user comes from X-User-ID.
func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	actor := r.Header.Get("X-User-ID")
	if actor == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return
	}

	payment, err := s.paymentService.Cancel(r.Context(), id, actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}

// handleSettlePayment handles POST /api/payments/:id/settle - Operator-only
// settlement of a pending payment as PAID or REJECTED
func (s *Server) handleSettlePayment(w http.ResponseWriter, r *http.Request) {
	if !s.requireOperator(w, r) {
		return
	}

	id := mux.Vars(r)["id"]

	var req struct {
		Outcome types.PaymentStatus `json:"outcome"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	payment, err := s.paymentService.Settle(r.Context(), id, req.Outcome)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, payment)
}
