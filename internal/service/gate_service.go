package service

import (
	"context"
	"fmt"

	"github.com/token-ledger/internal/catalog"
	lederrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// Ledger is the slice of the ledger service the gate depends on
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	DebitGeneration(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error)
}

// GateService is the consumption gate in front of assignment generation.
// Checks run in a fixed order: grade eligibility, then assignment quota,
// then token balance. The quota and balance checks plus the debit itself
// happen atomically in the ledger.
type GateService struct {
	ledger  Ledger
	catalog *catalog.Catalog
}

// NewGateService creates a new gate service
func NewGateService(ledger Ledger, cat *catalog.Catalog) *GateService {
	return &GateService{ledger: ledger, catalog: cat}
}

// AuthorizeInput represents a request to start one generation job
type AuthorizeInput struct {
	UserID string      `json:"userId"`
	Grade  types.Grade `json:"grade"`
	Tokens int64       `json:"tokens"`
}

// AuthorizeResult reports the post-debit balance and the audit record
type AuthorizeResult struct {
	Balance *models.TokenBalance     `json:"balance"`
	Record  *models.TokenTransaction `json:"record"`
}

// Authorize admits or refuses one generation job. On success the job's token
// cost and one assignment are already debited; a refusal leaves the balance
// untouched.
func (s *GateService) Authorize(ctx context.Context, input *AuthorizeInput) (*AuthorizeResult, error) {
	if input.UserID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}
	if !input.Grade.IsValid() {
		return nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("unknown grade: %s", input.Grade),
		}
	}
	if input.Tokens <= 0 {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "tokens must be positive"}
	}

	balance, err := s.ledger.GetBalance(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	plan, ok := s.catalog.Lookup(balance.PlanType)
	if !ok {
		return nil, lederrors.NewNotFoundError("plan", string(balance.PlanType)).ToServiceError()
	}
	if !plan.AllowsGrade(input.Grade) {
		return nil, lederrors.NewGradeNotAllowedError(input.Grade, plan.Type).ToServiceError()
	}

	description := fmt.Sprintf("Assignment generation (%s)", input.Grade)
	updated, record, err := s.ledger.DebitGeneration(ctx, input.UserID, input.Tokens, description)
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId": input.UserID,
		"grade":  string(input.Grade),
		"tokens": input.Tokens,
	}).Info("Generation authorized")

	return &AuthorizeResult{Balance: updated, Record: record}, nil
}
