package models

import (
	"time"

	"github.com/token-ledger/internal/types"
)

// TokenBalance represents the current token balance snapshot for a user.
// It is mutated only by the ledger; every mutation writes a matching
// TokenTransaction audit record in the same database transaction.
type TokenBalance struct {
	UserID               string         `json:"userId" db:"user_id"`
	PlanType             types.PlanType `json:"planType" db:"plan_type"`
	TokensRemaining      int64          `json:"tokensRemaining" db:"tokens_remaining"`
	TokensPerMonth       int64          `json:"tokensPerMonth" db:"tokens_per_month"`
	AssignmentsRemaining int            `json:"assignmentsRemaining" db:"assignments_remaining"`
	AssignmentsAllowed   int            `json:"assignmentsAllowed" db:"assignments_allowed"`
	NextResetAt          time.Time      `json:"nextResetAt" db:"next_reset_at"`
	UpdatedAt            time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsUnlimited reports whether numeric balance checks are bypassed for this plan.
// UNLIMITED balances store no meaningful token ceiling; debits are no-ops against
// the stored number but still produce audit records.
func (b *TokenBalance) IsUnlimited() bool {
	return b.PlanType == types.PlanUnlimited
}
