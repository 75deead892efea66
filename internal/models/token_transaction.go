package models

import (
	"time"

	"github.com/token-ledger/internal/types"
)

// TokenTransaction is an immutable audit record for a single ledger mutation.
// Amount is signed: negative for debits, positive for credits. Records are
// created exactly once per mutation and never updated or deleted.
type TokenTransaction struct {
	ID          string                     `json:"id" db:"id"`
	UserID      string                     `json:"userId" db:"user_id"`
	Type        types.TokenTransactionType `json:"type" db:"type"`
	Amount      int64                      `json:"amount" db:"amount"`
	Description string                     `json:"description" db:"description"`
	CreatedAt   time.Time                  `json:"createdAt" db:"created_at"`
}
