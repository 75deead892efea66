package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/token-ledger/internal/types"
)

// PaymentTransaction represents one purchase attempt. While pending it is
// owned exclusively by the user who created it; at most one pending payment
// may exist per user at any time.
type PaymentTransaction struct {
	ID            string              `json:"id" db:"id"`
	UserID        string              `json:"userId" db:"user_id"`
	PlanType      types.PlanType      `json:"planType" db:"plan_type"`
	PaymentMethod types.PaymentMethod `json:"paymentMethod" db:"payment_method"`
	FinalAmount   decimal.Decimal     `json:"finalAmount" db:"final_amount"`
	Status        types.PaymentStatus `json:"status" db:"status"`
	CustomTokens  *int64              `json:"customTokens,omitempty" db:"custom_tokens"`
	CustomGrade   *types.Grade        `json:"customGrade,omitempty" db:"custom_grade"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	ExpiresAt     time.Time           `json:"expiresAt" db:"expires_at"`
	SettledAt     *time.Time          `json:"settledAt,omitempty" db:"settled_at"`
}

// IsOverdue reports whether a still-pending payment's window has lapsed.
func (p *PaymentTransaction) IsOverdue(now time.Time) bool {
	return p.Status == types.PaymentWaiting && !now.Before(p.ExpiresAt)
}
