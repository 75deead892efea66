// Package types provides common type definitions for the token ledger system.
package types

// PlanType represents a purchasable plan tier
type PlanType string

const (
	// PlanFree represents the free starter plan
	PlanFree PlanType = "FREE"
	// PlanP represents the PASS-only plan tier
	PlanP PlanType = "P"
	// PlanPM represents the PASS+MERIT plan tier
	PlanPM PlanType = "PM"
	// PlanPMD represents the all-grades plan tier
	PlanPMD PlanType = "PMD"
	// PlanUnlimited represents the unmetered plan tier
	PlanUnlimited PlanType = "UNLIMITED"
	// PlanCustom represents the priced-by-quantity custom tier
	PlanCustom PlanType = "CUSTOM"

	// PlanBasic is a legacy name accepted on catalog lookup and normalized to P
	PlanBasic PlanType = "BASIC"
	// PlanPro is a legacy name accepted on catalog lookup and normalized to PMD
	PlanPro PlanType = "PRO"
)

// Grade represents an output grade level for a generation job
type Grade string

const (
	// GradePass represents the PASS grade level
	GradePass Grade = "PASS"
	// GradeMerit represents the MERIT grade level
	GradeMerit Grade = "MERIT"
	// GradeDistinction represents the DISTINCTION grade level
	GradeDistinction Grade = "DISTINCTION"
)

// IsValid reports whether the grade is a known grade level
func (g Grade) IsValid() bool {
	switch g {
	case GradePass, GradeMerit, GradeDistinction:
		return true
	default:
		return false
	}
}

// PaymentStatus represents the lifecycle state of a payment transaction
type PaymentStatus string

const (
	// PaymentWaiting represents a payment awaiting external reconciliation
	PaymentWaiting PaymentStatus = "WAITING_PAYMENT"
	// PaymentPaid represents a payment confirmed by the operator
	PaymentPaid PaymentStatus = "PAID"
	// PaymentRejected represents a payment rejected by the operator
	PaymentRejected PaymentStatus = "REJECTED"
	// PaymentExpired represents a payment whose window lapsed unconfirmed
	PaymentExpired PaymentStatus = "EXPIRED"
	// PaymentCancelled represents a payment cancelled by its owner
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// IsTerminal reports whether the status is a terminal lifecycle state
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentPaid, PaymentRejected, PaymentExpired, PaymentCancelled:
		return true
	default:
		return false
	}
}

// PaymentMethod represents how a purchase is paid for
type PaymentMethod string

const (
	// MethodBankTransfer represents a manually reconciled bank transfer
	MethodBankTransfer PaymentMethod = "bank_transfer"
	// MethodCardTransfer represents a manually reconciled card-to-card transfer
	MethodCardTransfer PaymentMethod = "card_transfer"
)

// IsValid reports whether the payment method is known
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodBankTransfer, MethodCardTransfer:
		return true
	default:
		return false
	}
}

// TokenTransactionType represents the kind of ledger mutation an audit record explains
type TokenTransactionType string

const (
	// TxAssignmentGeneration represents a debit for a generation job
	TxAssignmentGeneration TokenTransactionType = "ASSIGNMENT_GENERATION"
	// TxPlanUpgrade represents a credit from a settled plan purchase
	TxPlanUpgrade TokenTransactionType = "PLAN_UPGRADE"
	// TxAdminAdjustment represents a manual operator adjustment or refund
	TxAdminAdjustment TokenTransactionType = "ADMIN_ADJUSTMENT"
	// TxMonthlyReset represents the periodic quota reset
	TxMonthlyReset TokenTransactionType = "MONTHLY_RESET"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
