package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/token-ledger/internal/catalog"
	lederrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/pricing"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

// PaymentRepository interface for payment data operations
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error)
	GetPendingByUser(ctx context.Context, userID string) (*models.PaymentTransaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PaymentTransaction, error)
	ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentTransaction, error)
	TransitionIfPending(ctx context.Context, id string, to types.PaymentStatus) (bool, error)
	SettlePaid(ctx context.Context, id string, grant *storage.PlanGrant) (*models.TokenTransaction, bool, error)
}

// LedgerNotifier receives audit records the payment repository commits on the
// ledger's behalf, so cache invalidation and the usage mirror still cover them
type LedgerNotifier interface {
	RecordMutation(ctx context.Context, record *models.TokenTransaction)
}

const expireBatchSize = 100

// PaymentService orchestrates the purchase lifecycle:
// WAITING_PAYMENT -> PAID | REJECTED | EXPIRED | CANCELLED.
// No ledger credit is applied until a PAID settlement; cancellation,
// rejection and expiry therefore have no ledger effect. Expiry is enforced
// lazily on every read path, so the one-pending-payment invariant self-heals
// without a live timer.
type PaymentService struct {
	repo         PaymentRepository
	catalog      *catalog.Catalog
	calculator   *pricing.Calculator
	ledger       LedgerNotifier // optional
	expiryWindow time.Duration
	now          func() time.Time
}

// NewPaymentService creates a new payment service. ledger may be nil.
func NewPaymentService(repo PaymentRepository, cat *catalog.Catalog, calc *pricing.Calculator, expiryWindow time.Duration, ledger LedgerNotifier) *PaymentService {
	return &PaymentService{
		repo:         repo,
		catalog:      cat,
		calculator:   calc,
		ledger:       ledger,
		expiryWindow: expiryWindow,
		now:          time.Now,
	}
}

// CreatePaymentInput represents input for creating a payment
type CreatePaymentInput struct {
	UserID        string              `json:"userId"`
	PlanType      types.PlanType      `json:"planType"`
	PaymentMethod types.PaymentMethod `json:"paymentMethod"`
	CustomTokens  *int64              `json:"customTokens,omitempty"`
	CustomGrade   *types.Grade        `json:"customGrade,omitempty"`
}

// Create opens a new pending payment. It fails with CONFLICT when the user
// already has one pending; an overdue pending payment is expired first so the
// invariant self-heals.
func (s *PaymentService) Create(ctx context.Context, input *CreatePaymentInput) (*models.PaymentTransaction, error) {
	if input.UserID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}
	if !input.PaymentMethod.IsValid() {
		return nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("unknown payment method: %s", input.PaymentMethod),
		}
	}

	plan, ok := s.catalog.Lookup(input.PlanType)
	if !ok {
		return nil, lederrors.NewNotFoundError("plan", string(input.PlanType)).ToServiceError()
	}
	if !plan.IsCustom && plan.Price.IsZero() {
		return nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("plan %s is not purchasable", plan.Type),
		}
	}

	var amount decimal.Decimal
	var customTokens *int64
	var customGrade *types.Grade

	if plan.IsCustom {
		if input.CustomTokens == nil || input.CustomGrade == nil {
			return nil, &types.ServiceError{
				Code:    "INVALID_INPUT",
				Message: "customTokens and customGrade are required for the custom plan",
			}
		}

		price, err := s.calculator.Price(*input.CustomTokens, *input.CustomGrade)
		if err != nil {
			return nil, err
		}
		amount = price
		customTokens = input.CustomTokens
		customGrade = input.CustomGrade
	} else {
		amount = plan.Price
	}

	// Self-heal: an overdue pending payment must not block a new purchase
	pending, err := s.repo.GetPendingByUser(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if pending != nil && pending.IsOverdue(now) {
		if _, err := s.repo.TransitionIfPending(ctx, pending.ID, types.PaymentExpired); err != nil {
			return nil, err
		}
	}

	payment := &models.PaymentTransaction{
		ID:            uuid.New().String(),
		UserID:        input.UserID,
		PlanType:      plan.Type,
		PaymentMethod: input.PaymentMethod,
		FinalAmount:   amount,
		Status:        types.PaymentWaiting,
		CustomTokens:  customTokens,
		CustomGrade:   customGrade,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.expiryWindow),
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"paymentId": payment.ID,
		"userId":    payment.UserID,
		"plan":      string(payment.PlanType),
		"amount":    payment.FinalAmount.String(),
	}).Info("Payment created")

	return payment, nil
}

// Get returns a payment by ID, applying lazy expiry first
func (s *PaymentService) Get(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.lazyExpire(ctx, payment)
}

// GetActive returns the user's pending payment after lazy expiry, or nil
func (s *PaymentService) GetActive(ctx context.Context, userID string) (*models.PaymentTransaction, error) {
	pending, err := s.repo.GetPendingByUser(ctx, userID)
	if err != nil || pending == nil {
		return nil, err
	}

	payment, err := s.lazyExpire(ctx, pending)
	if err != nil {
		return nil, err
	}
	if payment.Status != types.PaymentWaiting {
		return nil, nil
	}
	return payment, nil
}

// List returns the user's payment history, newest first, with lazy expiry
// applied to any overdue pending entry
func (s *PaymentService) List(ctx context.Context, userID string, limit, offset int) ([]*models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	payments, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	for i, payment := range payments {
		if payment.IsOverdue(s.now()) {
			expired, err := s.lazyExpire(ctx, payment)
			if err != nil {
				return nil, err
			}
			payments[i] = expired
		}
	}

	return payments, nil
}

// Cancel aborts a pending payment. Only the owning user may cancel, and only
// while the payment is still pending. No ledger effect: none was ever applied.
func (s *PaymentService) Cancel(ctx context.Context, id, actorUserID string) (*models.PaymentTransaction, error) {
	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != actorUserID {
		return nil, lederrors.NewUnauthorizedError("payment belongs to another user").ToServiceError()
	}

	payment, err = s.lazyExpire(ctx, payment)
	if err != nil {
		return nil, err
	}
	if payment.Status != types.PaymentWaiting {
		return nil, lederrors.NewInvalidStateError(id, payment.Status).ToServiceError()
	}

	applied, err := s.repo.TransitionIfPending(ctx, id, types.PaymentCancelled)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to another transition; report the fresh status
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, lederrors.NewInvalidStateError(id, fresh.Status).ToServiceError()
	}

	payment.Status = types.PaymentCancelled
	logging.FromContext(ctx).WithField("paymentId", id).Info("Payment cancelled")
	return payment, nil
}

// Settle records the reconciliation outcome for a payment. On PAID the plan
// grant is credited to the ledger atomically with the status transition; on
// REJECTED no ledger effect occurs. Settlement deliberately skips lazy
// expiry: whichever transition observes WAITING_PAYMENT first owns the
// outcome, so an operator confirming just as the window lapses still wins.
// Re-settling an already-terminal payment fails with INVALID_STATE.
func (s *PaymentService) Settle(ctx context.Context, id string, outcome types.PaymentStatus) (*models.PaymentTransaction, error) {
	if outcome != types.PaymentPaid && outcome != types.PaymentRejected {
		return nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("settlement outcome must be %s or %s", types.PaymentPaid, types.PaymentRejected),
		}
	}

	payment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var applied bool
	if outcome == types.PaymentPaid {
		grant, err := s.grantFor(payment)
		if err != nil {
			return nil, err
		}
		record, ok, err := s.repo.SettlePaid(ctx, id, grant)
		if err != nil {
			return nil, err
		}
		applied = ok
		if ok && s.ledger != nil {
			s.ledger.RecordMutation(ctx, record)
		}
	} else {
		applied, err = s.repo.TransitionIfPending(ctx, id, types.PaymentRejected)
		if err != nil {
			return nil, err
		}
	}

	if !applied {
		fresh, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, lederrors.NewInvalidStateError(id, fresh.Status).ToServiceError()
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"paymentId": id,
		"outcome":   string(outcome),
	}).Info("Payment settled")

	return s.repo.GetByID(ctx, id)
}

// ExpireOverdue expires every overdue pending payment. Returns the number
// expired. Used by the sweep worker; read paths do not depend on it.
func (s *PaymentService) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.repo.ListOverduePending(ctx, s.now(), expireBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, payment := range overdue {
		applied, err := s.repo.TransitionIfPending(ctx, payment.ID, types.PaymentExpired)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("paymentId", payment.ID).Error("Expiry sweep failed")
			continue
		}
		if applied {
			expired++
		}
	}

	return expired, nil
}

// lazyExpire transitions an overdue pending payment to EXPIRED before it is
// returned to any caller. If the compare-and-set loses to a concurrent
// settlement, the settled state is returned instead.
func (s *PaymentService) lazyExpire(ctx context.Context, payment *models.PaymentTransaction) (*models.PaymentTransaction, error) {
	if !payment.IsOverdue(s.now()) {
		return payment, nil
	}

	applied, err := s.repo.TransitionIfPending(ctx, payment.ID, types.PaymentExpired)
	if err != nil {
		return nil, err
	}
	if !applied {
		return s.repo.GetByID(ctx, payment.ID)
	}

	payment.Status = types.PaymentExpired
	return payment, nil
}

// grantFor derives the ledger effect of a PAID settlement from the catalog
// (fixed tiers) or the purchase itself (custom tier).
func (s *PaymentService) grantFor(payment *models.PaymentTransaction) (*storage.PlanGrant, error) {
	plan, ok := s.catalog.Lookup(payment.PlanType)
	if !ok {
		return nil, lederrors.NewNotFoundError("plan", string(payment.PlanType)).ToServiceError()
	}

	grant := &storage.PlanGrant{
		PlanType:           plan.Type,
		AssignmentsAllowed: plan.AssignmentsAllowed,
		NextResetAt:        s.now().AddDate(0, 1, 0),
	}

	if plan.IsCustom {
		if payment.CustomTokens == nil {
			return nil, &types.ServiceError{
				Code:    "INVALID_INPUT",
				Message: fmt.Sprintf("custom payment %s has no token quantity", payment.ID),
			}
		}
		grant.Tokens = *payment.CustomTokens
		grant.TokensPerMonth = *payment.CustomTokens
	} else {
		grant.Tokens = plan.TokensPerMonth
		grant.TokensPerMonth = plan.TokensPerMonth
	}

	return grant, nil
}
