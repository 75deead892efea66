package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	lederrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// index on (user_id) WHERE status = 'WAITING_PAYMENT'. That index is what
// enforces the one-pending-payment-per-user invariant under concurrency.
const uniqueViolation = "23505"

// PlanGrant describes the ledger effect of a PAID settlement: the token
// credit plus the plan fields the balance is switched to.
type PlanGrant struct {
	PlanType           types.PlanType
	Tokens             int64
	TokensPerMonth     int64
	AssignmentsAllowed int
	NextResetAt        time.Time
}

// PaymentRepository handles payment transaction persistence. Status
// transitions are compare-and-set updates conditioned on the row still being
// WAITING_PAYMENT, so two racing transitions cannot both apply.
type PaymentRepository struct {
	db *PostgresDB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *PostgresDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, plan_type, payment_method, final_amount, status,
	custom_tokens, custom_grade, created_at, expires_at, settled_at`

func scanPayment(row pgx.Row) (*models.PaymentTransaction, error) {
	var p models.PaymentTransaction
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PlanType,
		&p.PaymentMethod,
		&p.FinalAmount,
		&p.Status,
		&p.CustomTokens,
		&p.CustomGrade,
		&p.CreatedAt,
		&p.ExpiresAt,
		&p.SettledAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new pending payment. It fails with CONFLICT when the user
// already has a pending payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (id, user_id, plan_type, payment_method, final_amount,
			status, custom_tokens, custom_grade, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		payment.ID,
		payment.UserID,
		payment.PlanType,
		payment.PaymentMethod,
		payment.FinalAmount,
		payment.Status,
		payment.CustomTokens,
		payment.CustomGrade,
		payment.CreatedAt,
		payment.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return lederrors.NewConflictError("a pending payment already exists for this user").ToServiceError()
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// GetByID retrieves a payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE id = $1`, paymentColumns)

	payment, err := scanPayment(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederrors.NewNotFoundError("payment", id).ToServiceError()
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	return payment, nil
}

// GetPendingByUser retrieves the user's pending payment, if any.
// Returns (nil, nil) when no payment is pending.
func (r *PaymentRepository) GetPendingByUser(ctx context.Context, userID string) (*models.PaymentTransaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE user_id = $1 AND status = $2`, paymentColumns)

	payment, err := scanPayment(r.db.Pool().QueryRow(ctx, query, userID, types.PaymentWaiting))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}

	return payment, nil
}

// ListByUser retrieves a user's payment history, newest first
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PaymentTransaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, paymentColumns)

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.PaymentTransaction
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}

	return payments, nil
}

// ListOverduePending returns pending payments whose expiry window has lapsed
func (r *PaymentRepository) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentTransaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payment_transactions
		WHERE status = $1 AND expires_at <= $2
		ORDER BY expires_at ASC
		LIMIT $3
	`, paymentColumns)

	rows, err := r.db.Pool().Query(ctx, query, types.PaymentWaiting, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.PaymentTransaction
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, payment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overdue payments: %w", err)
	}

	return payments, nil
}

// TransitionIfPending atomically moves a payment from WAITING_PAYMENT to the
// given terminal status. The boolean reports whether the transition applied;
// false means the payment was missing or already terminal.
func (r *PaymentRepository) TransitionIfPending(ctx context.Context, id string, to types.PaymentStatus) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = $2, settled_at = $3
		WHERE id = $1 AND status = $4
	`

	var settledAt *time.Time
	if to == types.PaymentPaid || to == types.PaymentRejected {
		now := time.Now()
		settledAt = &now
	}

	result, err := r.db.Pool().Exec(ctx, query, id, to, settledAt, types.PaymentWaiting)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// SettlePaid atomically transitions the payment to PAID and applies the plan
// grant to the user's balance: the token credit, the plan/quota field update
// and the PLAN_UPGRADE audit record all commit together or not at all.
// Returns the committed audit record so the caller can feed it to the cache
// invalidation and usage mirror hooks. A nil record with a false boolean means
// the payment was missing or no longer pending, and nothing was credited.
func (r *PaymentRepository) SettlePaid(ctx context.Context, id string, grant *PlanGrant) (*models.TokenTransaction, bool, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	now := time.Now()

	// CAS on status: only the first transition to observe WAITING_PAYMENT wins
	result, err := tx.Exec(ctx, `
		UPDATE payment_transactions
		SET status = $2, settled_at = $3
		WHERE id = $1 AND status = $4
	`, id, types.PaymentPaid, now, types.PaymentWaiting)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	if result.RowsAffected() == 0 {
		return nil, false, nil
	}

	var userID string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM payment_transactions WHERE id = $1`, id).Scan(&userID); err != nil {
		return nil, false, fmt.Errorf("failed to read payment owner: %w", err)
	}

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, false, err
	}

	balance.PlanType = grant.PlanType
	balance.TokensPerMonth = grant.TokensPerMonth
	balance.AssignmentsAllowed = grant.AssignmentsAllowed
	balance.NextResetAt = grant.NextResetAt
	if grant.AssignmentsAllowed >= 0 {
		balance.AssignmentsRemaining = grant.AssignmentsAllowed
	}
	if grant.PlanType == types.PlanUnlimited {
		// Token count is not tracked on unlimited plans
		balance.TokensRemaining = 0
		balance.TokensPerMonth = 0
	} else {
		// Top-up credit is additive, not a reset
		balance.TokensRemaining += grant.Tokens
	}

	if err := writeBalance(ctx, tx, balance); err != nil {
		return nil, false, err
	}

	record := &models.TokenTransaction{
		UserID:      userID,
		Type:        types.TxPlanUpgrade,
		Amount:      grant.Tokens,
		Description: fmt.Sprintf("plan upgrade to %s", grant.PlanType),
	}
	if err := insertAuditRecord(ctx, tx, record); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit settlement: %w", err)
	}

	return record, true, nil
}
