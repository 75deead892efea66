package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	lederrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

// BalanceRepository handles token balance persistence. Every mutation locks
// the user's balance row (SELECT ... FOR UPDATE) and writes the matching
// audit record inside the same database transaction, so a balance change
// without an audit row (or vice versa) cannot be observed.
type BalanceRepository struct {
	db *PostgresDB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *PostgresDB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

const balanceColumns = `user_id, plan_type, tokens_remaining, tokens_per_month,
	assignments_remaining, assignments_allowed, next_reset_at, updated_at`

func scanBalance(row pgx.Row) (*models.TokenBalance, error) {
	var b models.TokenBalance
	err := row.Scan(
		&b.UserID,
		&b.PlanType,
		&b.TokensRemaining,
		&b.TokensPerMonth,
		&b.AssignmentsRemaining,
		&b.AssignmentsAllowed,
		&b.NextResetAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Get retrieves a user's balance snapshot
func (r *BalanceRepository) Get(ctx context.Context, userID string) (*models.TokenBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM token_balances WHERE user_id = $1`, balanceColumns)

	balance, err := scanBalance(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// CreateWithTx creates a balance row within an existing transaction.
// Used at signup so the user row and its balance appear atomically.
func (r *BalanceRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, balance *models.TokenBalance) error {
	balance.UpdatedAt = time.Now()

	query := `
		INSERT INTO token_balances (user_id, plan_type, tokens_remaining, tokens_per_month,
			assignments_remaining, assignments_allowed, next_reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		balance.UserID,
		balance.PlanType,
		balance.TokensRemaining,
		balance.TokensPerMonth,
		balance.AssignmentsRemaining,
		balance.AssignmentsAllowed,
		balance.NextResetAt,
		balance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create balance: %w", err)
	}

	return nil
}

// lockBalance reads a balance row with a row-level lock inside tx
func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (*models.TokenBalance, error) {
	query := fmt.Sprintf(`SELECT %s FROM token_balances WHERE user_id = $1 FOR UPDATE`, balanceColumns)

	balance, err := scanBalance(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
		}
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	return balance, nil
}

// writeBalance persists mutated numeric fields inside tx
func writeBalance(ctx context.Context, tx pgx.Tx, b *models.TokenBalance) error {
	b.UpdatedAt = time.Now()

	query := `
		UPDATE token_balances
		SET plan_type = $2, tokens_remaining = $3, tokens_per_month = $4,
			assignments_remaining = $5, assignments_allowed = $6,
			next_reset_at = $7, updated_at = $8
		WHERE user_id = $1
	`

	_, err := tx.Exec(ctx, query,
		b.UserID,
		b.PlanType,
		b.TokensRemaining,
		b.TokensPerMonth,
		b.AssignmentsRemaining,
		b.AssignmentsAllowed,
		b.NextResetAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	return nil
}

// insertAuditRecord writes one immutable ledger entry inside tx
func insertAuditRecord(ctx context.Context, tx pgx.Tx, record *models.TokenTransaction) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now()

	query := `
		INSERT INTO token_transactions (id, user_id, type, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Type,
		record.Amount,
		record.Description,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token transaction: %w", err)
	}

	return nil
}

// Credit increases the user's balance by amount and records the audit entry.
// UNLIMITED balances keep their stored number untouched but the audit record
// is still written. Always succeeds if the user's balance row exists.
func (r *BalanceRepository) Credit(ctx context.Context, userID string, amount int64, txType types.TokenTransactionType, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("credit amount must be positive, got %d", amount),
		}
	}

	return r.mutate(ctx, userID, func(b *models.TokenBalance) (int64, error) {
		if b.IsUnlimited() {
			return amount, nil
		}
		b.TokensRemaining += amount
		return amount, nil
	}, txType, description)
}

// DebitGeneration performs the consumption-gate debit: it checks the
// assignment quota and the token balance under the row lock, decrements both,
// and records one ASSIGNMENT_GENERATION entry. UNLIMITED balances skip the
// numeric checks but still produce the audit record.
func (r *BalanceRepository) DebitGeneration(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: fmt.Sprintf("debit amount must be positive, got %d", amount),
		}
	}

	return r.mutate(ctx, userID, func(b *models.TokenBalance) (int64, error) {
		if b.IsUnlimited() {
			return -amount, nil
		}

		// Quota check precedes the balance check; both happen under the lock
		if b.AssignmentsAllowed >= 0 {
			if b.AssignmentsRemaining <= 0 {
				return 0, lederrors.NewQuotaExhaustedError(b.PlanType).ToServiceError()
			}
			b.AssignmentsRemaining--
		}

		if b.TokensRemaining < amount {
			return 0, lederrors.NewInsufficientBalanceError(amount, b.TokensRemaining).ToServiceError()
		}
		b.TokensRemaining -= amount

		return -amount, nil
	}, types.TxAssignmentGeneration, description)
}

// AdminAdjust applies a signed manual adjustment (operator correction or
// refund). Negative adjustments may not push the balance below zero.
func (r *BalanceRepository) AdminAdjust(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount == 0 {
		return nil, nil, &types.ServiceError{
			Code:    "INVALID_INPUT",
			Message: "adjustment amount must be non-zero",
		}
	}

	return r.mutate(ctx, userID, func(b *models.TokenBalance) (int64, error) {
		if b.IsUnlimited() {
			return amount, nil
		}
		if amount < 0 && b.TokensRemaining < -amount {
			return 0, lederrors.NewInsufficientBalanceError(-amount, b.TokensRemaining).ToServiceError()
		}
		b.TokensRemaining += amount
		return amount, nil
	}, types.TxAdminAdjustment, description)
}

// mutate runs one locked balance mutation plus its audit record in a single
// database transaction. fn mutates the balance in place and returns the
// signed audit amount.
func (r *BalanceRepository) mutate(ctx context.Context, userID string, fn func(*models.TokenBalance) (int64, error), txType types.TokenTransactionType, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	auditAmount, err := fn(balance)
	if err != nil {
		return nil, nil, err
	}

	if err := writeBalance(ctx, tx, balance); err != nil {
		return nil, nil, err
	}

	record := &models.TokenTransaction{
		UserID:      userID,
		Type:        txType,
		Amount:      auditAmount,
		Description: description,
	}
	if err := insertAuditRecord(ctx, tx, record); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return balance, record, nil
}

// Reset applies the monthly reset if the user's reset time has arrived:
// tokens are set to the monthly quota (unused tokens are discarded, not
// carried over), the assignment quota is restored, and the schedule advances
// one period. Applying it again within the same period is a no-op, which
// makes duplicate scheduler triggers harmless. A nil record means the reset
// was not due and nothing changed.
func (r *BalanceRepository) Reset(ctx context.Context, userID string, now time.Time) (*models.TokenBalance, *models.TokenTransaction, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // no-op after commit

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	if balance.NextResetAt.After(now) {
		// Not due yet; nothing to apply this period
		return balance, nil, nil
	}

	net := balance.TokensPerMonth - balance.TokensRemaining
	balance.TokensRemaining = balance.TokensPerMonth
	if balance.AssignmentsAllowed >= 0 {
		balance.AssignmentsRemaining = balance.AssignmentsAllowed
	}
	for !balance.NextResetAt.After(now) {
		balance.NextResetAt = balance.NextResetAt.AddDate(0, 1, 0)
	}

	if err := writeBalance(ctx, tx, balance); err != nil {
		return nil, nil, err
	}

	record := &models.TokenTransaction{
		UserID:      userID,
		Type:        types.TxMonthlyReset,
		Amount:      net,
		Description: "monthly token reset",
	}
	if err := insertAuditRecord(ctx, tx, record); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return balance, record, nil
}

// ListDueResets returns the user IDs whose reset time has arrived
func (r *BalanceRepository) ListDueResets(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT user_id FROM token_balances
		WHERE next_reset_at <= $1
		ORDER BY next_reset_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due resets: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due resets: %w", err)
	}

	return userIDs, nil
}
