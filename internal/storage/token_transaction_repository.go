package storage

import (
	"context"
	"fmt"

	"github.com/token-ledger/internal/models"
)

// TokenTransactionRepository reads the append-only ledger audit trail.
// Rows are only ever written through BalanceRepository mutations (and the
// payment settlement transaction), never through this repository.
type TokenTransactionRepository struct {
	db *PostgresDB
}

// NewTokenTransactionRepository creates a new token transaction repository
func NewTokenTransactionRepository(db *PostgresDB) *TokenTransactionRepository {
	return &TokenTransactionRepository{db: db}
}

// ListByUser retrieves a user's ledger entries, newest first
func (r *TokenTransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	query := `
		SELECT id, user_id, type, amount, description, created_at
		FROM token_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list token transactions: %w", err)
	}
	defer rows.Close()

	var records []*models.TokenTransaction
	for rows.Next() {
		var record models.TokenTransaction
		err := rows.Scan(
			&record.ID,
			&record.UserID,
			&record.Type,
			&record.Amount,
			&record.Description,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token transaction: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating token transactions: %w", err)
	}

	return records, nil
}

// CountByUser returns the number of ledger entries for a user
func (r *TokenTransactionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM token_transactions WHERE user_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count token transactions: %w", err)
	}

	return count, nil
}
