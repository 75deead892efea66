package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/token-ledger/internal/models"
)

// UsageArchive mirrors ledger entries into ClickHouse for usage analytics.
// Writes are best-effort and eventually consistent: the Postgres audit trail
// stays the source of truth, so a lost mirror write never affects balances.
type UsageArchive struct {
	db *ClickHouseDB
}

// NewUsageArchive creates a new usage archive
func NewUsageArchive(db *ClickHouseDB) *UsageArchive {
	return &UsageArchive{db: db}
}

// Insert mirrors one ledger entry
func (a *UsageArchive) Insert(ctx context.Context, record *models.TokenTransaction) error {
	query := `
		INSERT INTO ledger_entries (id, user_id, type, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	err := a.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		string(record.Type),
		record.Amount,
		record.Description,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to archive ledger entry: %w", err)
	}

	return nil
}

// MonthlyUsage summarizes one calendar month of a user's ledger activity
type MonthlyUsage struct {
	Month           string `json:"month"` // YYYY-MM
	TokensConsumed  int64  `json:"tokensConsumed"`
	TokensCredited  int64  `json:"tokensCredited"`
	GenerationCount int64  `json:"generationCount"`
}

// MonthlyUsageByUser aggregates a user's mirrored ledger entries per month
func (a *UsageArchive) MonthlyUsageByUser(ctx context.Context, userID string, from, to time.Time) ([]*MonthlyUsage, error) {
	query := `
		SELECT
			formatDateTime(created_at, '%Y-%m') AS month,
			sumIf(-amount, amount < 0) AS tokens_consumed,
			sumIf(amount, amount > 0) AS tokens_credited,
			countIf(type = 'ASSIGNMENT_GENERATION') AS generation_count
		FROM ledger_entries
		WHERE user_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY month
		ORDER BY month ASC
	`

	rows, err := a.db.Conn().Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query monthly usage: %w", err)
	}
	defer rows.Close()

	var usage []*MonthlyUsage
	for rows.Next() {
		var u MonthlyUsage
		if err := rows.Scan(&u.Month, &u.TokensConsumed, &u.TokensCredited, &u.GenerationCount); err != nil {
			return nil, fmt.Errorf("failed to scan monthly usage: %w", err)
		}
		usage = append(usage, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monthly usage: %w", err)
	}

	return usage, nil
}
