package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/token-ledger/internal/types"
)

func TestLedgerServiceCreditAndHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", now))

	svc := NewLedgerService(repo, repo, nil, nil)

	balance, err := svc.Credit(ctx, "user-1", 1000, types.TxAdminAdjustment, "promo credit")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance.TokensRemaining)

	history, err := svc.History(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1000), history[0].Amount)
	assert.Equal(t, types.TxAdminAdjustment, history[0].Type)
}

func TestLedgerServiceCreditRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", time.Now()))

	svc := NewLedgerService(repo, repo, nil, nil)

	_, err := svc.Credit(ctx, "user-1", 0, types.TxAdminAdjustment, "noop")
	require.Error(t, err)

	_, err = svc.Credit(ctx, "user-1", -50, types.TxAdminAdjustment, "negative")
	require.Error(t, err)
}

func TestLedgerServiceDebitGeneration(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", now))

	svc := NewLedgerService(repo, repo, nil, nil)

	balance, record, err := svc.DebitGeneration(ctx, "user-1", 2000, "generation")
	require.NoError(t, err)
	assert.Equal(t, int64(3000), balance.TokensRemaining)
	assert.Equal(t, 0, balance.AssignmentsRemaining)
	assert.Equal(t, int64(-2000), record.Amount)
	assert.Equal(t, types.TxAssignmentGeneration, record.Type)
}

func TestLedgerServiceDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	b := freeBalance("user-1", now)
	b.TokensRemaining = 100
	repo.put(b)

	svc := NewLedgerService(repo, repo, nil, nil)

	_, _, err := svc.DebitGeneration(ctx, "user-1", 2000, "generation")
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_BALANCE", svcErr.Code)

	// The refused debit must leave the balance untouched
	after, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), after.TokensRemaining)
}

func TestLedgerServiceDebitQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	b := freeBalance("user-1", now)
	b.AssignmentsRemaining = 0
	repo.put(b)

	svc := NewLedgerService(repo, repo, nil, nil)

	_, _, err := svc.DebitGeneration(ctx, "user-1", 100, "generation")
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "QUOTA_EXHAUSTED", svcErr.Code)

	// Quota refusal happens before the token check; tokens stay intact
	after, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), after.TokensRemaining)
}

func TestLedgerServiceUnlimitedDebitStillAudited(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(unlimitedBalance("user-1", now))

	svc := NewLedgerService(repo, repo, nil, nil)

	balance, record, err := svc.DebitGeneration(ctx, "user-1", 999999, "generation")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.TokensRemaining)
	assert.Equal(t, int64(-999999), record.Amount)

	history, err := svc.History(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestLedgerServiceAdminAdjustCannotGoNegative(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	b := freeBalance("user-1", now)
	b.TokensRemaining = 500
	repo.put(b)

	svc := NewLedgerService(repo, repo, nil, nil)

	_, err := svc.AdminAdjust(ctx, "user-1", -1000, "correction")
	require.Error(t, err)

	balance, err := svc.AdminAdjust(ctx, "user-1", -500, "correction")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.TokensRemaining)
}

func TestLedgerServiceResetIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	b := freeBalance("user-1", now)
	b.TokensRemaining = 1200
	b.AssignmentsRemaining = 0
	b.NextResetAt = now.Add(-time.Hour) // due
	repo.put(b)

	svc := NewLedgerService(repo, repo, nil, nil)
	svc.now = func() time.Time { return now }

	balance, applied, err := svc.Reset(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(5000), balance.TokensRemaining)
	assert.Equal(t, 1, balance.AssignmentsRemaining)
	assert.True(t, balance.NextResetAt.After(now))

	// Second trigger in the same period is a no-op
	again, applied, err := svc.Reset(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, balance.NextResetAt, again.NextResetAt)

	resets := repo.recordsOfType("user-1", types.TxMonthlyReset)
	assert.Len(t, resets, 1)
}

func TestLedgerServiceResetAdvancesPastMissedPeriods(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	b := freeBalance("user-1", now)
	b.NextResetAt = now.AddDate(0, -3, 0) // three periods behind
	repo.put(b)

	svc := NewLedgerService(repo, repo, nil, nil)
	svc.now = func() time.Time { return now }

	balance, applied, err := svc.Reset(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, balance.NextResetAt.After(now))
	// A single catch-up reset, not one per missed period
	assert.Len(t, repo.recordsOfType("user-1", types.TxMonthlyReset), 1)
}

func TestLedgerServiceResetDue(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	due := freeBalance("user-due", now)
	due.NextResetAt = now.Add(-time.Hour)
	repo.put(due)
	repo.put(freeBalance("user-fresh", now))

	svc := NewLedgerService(repo, repo, nil, nil)
	svc.now = func() time.Time { return now }

	applied, err := svc.ResetDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
}

func TestLedgerServiceBalanceCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", now))
	cache := newFakeCache()

	svc := NewLedgerService(repo, repo, cache, nil)

	first, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)

	second, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.TokensRemaining, second.TokensRemaining)
}

func TestLedgerServiceMutationInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", now))
	cache := newFakeCache()

	svc := NewLedgerService(repo, repo, cache, nil)

	// Warm the cache, mutate, then read again: the stale entry must be gone
	_, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)

	_, err = svc.Credit(ctx, "user-1", 1000, types.TxAdminAdjustment, "credit")
	require.NoError(t, err)

	balance, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance.TokensRemaining)
}

func TestLedgerServiceHistoryClampsLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	repo := newFakeBalanceRepo()
	repo.put(freeBalance("user-1", now))

	svc := NewLedgerService(repo, repo, nil, nil)

	// Limits outside the allowed range are clamped, not rejected
	_, err := svc.History(ctx, "user-1", -5, -10)
	require.NoError(t, err)

	_, err = svc.History(ctx, "user-1", 10000, 0)
	require.NoError(t, err)
}
