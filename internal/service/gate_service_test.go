package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/token-ledger/internal/catalog"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/types"
)

func newGateFixture(t *testing.T, balance *models.TokenBalance) (*GateService, *fakeBalanceRepo) {
	t.Helper()

	repo := newFakeBalanceRepo()
	repo.put(balance)

	ledger := NewLedgerService(repo, repo, nil, nil)
	return NewGateService(ledger, catalog.Default()), repo
}

func TestGateAuthorizeDebitsTokensAndQuota(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	balance := freeBalance("user-1", now)
	balance.PlanType = types.PlanPM
	balance.TokensRemaining = 150000
	balance.AssignmentsRemaining = 15
	balance.AssignmentsAllowed = 15
	gate, repo := newGateFixture(t, balance)

	result, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradeMerit,
		Tokens: 8000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(142000), result.Balance.TokensRemaining)
	assert.Equal(t, 14, result.Balance.AssignmentsRemaining)
	assert.Equal(t, int64(-8000), result.Record.Amount)
	assert.Equal(t, types.TxAssignmentGeneration, result.Record.Type)

	// Exactly one audit entry for the admitted job
	assert.Len(t, repo.recordsOfType("user-1", types.TxAssignmentGeneration), 1)
}

func TestGateAuthorizeGradeNotAllowed(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// Plan P only authorizes PASS generation
	balance := freeBalance("user-1", now)
	balance.PlanType = types.PlanP
	balance.TokensRemaining = 100000
	balance.AssignmentsRemaining = 10
	balance.AssignmentsAllowed = 10
	gate, repo := newGateFixture(t, balance)

	_, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradeMerit,
		Tokens: 8000,
	})
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "GRADE_NOT_ALLOWED", svcErr.Code)

	// Refusal must leave the balance untouched
	after := repo.snapshot("user-1")
	assert.Equal(t, int64(100000), after.TokensRemaining)
	assert.Equal(t, 10, after.AssignmentsRemaining)
	assert.Empty(t, repo.recordsOfType("user-1", types.TxAssignmentGeneration))
}

func TestGateAuthorizeGradeCheckPrecedesQuota(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// Quota already exhausted, but the grade refusal fires first
	balance := freeBalance("user-1", now)
	balance.PlanType = types.PlanP
	balance.AssignmentsRemaining = 0
	gate, _ := newGateFixture(t, balance)

	_, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradeDistinction,
		Tokens: 1000,
	})
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "GRADE_NOT_ALLOWED", svcErr.Code)
}

func TestGateAuthorizeQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	balance := freeBalance("user-1", now)
	balance.AssignmentsRemaining = 0
	gate, _ := newGateFixture(t, balance)

	_, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradePass,
		Tokens: 1000,
	})
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "QUOTA_EXHAUSTED", svcErr.Code)
}

func TestGateAuthorizeInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	balance := freeBalance("user-1", now)
	balance.TokensRemaining = 500
	gate, _ := newGateFixture(t, balance)

	_, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradePass,
		Tokens: 1000,
	})
	require.Error(t, err)

	svcErr, ok := err.(*types.ServiceError)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_BALANCE", svcErr.Code)
}

func TestGateAuthorizeUnlimitedBypassesChecks(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	gate, repo := newGateFixture(t, unlimitedBalance("user-1", now))

	result, err := gate.Authorize(ctx, &AuthorizeInput{
		UserID: "user-1",
		Grade:  types.GradeDistinction,
		Tokens: 10_000_000,
	})
	require.NoError(t, err)

	// Stored number stays zero, but the audit record is still written
	assert.Equal(t, int64(0), result.Balance.TokensRemaining)
	assert.Len(t, repo.recordsOfType("user-1", types.TxAssignmentGeneration), 1)
}

func TestGateAuthorizeValidatesInput(t *testing.T) {
	ctx := context.Background()
	gate, _ := newGateFixture(t, freeBalance("user-1", time.Now()))

	_, err := gate.Authorize(ctx, &AuthorizeInput{Grade: types.GradePass, Tokens: 100})
	require.Error(t, err)

	_, err = gate.Authorize(ctx, &AuthorizeInput{UserID: "user-1", Grade: types.Grade("GOLD"), Tokens: 100})
	require.Error(t, err)

	_, err = gate.Authorize(ctx, &AuthorizeInput{UserID: "user-1", Grade: types.GradePass, Tokens: 0})
	require.Error(t, err)
}
