// Package service implements the token ledger core: balance accounting,
// payment lifecycle orchestration and the consumption gate.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/token-ledger/internal/logging"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/retry"
	"github.com/token-ledger/internal/types"
)

// Repository interfaces for dependency injection

// BalanceRepository interface for balance data operations
type BalanceRepository interface {
	Get(ctx context.Context, userID string) (*models.TokenBalance, error)
	Credit(ctx context.Context, userID string, amount int64, txType types.TokenTransactionType, description string) (*models.TokenBalance, *models.TokenTransaction, error)
	DebitGeneration(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error)
	AdminAdjust(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error)
	Reset(ctx context.Context, userID string, now time.Time) (*models.TokenBalance, *models.TokenTransaction, error)
	ListDueResets(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// TokenTransactionRepository interface for ledger history reads
type TokenTransactionRepository interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error)
}

// LedgerCache interface for the read-path cache
type LedgerCache interface {
	BalanceKey(userID string) string
	HistoryKey(userID string, limit, offset int) string
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	InvalidateUser(ctx context.Context, userID string) error
}

// UsageMirror interface for the best-effort analytics mirror
type UsageMirror interface {
	Insert(ctx context.Context, record *models.TokenTransaction) error
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	resetBatchSize      = 100
)

// LedgerService owns all balance mutations. Per-user mutations are serialized
// twice over: a per-user mutex within this process, and the balance row lock
// in the repository for cross-process safety.
type LedgerService struct {
	balanceRepo BalanceRepository
	txRepo      TokenTransactionRepository
	cache       LedgerCache // optional
	mirror      UsageMirror // optional
	userLocks   sync.Map    // userID -> *sync.Mutex
	now         func() time.Time
}

// NewLedgerService creates a new ledger service. cache and mirror may be nil.
func NewLedgerService(balanceRepo BalanceRepository, txRepo TokenTransactionRepository, cache LedgerCache, mirror UsageMirror) *LedgerService {
	return &LedgerService{
		balanceRepo: balanceRepo,
		txRepo:      txRepo,
		cache:       cache,
		mirror:      mirror,
		now:         time.Now,
	}
}

// lockUser acquires the per-user mutex and returns its unlock function
func (s *LedgerService) lockUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetBalance returns the user's balance snapshot, served from cache when warm
func (s *LedgerService) GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}

	if s.cache != nil {
		var cached models.TokenBalance
		found, err := s.cache.Get(ctx, s.cache.BalanceKey(userID), &cached)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Balance cache read failed")
		} else if found {
			return &cached, nil
		}
	}

	balance, err := s.balanceRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.BalanceKey(userID), balance); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Balance cache write failed")
		}
	}

	return balance, nil
}

// History returns the user's ledger entries, newest first
func (s *LedgerService) History(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	if userID == "" {
		return nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "userId is required"}
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	if s.cache != nil {
		var cached []*models.TokenTransaction
		found, err := s.cache.Get(ctx, s.cache.HistoryKey(userID, limit, offset), &cached)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("History cache read failed")
		} else if found {
			return cached, nil
		}
	}

	records, err := s.txRepo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.HistoryKey(userID, limit, offset), records); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("History cache write failed")
		}
	}

	return records, nil
}

// Credit increases a user's balance and records one audit entry
func (s *LedgerService) Credit(ctx context.Context, userID string, amount int64, txType types.TokenTransactionType, description string) (*models.TokenBalance, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	balance, record, err := s.balanceRepo.Credit(ctx, userID, amount, txType, description)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, userID, record)
	return balance, nil
}

// DebitGeneration performs the consumption-gate debit for one generation job
func (s *LedgerService) DebitGeneration(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	balance, record, err := s.balanceRepo.DebitGeneration(ctx, userID, amount, description)
	if err != nil {
		return nil, nil, err
	}

	s.afterMutation(ctx, userID, record)
	return balance, record, nil
}

// AdminAdjust applies a signed operator adjustment or manual refund
func (s *LedgerService) AdminAdjust(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	balance, record, err := s.balanceRepo.AdminAdjust(ctx, userID, amount, description)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, userID, record)
	return balance, nil
}

// Reset applies the monthly reset if due. The boolean reports whether it
// applied; a second call in the same period is a no-op.
func (s *LedgerService) Reset(ctx context.Context, userID string) (*models.TokenBalance, bool, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	balance, record, err := s.balanceRepo.Reset(ctx, userID, s.now())
	if err != nil {
		return nil, false, err
	}

	if record != nil {
		s.afterMutation(ctx, userID, record)
	}
	return balance, record != nil, nil
}

// RecordMutation runs the post-mutation hooks for an audit record another
// component committed in the same database, keeping the cache and the usage
// mirror consistent with balance changes the ledger service did not perform
// itself (currently the PLAN_UPGRADE written during payment settlement).
func (s *LedgerService) RecordMutation(ctx context.Context, record *models.TokenTransaction) {
	if record == nil {
		return
	}
	s.afterMutation(ctx, record.UserID, record)
}

// ResetDue applies the monthly reset for every user whose reset time has
// arrived. Returns the number of balances reset.
func (s *LedgerService) ResetDue(ctx context.Context) (int, error) {
	userIDs, err := s.balanceRepo.ListDueResets(ctx, s.now(), resetBatchSize)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, userID := range userIDs {
		_, ok, err := s.Reset(ctx, userID)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithField("userId", userID).Error("Monthly reset failed")
			continue
		}
		if ok {
			applied++
		}
	}

	return applied, nil
}

// afterMutation invalidates cached reads and mirrors the audit record.
// Both are best-effort: the committed Postgres transaction already holds the
// balance and its audit row.
func (s *LedgerService) afterMutation(ctx context.Context, userID string, record *models.TokenTransaction) {
	logger := logging.FromContext(ctx)

	if s.cache != nil {
		if err := s.cache.InvalidateUser(ctx, userID); err != nil {
			logger.WithError(err).WithField("userId", userID).Warn("Cache invalidation failed")
		}
	}

	if s.mirror != nil && record != nil {
		rec := *record
		go func() {
			mirrorCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err := retry.WithBackoff(mirrorCtx, retry.DefaultConfig(), func(ctx context.Context, _ int) error {
				return s.mirror.Insert(ctx, &rec)
			})
			if err != nil {
				logger.WithError(err).WithField("recordId", rec.ID).Warn("Usage mirror write failed")
			}
		}()
	}
}
