package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	lederrors "github.com/token-ledger/internal/errors"
	"github.com/token-ledger/internal/models"
	"github.com/token-ledger/internal/storage"
	"github.com/token-ledger/internal/types"
)

// In-memory fakes implementing the service interfaces with the same semantics
// as the Postgres repositories, so service behavior can be tested without a
// database.

type fakeBalanceRepo struct {
	mu       sync.Mutex
	balances map[string]*models.TokenBalance
	records  []*models.TokenTransaction
}

func newFakeBalanceRepo() *fakeBalanceRepo {
	return &fakeBalanceRepo{balances: make(map[string]*models.TokenBalance)}
}

func (r *fakeBalanceRepo) put(b *models.TokenBalance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.balances[b.UserID] = &cp
}

func (r *fakeBalanceRepo) snapshot(userID string) *models.TokenBalance {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.balances[userID]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

func (r *fakeBalanceRepo) audit(userID string, txType types.TokenTransactionType, amount int64, description string) *models.TokenTransaction {
	record := &models.TokenTransaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	r.records = append(r.records, record)
	return record
}

func (r *fakeBalanceRepo) recordsOfType(userID string, txType types.TokenTransactionType) []*models.TokenTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TokenTransaction
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Type == txType {
			out = append(out, rec)
		}
	}
	return out
}

func (r *fakeBalanceRepo) Get(ctx context.Context, userID string) (*models.TokenBalance, error) {
	b := r.snapshot(userID)
	if b == nil {
		return nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
	}
	return b, nil
}

func (r *fakeBalanceRepo) Credit(ctx context.Context, userID string, amount int64, txType types.TokenTransactionType, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "credit amount must be positive"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
	}
	if !b.IsUnlimited() {
		b.TokensRemaining += amount
	}
	b.UpdatedAt = time.Now()

	record := r.audit(userID, txType, amount, description)
	cp := *b
	return &cp, record, nil
}

func (r *fakeBalanceRepo) DebitGeneration(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount <= 0 {
		return nil, nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "debit amount must be positive"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
	}

	if !b.IsUnlimited() {
		if b.AssignmentsAllowed >= 0 {
			if b.AssignmentsRemaining <= 0 {
				return nil, nil, lederrors.NewQuotaExhaustedError(b.PlanType).ToServiceError()
			}
			b.AssignmentsRemaining--
		}
		if b.TokensRemaining < amount {
			return nil, nil, lederrors.NewInsufficientBalanceError(amount, b.TokensRemaining).ToServiceError()
		}
		b.TokensRemaining -= amount
	}
	b.UpdatedAt = time.Now()

	record := r.audit(userID, types.TxAssignmentGeneration, -amount, description)
	cp := *b
	return &cp, record, nil
}

func (r *fakeBalanceRepo) AdminAdjust(ctx context.Context, userID string, amount int64, description string) (*models.TokenBalance, *models.TokenTransaction, error) {
	if amount == 0 {
		return nil, nil, &types.ServiceError{Code: "INVALID_INPUT", Message: "adjustment amount must be non-zero"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
	}
	if !b.IsUnlimited() {
		if amount < 0 && b.TokensRemaining < -amount {
			return nil, nil, lederrors.NewInsufficientBalanceError(-amount, b.TokensRemaining).ToServiceError()
		}
		b.TokensRemaining += amount
	}
	b.UpdatedAt = time.Now()

	record := r.audit(userID, types.TxAdminAdjustment, amount, description)
	cp := *b
	return &cp, record, nil
}

func (r *fakeBalanceRepo) Reset(ctx context.Context, userID string, now time.Time) (*models.TokenBalance, *models.TokenTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.balances[userID]
	if !ok {
		return nil, nil, lederrors.NewNotFoundError("balance", userID).ToServiceError()
	}

	if b.NextResetAt.After(now) {
		cp := *b
		return &cp, nil, nil
	}

	net := b.TokensPerMonth - b.TokensRemaining
	b.TokensRemaining = b.TokensPerMonth
	if b.AssignmentsAllowed >= 0 {
		b.AssignmentsRemaining = b.AssignmentsAllowed
	}
	for !b.NextResetAt.After(now) {
		b.NextResetAt = b.NextResetAt.AddDate(0, 1, 0)
	}
	b.UpdatedAt = time.Now()

	record := r.audit(userID, types.TxMonthlyReset, net, "monthly token reset")
	cp := *b
	return &cp, record, nil
}

func (r *fakeBalanceRepo) ListDueResets(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []string
	for id, b := range r.balances {
		if !b.NextResetAt.After(now) {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeBalanceRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.TokenTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*models.TokenTransaction
	for _, rec := range r.records {
		if rec.UserID == userID {
			all = append(all, rec)
		}
	}
	// newest first
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.PaymentTransaction
	balances *fakeBalanceRepo
}

func newFakePaymentRepo(balances *fakeBalanceRepo) *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: make(map[string]*models.PaymentTransaction),
		balances: balances,
	}
}

func (r *fakePaymentRepo) Create(ctx context.Context, payment *models.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.UserID == payment.UserID && p.Status == types.PaymentWaiting {
			return lederrors.NewConflictError("a pending payment already exists for this user").ToServiceError()
		}
	}
	cp := *payment
	r.payments[payment.ID] = &cp
	return nil
}

func (r *fakePaymentRepo) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, lederrors.NewNotFoundError("payment", id).ToServiceError()
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) GetPendingByUser(ctx context.Context, userID string) (*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.UserID == userID && p.Status == types.PaymentWaiting {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakePaymentRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*models.PaymentTransaction
	for _, p := range r.payments {
		if p.UserID == userID {
			cp := *p
			all = append(all, &cp)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakePaymentRepo) ListOverduePending(ctx context.Context, now time.Time, limit int) ([]*models.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var overdue []*models.PaymentTransaction
	for _, p := range r.payments {
		if p.IsOverdue(now) {
			cp := *p
			overdue = append(overdue, &cp)
		}
	}
	sort.SliceStable(overdue, func(i, j int) bool { return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt) })
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (r *fakePaymentRepo) TransitionIfPending(ctx context.Context, id string, to types.PaymentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok || p.Status != types.PaymentWaiting {
		return false, nil
	}
	p.Status = to
	if to == types.PaymentPaid || to == types.PaymentRejected {
		now := time.Now()
		p.SettledAt = &now
	}
	return true, nil
}

func (r *fakePaymentRepo) SettlePaid(ctx context.Context, id string, grant *storage.PlanGrant) (*models.TokenTransaction, bool, error) {
	r.mu.Lock()
	p, ok := r.payments[id]
	if !ok || p.Status != types.PaymentWaiting {
		r.mu.Unlock()
		return nil, false, nil
	}
	p.Status = types.PaymentPaid
	now := time.Now()
	p.SettledAt = &now
	userID := p.UserID
	r.mu.Unlock()

	r.balances.mu.Lock()
	defer r.balances.mu.Unlock()

	b, ok := r.balances.balances[userID]
	if !ok {
		return nil, false, fmt.Errorf("no balance for user %s", userID)
	}
	b.PlanType = grant.PlanType
	b.TokensPerMonth = grant.TokensPerMonth
	b.AssignmentsAllowed = grant.AssignmentsAllowed
	b.NextResetAt = grant.NextResetAt
	if grant.AssignmentsAllowed >= 0 {
		b.AssignmentsRemaining = grant.AssignmentsAllowed
	}
	if grant.PlanType == types.PlanUnlimited {
		b.TokensRemaining = 0
		b.TokensPerMonth = 0
	} else {
		b.TokensRemaining += grant.Tokens
	}
	b.UpdatedAt = time.Now()

	record := r.balances.audit(userID, types.TxPlanUpgrade, grant.Tokens, fmt.Sprintf("plan upgrade to %s", grant.PlanType))
	return record, true, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) BalanceKey(userID string) string { return "balance:" + userID }

func (c *fakeCache) HistoryKey(userID string, limit, offset int) string {
	return fmt.Sprintf("history:%s:%d:%d", userID, limit, offset)
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *fakeCache) InvalidateUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.Contains(key, userID) {
			delete(c.entries, key)
		}
	}
	return nil
}

type fakeMirror struct {
	mu      sync.Mutex
	records []*models.TokenTransaction
}

func (m *fakeMirror) Insert(ctx context.Context, record *models.TokenTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *fakeMirror) typesSeen() map[types.TokenTransactionType]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[types.TokenTransactionType]int)
	for _, rec := range m.records {
		seen[rec.Type]++
	}
	return seen
}

// unlimitedBalance returns an UNLIMITED-plan balance; token counts are not
// tracked for this plan
func unlimitedBalance(userID string, now time.Time) *models.TokenBalance {
	return &models.TokenBalance{
		UserID:               userID,
		PlanType:             types.PlanUnlimited,
		TokensRemaining:      0,
		TokensPerMonth:       0,
		AssignmentsRemaining: -1,
		AssignmentsAllowed:   -1,
		NextResetAt:          now.AddDate(0, 1, 0),
		UpdatedAt:            now,
	}
}

// freeBalance returns a FREE-plan balance due for reset one month out
func freeBalance(userID string, now time.Time) *models.TokenBalance {
	return &models.TokenBalance{
		UserID:               userID,
		PlanType:             types.PlanFree,
		TokensRemaining:      5000,
		TokensPerMonth:       5000,
		AssignmentsRemaining: 1,
		AssignmentsAllowed:   1,
		NextResetAt:          now.AddDate(0, 1, 0),
		UpdatedAt:            now,
	}
}
