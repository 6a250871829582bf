package pvp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deltran/clearing-core/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStore is the transactional seam for nostro account mutation. Each
// operation is atomic and serialized per account, the in-memory equivalent
// of a Postgres row-level lock held inside a transaction.
type AccountStore interface {
	GetAccount(accountID string) (*domain.NostroAccount, error)
	LockFunds(ctx context.Context, settlementID uuid.UUID, accountID string, amount decimal.Decimal, currency string, expiry time.Time) (*domain.FundLock, error)
	ReleaseLock(ctx context.Context, lockID uuid.UUID) error
	SettleLock(ctx context.Context, lockID uuid.UUID) error
	GetLock(lockID uuid.UUID) (*domain.FundLock, error)
	SweepExpired(ctx context.Context, now time.Time) int
}

type accountEntry struct {
	mu      sync.Mutex
	account *domain.NostroAccount
}

// MemAccountStore is an in-memory AccountStore reference implementation.
type MemAccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountEntry
	locks    map[uuid.UUID]*domain.FundLock
}

// NewMemAccountStore creates an empty store; accounts must be seeded via
// Seed before use.
func NewMemAccountStore() *MemAccountStore {
	return &MemAccountStore{
		accounts: make(map[string]*accountEntry),
		locks:    make(map[uuid.UUID]*domain.FundLock),
	}
}

// Seed registers or replaces a nostro account.
func (s *MemAccountStore) Seed(account *domain.NostroAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.AccountID] = &accountEntry{account: account}
}

func (s *MemAccountStore) entry(accountID string) (*accountEntry, error) {
	s.mu.RLock()
	e, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: nostro account %s", domain.ErrNotFound, accountID)
	}
	return e, nil
}

// GetAccount returns a snapshot copy of the account.
func (s *MemAccountStore) GetAccount(accountID string) (*domain.NostroAccount, error) {
	e, err := s.entry(accountID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	copy := *e.account
	return &copy, nil
}

// LockFunds reserves amount against accountID's available balance,
// creating an ACTIVE FundLock. Returns ErrInsufficientFunds if the account
// cannot cover it.
func (s *MemAccountStore) LockFunds(ctx context.Context, settlementID uuid.UUID, accountID string, amount decimal.Decimal, currency string, expiry time.Time) (*domain.FundLock, error) {
	e, err := s.entry(accountID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account.AvailableBalance.LessThan(amount) {
		return nil, fmt.Errorf("%w: account %s has %s available, needs %s",
			domain.ErrInsufficientFunds, accountID, e.account.AvailableBalance.String(), amount.String())
	}

	e.account.AvailableBalance = e.account.AvailableBalance.Sub(amount)
	e.account.LockedBalance = e.account.LockedBalance.Add(amount)

	lock := &domain.FundLock{
		LockID:       uuid.New(),
		AccountID:    accountID,
		SettlementID: settlementID,
		Amount:       amount,
		Currency:     currency,
		LockedAt:     time.Now(),
		ExpiresAt:    expiry,
		Status:       domain.LockActive,
	}

	s.mu.Lock()
	s.locks[lock.LockID] = lock
	s.mu.Unlock()

	return lock, nil
}

// ReleaseLock restores the locked amount to available balance and marks
// the lock RELEASED. A no-op if the lock is already terminal.
func (s *MemAccountStore) ReleaseLock(ctx context.Context, lockID uuid.UUID) error {
	return s.resolveLock(lockID, domain.LockReleased, false)
}

// SettleLock finalizes a lock: the amount leaves ledger_balance and
// locked_balance permanently, and the lock is marked SETTLED.
func (s *MemAccountStore) SettleLock(ctx context.Context, lockID uuid.UUID) error {
	return s.resolveLock(lockID, domain.LockSettled, true)
}

func (s *MemAccountStore) resolveLock(lockID uuid.UUID, finalStatus domain.FundLockStatus, settle bool) error {
	s.mu.Lock()
	lock, ok := s.locks[lockID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: fund lock %s", domain.ErrNotFound, lockID)
	}

	if lock.Status != domain.LockActive {
		return nil
	}

	e, err := s.entry(lock.AccountID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if settle {
		e.account.LedgerBalance = e.account.LedgerBalance.Sub(lock.Amount)
		e.account.LockedBalance = e.account.LockedBalance.Sub(lock.Amount)
	} else {
		e.account.AvailableBalance = e.account.AvailableBalance.Add(lock.Amount)
		e.account.LockedBalance = e.account.LockedBalance.Sub(lock.Amount)
	}
	e.mu.Unlock()

	s.mu.Lock()
	lock.Status = finalStatus
	s.mu.Unlock()

	return nil
}

// GetLock returns a snapshot copy of the lock.
func (s *MemAccountStore) GetLock(lockID uuid.UUID) (*domain.FundLock, error) {
	s.mu.RLock()
	lock, ok := s.locks[lockID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: fund lock %s", domain.ErrNotFound, lockID)
	}
	copy := *lock
	return &copy, nil
}

// SweepExpired releases every ACTIVE lock whose expiry has passed,
// marking it EXPIRED instead of RELEASED. Returns the count swept.
func (s *MemAccountStore) SweepExpired(ctx context.Context, now time.Time) int {
	s.mu.RLock()
	var expired []uuid.UUID
	for id, lock := range s.locks {
		if lock.Status == domain.LockActive && now.After(lock.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		_ = s.resolveLock(id, domain.LockExpired, false)
	}
	return len(expired)
}
