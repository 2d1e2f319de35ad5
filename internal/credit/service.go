package credit

import (
	"context"
	"sort"
	"sync"
	"time"

	"carbex.org/internal/ids"
)

// recentLimit caps the "recent completed allocations" list in BalanceInfo.
const recentLimit = 5

// Service defines credit ledger operations.
type Service interface {
	CreateAccount(ctx context.Context, id string) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	BalanceInfo(ctx context.Context, accountID string) (BalanceInfo, error)
	Allocate(ctx context.Context, accountID, documentID string, amount int64, idemKey string) (Allocation, error)
	Complete(ctx context.Context, allocationID string) (Allocation, error)
	Retire(ctx context.Context, accountID string, amount int64) (Account, error)
	ListAllocations(ctx context.Context, accountID string, limit int, afterSeq uint64) ([]Allocation, uint64, error)
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	accts  map[string]*Account
	seq    uint64
	allocs []Allocation
	idem   map[string]Allocation // idemKey -> allocation
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates a fresh credit ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		accts: make(map[string]*Account),
		idem:  make(map[string]Allocation),
	}
}

// CreateAccount registers an account. An empty id gets a generated one.
// Creating an existing account is a no-op returning the current state.
func (s *InMemory) CreateAccount(ctx context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = ids.New()
	}
	if acc, ok := s.accts[id]; ok {
		return *acc, nil
	}
	acc := &Account{ID: id, CreatedAt: time.Now().UTC()}
	s.accts[id] = acc
	return *acc, nil
}

func (s *InMemory) GetAccount(ctx context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

// Allocate records a pending mint allocation for a verified document.
// The idempotency key replays the original allocation on retry.
func (s *InMemory) Allocate(ctx context.Context, accountID, documentID string, amount int64, idemKey string) (Allocation, error) {
	if amount <= 0 {
		return Allocation{}, ErrInvalidAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idemKey != "" {
		if a, ok := s.idem[idemKey]; ok {
			return a, nil
		}
	}
	if _, ok := s.accts[accountID]; !ok {
		return Allocation{}, ErrNotFound
	}

	s.seq++
	a := Allocation{
		ID:             ids.New(),
		CreatedAt:      time.Now().UTC(),
		AccountID:      accountID,
		DocumentID:     documentID,
		Amount:         amount,
		Status:         AllocationPending,
		IdempotencyKey: idemKey,
		Sequence:       s.seq,
	}
	s.allocs = append(s.allocs, a)
	if idemKey != "" {
		s.idem[idemKey] = a
	}
	return a, nil
}

// Complete marks a pending allocation completed and credits the balance.
func (s *InMemory) Complete(ctx context.Context, allocationID string) (Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.allocs {
		if s.allocs[i].ID != allocationID {
			continue
		}
		if s.allocs[i].Status != AllocationPending {
			return Allocation{}, ErrInvalidStatus
		}
		acc, ok := s.accts[s.allocs[i].AccountID]
		if !ok {
			return Allocation{}, ErrNotFound
		}
		s.allocs[i].Status = AllocationCompleted
		acc.Balance += s.allocs[i].Amount
		if key := s.allocs[i].IdempotencyKey; key != "" {
			s.idem[key] = s.allocs[i]
		}
		return s.allocs[i], nil
	}
	return Allocation{}, ErrNotFound
}

// Retire burns credits from the account balance.
func (s *InMemory) Retire(ctx context.Context, accountID string, amount int64) (Account, error) {
	if amount <= 0 {
		return Account{}, ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	if acc.Balance < amount {
		return Account{}, ErrInsufficientCredits
	}
	acc.Balance -= amount
	return *acc, nil
}

// BalanceInfo aggregates current balance, totals and recent/pending
// allocation lists in one read.
func (s *InMemory) BalanceInfo(ctx context.Context, accountID string) (BalanceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accts[accountID]
	if !ok {
		return BalanceInfo{}, ErrNotFound
	}

	info := BalanceInfo{CurrentBalance: acc.Balance}
	var completed []Allocation
	for _, a := range s.allocs {
		if a.AccountID != accountID {
			continue
		}
		info.AllocationCount++
		switch a.Status {
		case AllocationCompleted:
			info.TotalAllocated += a.Amount
			completed = append(completed, a)
		case AllocationPending:
			info.Pending = append(info.Pending, a)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].Sequence > completed[j].Sequence
	})
	if len(completed) > recentLimit {
		completed = completed[:recentLimit]
	}
	info.Recent = completed
	return info, nil
}

func (s *InMemory) ListAllocations(ctx context.Context, accountID string, limit int, afterSeq uint64) ([]Allocation, uint64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Allocation
	var last uint64
	for _, a := range s.allocs {
		if a.Sequence <= afterSeq {
			continue
		}
		if accountID != "" && a.AccountID != accountID {
			continue
		}
		res = append(res, a)
		last = a.Sequence
		if len(res) >= limit {
			break
		}
	}
	return res, last, nil
}
