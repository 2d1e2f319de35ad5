package credit

import (
	"errors"
	"time"
)

// Amounts are carbon credits in milli-credits (1 credit = 1000). No floats.

// Account holds a participant's credit balance, keyed by wallet address or
// an opaque account identifier.
type Account struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Balance   int64     `json:"balance"`
}

// Allocation statuses.
const (
	AllocationPending   = "pending"
	AllocationCompleted = "completed"
)

// Allocation is one credit-minting event tied to a verified document.
type Allocation struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	AccountID      string    `json:"account_id"`
	DocumentID     string    `json:"document_id"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Sequence       uint64    `json:"sequence"`
}

// BalanceInfo is the aggregate the dashboard's balance source publishes.
type BalanceInfo struct {
	CurrentBalance  int64        `json:"current_balance"`
	TotalAllocated  int64        `json:"total_allocated"`
	AllocationCount int          `json:"allocation_count"`
	Recent          []Allocation `json:"recent"`
	Pending         []Allocation `json:"pending"`
}

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("invalid amount (must be > 0)")
	ErrInvalidStatus       = errors.New("allocation is not pending")
)
